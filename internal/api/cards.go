package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/card-crawler/internal/crawler"
)

const (
	defaultCardLimit = 100
	maxCardLimit     = 1000
	cardQueryTimeout = 5 * time.Second
)

// CardHandler exposes read-only card endpoints.
type CardHandler struct {
	reader  crawler.CardReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewCardHandler wires the reader and logger.
func NewCardHandler(reader crawler.CardReader, logger *zap.Logger) *CardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardHandler{
		reader:  reader,
		timeout: cardQueryTimeout,
		logger:  logger,
	}
}

// List handles GET /v1/cards?limit=&offset=. It returns {"cards": [...], "total": n}
// with total counting every stored card, 400 for bad paging, 503 without a store.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "card store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCardLimit, maxCardLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cards, err := h.reader.ListCards(ctx)
	if err != nil {
		h.logger.Error("list cards failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}
	total := len(cards)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards[offset:end],
		"total": total,
	})
}

// Search handles GET /v1/cards/search?name=. Matching ignores case and
// surrounding whitespace; an empty result is still 200.
func (h *CardHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "card store unavailable")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cards, err := h.reader.FindByName(ctx, name)
	if err != nil {
		h.logger.Error("find cards failed", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search cards")
		return
	}
	if cards == nil {
		cards = []crawler.Card{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = val
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
