package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/card-crawler/internal/crawler"
	"github.com/JakeFAU/card-crawler/internal/storage"
	"github.com/JakeFAU/card-crawler/internal/storage/local"
	"github.com/JakeFAU/card-crawler/internal/storage/memory"
)

var errDown = errors.New("backend down")

// flakySnapshot is a whole-collection backend whose calls can be made to fail.
type flakySnapshot struct {
	mu      sync.Mutex
	cards   []crawler.Card
	loadErr error
	saveErr error
	saves   int
}

func (f *flakySnapshot) Name() string { return "fake" }

func (f *flakySnapshot) Load(context.Context) ([]crawler.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]crawler.Card(nil), f.cards...), nil
}

func (f *flakySnapshot) Save(_ context.Context, cards []crawler.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.cards = append([]crawler.Card(nil), cards...)
	return nil
}

func newMirror(t *testing.T) *local.Store {
	t.Helper()
	m, err := local.New(local.Config{Path: filepath.Join(t.TempDir(), "cards.json")})
	require.NoError(t, err)
	return m
}

func named(url, name string) crawler.Card {
	return crawler.Card{URL: url, Name: &name}
}

func TestBulkPersisterRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := &flakySnapshot{cards: []crawler.Card{named("u1", "Rem")}}
	mirror := newMirror(t)
	p := storage.NewBulkPersister(remote, mirror, nil)

	urls, err := p.KnownURLs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, urls)

	require.NoError(t, p.Record(ctx, named("u2", "Ram")))
	require.NoError(t, p.Record(ctx, named("u2", "Ram")))
	require.ErrorIs(t, p.Record(ctx, crawler.Card{}), crawler.ErrMissingURL)
	require.Equal(t, 0, remote.saves, "nothing is written before Flush")

	require.NoError(t, p.Flush(ctx))
	require.Equal(t, 1, remote.saves)
	require.Equal(t, []crawler.Card{named("u1", "Rem"), named("u2", "Ram")}, remote.cards)

	mirrored, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.cards, mirrored, "the mirror holds cards, not the url set")

	found, err := p.FindByName(ctx, "ram")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestBulkPersisterLoadFailure(t *testing.T) {
	t.Parallel()

	p := storage.NewBulkPersister(&flakySnapshot{loadErr: errDown}, nil, nil)
	_, err := p.KnownURLs(context.Background())

	var persistErr *crawler.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	require.Equal(t, crawler.PersistLoad, persistErr.Op)
	require.ErrorIs(t, err, errDown)
}

func TestBulkPersisterDoesNotClobberUnloadedCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := &flakySnapshot{cards: []crawler.Card{named("u1", "Rem")}, loadErr: errDown}
	mirror := newMirror(t)
	p := storage.NewBulkPersister(remote, mirror, nil)

	_, err := p.KnownURLs(ctx)
	require.Error(t, err)
	require.NoError(t, p.Record(ctx, named("u2", "Ram")))

	err = p.Flush(ctx)
	require.Error(t, err)
	require.Zero(t, remote.saves)

	mirrored, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.Card{named("u2", "Ram")}, mirrored, "progress survives in the mirror")
}

func TestBulkPersisterRecoversAtFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	remote := &flakySnapshot{cards: []crawler.Card{named("u1", "Rem")}, loadErr: errDown}
	p := storage.NewBulkPersister(remote, nil, nil)

	_, err := p.KnownURLs(ctx)
	require.Error(t, err)
	require.NoError(t, p.Record(ctx, named("u1", "Rem v2")))

	remote.mu.Lock()
	remote.loadErr = nil
	remote.mu.Unlock()

	require.NoError(t, p.Flush(ctx))
	require.Equal(t, []crawler.Card{named("u1", "Rem v2")}, remote.cards, "cards recorded this run win")
}

func TestBulkPersisterWriteFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := storage.NewBulkPersister(&flakySnapshot{saveErr: errDown}, nil, nil)
	_, err := p.KnownURLs(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Record(ctx, named("u1", "Rem")))

	err = p.Flush(ctx)
	var persistErr *crawler.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	require.Equal(t, crawler.PersistWrite, persistErr.Op)

	cards, err := p.ListCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1, "in-memory progress is kept")

	urls, err := p.KnownURLs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, urls, "unsaved cards stay known for the next pass")
}

func TestRecordPersisterMirrorsEveryRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore(named("u1", "Rem"))
	mirror := newMirror(t)
	p := storage.NewRecordPersister(store, mirror, nil)

	urls, err := p.KnownURLs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, urls)

	require.NoError(t, p.Record(ctx, named("u2", "Ram")))
	mirrored, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.Card{named("u2", "Ram")}, mirrored, "written before Flush")

	require.NoError(t, p.Flush(ctx))
	cards, err := p.ListCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	require.NoError(t, p.Close())
}

type failingRecords struct {
	*memory.Store
}

func (failingRecords) KnownURLs(context.Context) ([]string, error) { return nil, errDown }

func (failingRecords) Upsert(context.Context, crawler.Card) error { return errDown }

func TestRecordPersisterFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := storage.NewRecordPersister(failingRecords{memory.NewStore()}, nil, nil)

	_, err := p.KnownURLs(ctx)
	var persistErr *crawler.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	require.Equal(t, crawler.PersistLoad, persistErr.Op)

	err = p.Record(ctx, named("u1", "Rem"))
	require.True(t, errors.As(err, &persistErr))
	require.Equal(t, crawler.PersistWrite, persistErr.Op)
	require.ErrorIs(t, p.Record(ctx, crawler.Card{}), crawler.ErrMissingURL)
}

func TestMatchName(t *testing.T) {
	t.Parallel()

	cards := []crawler.Card{named("u1", "Rem"), named("u2", " rem "), named("u3", "Remy"), crawler.EmptyCard("u4")}
	require.Len(t, storage.MatchName(cards, "REM"), 2)
	require.Empty(t, storage.MatchName(cards, ""))
}
