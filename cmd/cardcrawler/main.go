package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/JakeFAU/card-crawler/internal/app"
	"github.com/JakeFAU/card-crawler/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, convErr := strconv.Atoi(port); convErr == nil {
			cfg.Server.Port = p
		}
	}

	ctx := context.Background()
	application, err := app.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "crawler exited: %v\n", err)
		os.Exit(1)
	}
}
