package main

import (
	"context"
	"errors"
	"log"

	"github.com/aussiebroadwan/shopauth/internal/auth/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		var cfgErr *app.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatalf("invalid configuration: %v", err)
		}
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
