package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/history"
	"github.com/atlas-utilities/billing-cli/internal/normalize"
)

func initStore(ctx context.Context) (history.Store, error) {
	switch cfg.History.Driver {
	case "memory":
		return history.NewMemory(), nil
	case "sqlite":
		dsn := cfg.History.DatabaseURL
		if dsn == "" {
			dsn = "billing.db"
		}
		return history.NewSQLite(dsn)
	case "postgres":
		return history.NewPostgres(ctx, cfg.History.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported history driver: %s", cfg.History.Driver)
	}
}

func initNormalizer() (*normalize.Normalizer, error) {
	if cfg.Normalize.SynonymsFile == "" {
		return normalize.New(), nil
	}

	table, err := normalize.LoadTable(cfg.Normalize.SynonymsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load synonyms table")
	}
	return normalize.NewWithTable(table), nil
}
