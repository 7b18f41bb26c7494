package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jerrybase-cli/internal/config"
	"github.com/sells-group/jerrybase-cli/internal/fetcher"
	"github.com/sells-group/jerrybase-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "jerrybase.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newPageFetcher(c config.ScrapeConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:     c.UserAgent,
		Timeout:       c.Timeout(),
		MaxAttempts:   c.MaxAttempts,
		RatePerSecond: c.MaxRPS,
	})
}
