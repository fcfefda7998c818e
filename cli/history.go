package cli

import (
	"context"
	"io"
	"strings"

	"github.com/phaseline/phaseline"
	"github.com/phaseline/phaseline/history/postgres"
	"github.com/phaseline/phaseline/history/sqlite"
)

// openHistory picks and opens a history store from a URL. An empty URL
// falls back to the framework's in-memory history (no persistence).
// Returns a closer for stores that hold a database handle.
func openHistory(ctx context.Context, url string) (phaseline.HistoryRepository, io.Closer, error) {
	if url == "" {
		return nil, nil, nil
	}

	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		h, err := postgres.Open(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return h, h, nil

	case strings.HasPrefix(lower, "sqlite://"):
		h, err := sqlite.Open(ctx, url[len("sqlite://"):])
		if err != nil {
			return nil, nil, err
		}
		return h, h, nil

	default:
		// Bare paths (state.db, :memory:) are treated as SQLite.
		h, err := sqlite.Open(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return h, h, nil
	}
}

// wireHistory resolves the history URL from flag > env > config and installs
// the store on the framework.
func wireHistory(ctx context.Context, fw *phaseline.Framework, explicit, envName string) (io.Closer, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	resolved, err := ResolveEnvironment(cfg, envName)
	if err != nil {
		return nil, err
	}

	url := explicit
	if url == "" {
		url = resolved.HistoryURL
	}

	h, closer, err := openHistory(ctx, url)
	if err != nil {
		return nil, err
	}
	if h != nil {
		fw.SetHistory(h)
	}
	return closer, nil
}
