package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL. Non-2xx
	// responses are returned as *types.FetchError.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher backend named by kind ("http" or "browser").
func New(kind string, cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	var (
		f   Fetcher
		err error
	)
	switch kind {
	case "", "http":
		f, err = NewHTTPFetcher(&cfg.Fetcher, logger)
	case "browser":
		f, err = NewBrowserFetcher(&cfg.Fetcher, logger, WithMaxPages(cfg.Engine.MaxWorkers))
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
