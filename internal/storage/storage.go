package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Store is the interface for all persistence backends. Writes are
// idempotent upserts keyed by topic id and (topic id, post number).
type Store interface {
	UpsertTopics(ctx context.Context, topics []types.Topic) error

	// UpsertPosts writes a batch and returns how many posts it wrote.
	UpsertPosts(ctx context.Context, posts []*types.Post) (int, error)

	// FinalizeRun writes the run row. It is called once per run.
	FinalizeRun(ctx context.Context, run types.ScrapeRun) error

	ListPosts(ctx context.Context, filter PostFilter) ([]*types.Post, error)
	CountPosts(ctx context.Context) (int, error)

	// ContentOwners maps every stored content hash to the post holding it.
	// When several posts share a hash the lowest key is returned.
	ContentOwners(ctx context.Context) (map[string]types.PostKey, error)

	// Close releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// PostFilter narrows ListPosts. Zero fields do not filter.
type PostFilter struct {
	TopicID int64
	Author  string
	RunID   string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Open creates the backend named by cfg.Type.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		s, err := NewSQLiteStore(ctx, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongodb":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func storageErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &types.StorageError{Backend: backend, Op: op, Err: err}
}
