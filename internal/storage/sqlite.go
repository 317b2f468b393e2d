package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout keeps stored timestamps fixed-width so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

const upsertPostSQL = `
INSERT INTO posts (
    topic_id, post_number, post_id, author, created_at, updated_at, date_unparsed,
    content, raw_content, reply_count, like_count, topic_title, topic_url, category,
    content_hash, extracted_via, run_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (topic_id, post_number) DO UPDATE SET
    post_id       = excluded.post_id,
    author        = excluded.author,
    created_at    = excluded.created_at,
    updated_at    = excluded.updated_at,
    date_unparsed = excluded.date_unparsed,
    content       = excluded.content,
    raw_content   = excluded.raw_content,
    reply_count   = excluded.reply_count,
    like_count    = excluded.like_count,
    topic_title   = excluded.topic_title,
    topic_url     = excluded.topic_url,
    category      = excluded.category,
    content_hash  = excluded.content_hash,
    extracted_via = excluded.extracted_via,
    run_id        = excluded.run_id`

const upsertTopicSQL = `
INSERT INTO topics (
    id, title, slug, category, category_id, created_at, last_activity_at, url,
    posts_count, views, relevance, source, seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    title            = excluded.title,
    slug             = excluded.slug,
    category         = excluded.category,
    category_id      = excluded.category_id,
    created_at       = excluded.created_at,
    last_activity_at = excluded.last_activity_at,
    url              = excluded.url,
    posts_count      = excluded.posts_count,
    views            = excluded.views,
    relevance        = excluded.relevance,
    source           = excluded.source,
    seen_at          = excluded.seen_at`

const upsertRunSQL = `
INSERT INTO scrape_runs (
    id, started_at, finished_at, base_url, window_start, window_end,
    topics_discovered, posts_persisted, posts_rejected, tool_version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    started_at        = excluded.started_at,
    finished_at       = excluded.finished_at,
    base_url          = excluded.base_url,
    window_start      = excluded.window_start,
    window_end        = excluded.window_end,
    topics_discovered = excluded.topics_discovered,
    posts_persisted   = excluded.posts_persisted,
    posts_rejected    = excluded.posts_rejected,
    tool_version      = excluded.tool_version`

const postColumns = `topic_id, post_number, post_id, author, created_at, updated_at, date_unparsed,
    content, raw_content, reply_count, like_count, topic_title, topic_url, category,
    content_hash, extracted_via, run_id`

// SQLiteStore persists to an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the database at path and applies pending
// migrations.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, storageErr("sqlite", "open", errors.New("empty database path"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("sqlite", "open", fmt.Errorf("create db dir: %w", err))
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("sqlite", "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("sqlite", "open", err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger.With("component", "sqlite_store")}
	version, err := s.migrate()
	if err != nil {
		db.Close()
		return nil, storageErr("sqlite", "migrate", err)
	}
	s.logger.Debug("sqlite store ready", "path", path, "schema_version", version)
	return s, nil
}

func (s *SQLiteStore) migrate() (uint, error) {
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close s.db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) UpsertTopics(ctx context.Context, topics []types.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	seenAt := formatTime(time.Now())
	err := s.inTx(ctx, upsertTopicSQL, func(stmt *sql.Stmt) error {
		for _, t := range topics {
			if _, err := stmt.ExecContext(ctx,
				t.ID, t.Title, t.Slug, t.Category, t.CategoryID,
				formatTime(t.CreatedAt), formatTime(t.LastActivityAt), t.URL,
				t.PostsCount, t.Views, t.Relevance, t.Source, seenAt,
			); err != nil {
				return fmt.Errorf("topic %d: %w", t.ID, err)
			}
		}
		return nil
	})
	return storageErr("sqlite", "upsert_topics", err)
}

func (s *SQLiteStore) UpsertPosts(ctx context.Context, posts []*types.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	written := 0
	err := s.inTx(ctx, upsertPostSQL, func(stmt *sql.Stmt) error {
		for _, p := range posts {
			if _, err := stmt.ExecContext(ctx,
				p.TopicID, p.PostNumber, p.PostID, p.Author,
				formatTime(p.CreatedAt), formatTime(p.UpdatedAt), p.DateUnparsed,
				p.Content, p.RawContent, p.ReplyCount, p.LikeCount,
				p.TopicTitle, p.TopicURL, p.Category,
				p.ContentHash, string(p.ExtractedVia), p.RunID,
			); err != nil {
				return fmt.Errorf("post %s: %w", p.Key(), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("sqlite", "upsert_posts", err)
	}
	s.logger.Debug("posts upserted", "count", written)
	return written, nil
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, run types.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, upsertRunSQL,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.BaseURL,
		formatTime(run.WindowStart), formatTime(run.WindowEnd),
		run.TopicsDiscovered, run.PostsPersisted, run.PostsRejected, run.ToolVersion,
	)
	return storageErr("sqlite", "finalize_run", err)
}

func (s *SQLiteStore) ListPosts(ctx context.Context, filter PostFilter) ([]*types.Post, error) {
	var where []string
	var args []any
	if filter.TopicID != 0 {
		where = append(where, "topic_id = ?")
		args = append(args, filter.TopicID)
	}
	if filter.Author != "" {
		where = append(where, "author = ?")
		args = append(args, filter.Author)
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(filter.Until))
	}

	q := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY topic_id, post_number"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("sqlite", "list_posts", err)
	}
	defer rows.Close()

	var posts []*types.Post
	for rows.Next() {
		var (
			p                types.Post
			created, updated string
			via              string
		)
		if err := rows.Scan(
			&p.TopicID, &p.PostNumber, &p.PostID, &p.Author, &created, &updated, &p.DateUnparsed,
			&p.Content, &p.RawContent, &p.ReplyCount, &p.LikeCount, &p.TopicTitle, &p.TopicURL, &p.Category,
			&p.ContentHash, &via, &p.RunID,
		); err != nil {
			return nil, storageErr("sqlite", "list_posts", err)
		}
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		p.ExtractedVia = types.Surface(via)
		posts = append(posts, &p)
	}
	return posts, storageErr("sqlite", "list_posts", rows.Err())
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, storageErr("sqlite", "count_posts", err)
	}
	return n, nil
}

func (s *SQLiteStore) ContentOwners(ctx context.Context) (map[string]types.PostKey, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content_hash, topic_id, post_number FROM posts
WHERE content_hash <> ''
ORDER BY topic_id, post_number`)
	if err != nil {
		return nil, storageErr("sqlite", "content_owners", err)
	}
	defer rows.Close()

	owners := make(map[string]types.PostKey)
	for rows.Next() {
		var (
			hash string
			key  types.PostKey
		)
		if err := rows.Scan(&hash, &key.TopicID, &key.PostNumber); err != nil {
			return nil, storageErr("sqlite", "content_owners", err)
		}
		if _, ok := owners[hash]; !ok {
			owners[hash] = key
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite", "content_owners", err)
	}
	return owners, nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Debug("sqlite store closing", "path", s.path)
	return s.db.Close()
}

// inTx prepares query inside a transaction and hands the statement to fn.
func (s *SQLiteStore) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
