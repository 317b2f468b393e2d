package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// MongoStore persists to MongoDB, one collection per record type.
type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
	topics *mongo.Collection
	runs   *mongo.Collection
	logger *slog.Logger
}

// NewMongoStore connects to uri and ensures the indexes exist.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storageErr("mongodb", "connect", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storageErr("mongodb", "ping", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		posts:  db.Collection("posts"),
		topics: db.Collection("topics"),
		runs:   db.Collection("scrape_runs"),
		logger: logger.With("component", "mongo_store"),
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storageErr("mongodb", "create_indexes", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "topic_id", Value: 1}, {Key: "post_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_topic_post"),
		},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "topic_title", Value: 1}}},
		{Keys: bson.D{{Key: "author", Value: 1}}},
		{Keys: bson.D{{Key: "content_hash", Value: 1}}},
	}
	if _, err := s.posts.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("posts indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) UpsertTopics(ctx context.Context, topics []types.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(topics))
	for i, t := range topics {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: t.ID}}).
			SetReplacement(t).
			SetUpsert(true)
	}
	_, err := s.topics.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return storageErr("mongodb", "upsert_topics", err)
}

func (s *MongoStore) UpsertPosts(ctx context.Context, posts []*types.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, len(posts))
	for i, p := range posts {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "topic_id", Value: p.TopicID}, {Key: "post_number", Value: p.PostNumber}}).
			SetReplacement(p).
			SetUpsert(true)
	}
	res, err := s.posts.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, storageErr("mongodb", "upsert_posts", err)
	}
	written := int(res.UpsertedCount + res.MatchedCount)
	s.logger.Debug("posts upserted", "count", written, "inserted", res.UpsertedCount)
	return written, nil
}

func (s *MongoStore) FinalizeRun(ctx context.Context, run types.ScrapeRun) error {
	_, err := s.runs.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: run.ID}},
		run,
		options.Replace().SetUpsert(true),
	)
	return storageErr("mongodb", "finalize_run", err)
}

func (s *MongoStore) ListPosts(ctx context.Context, filter PostFilter) ([]*types.Post, error) {
	q := bson.D{}
	if filter.TopicID != 0 {
		q = append(q, bson.E{Key: "topic_id", Value: filter.TopicID})
	}
	if filter.Author != "" {
		q = append(q, bson.E{Key: "author", Value: filter.Author})
	}
	if filter.RunID != "" {
		q = append(q, bson.E{Key: "run_id", Value: filter.RunID})
	}
	if !filter.Since.IsZero() || !filter.Until.IsZero() {
		rng := bson.D{}
		if !filter.Since.IsZero() {
			rng = append(rng, bson.E{Key: "$gte", Value: filter.Since})
		}
		if !filter.Until.IsZero() {
			rng = append(rng, bson.E{Key: "$lte", Value: filter.Until})
		}
		q = append(q, bson.E{Key: "created_at", Value: rng})
	}

	opts := options.Find().SetSort(bson.D{{Key: "topic_id", Value: 1}, {Key: "post_number", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.posts.Find(ctx, q, opts)
	if err != nil {
		return nil, storageErr("mongodb", "list_posts", err)
	}
	var posts []*types.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, storageErr("mongodb", "list_posts", err)
	}
	return posts, nil
}

func (s *MongoStore) CountPosts(ctx context.Context) (int, error) {
	n, err := s.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, storageErr("mongodb", "count_posts", err)
	}
	return int(n), nil
}

func (s *MongoStore) ContentOwners(ctx context.Context) (map[string]types.PostKey, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "content_hash", Value: 1}, {Key: "topic_id", Value: 1}, {Key: "post_number", Value: 1}}).
		SetSort(bson.D{{Key: "topic_id", Value: 1}, {Key: "post_number", Value: 1}})
	cur, err := s.posts.Find(ctx, bson.D{{Key: "content_hash", Value: bson.D{{Key: "$ne", Value: ""}}}}, opts)
	if err != nil {
		return nil, storageErr("mongodb", "content_owners", err)
	}
	defer cur.Close(ctx)

	owners := make(map[string]types.PostKey)
	for cur.Next(ctx) {
		var doc struct {
			ContentHash string `bson:"content_hash"`
			TopicID     int64  `bson:"topic_id"`
			PostNumber  int    `bson:"post_number"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, storageErr("mongodb", "content_owners", err)
		}
		if _, ok := owners[doc.ContentHash]; !ok {
			owners[doc.ContentHash] = types.PostKey{TopicID: doc.TopicID, PostNumber: doc.PostNumber}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("mongodb", "content_owners", err)
	}
	return owners, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
