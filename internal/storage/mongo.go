package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/maximcoj/teleblog/core/logger"
)

// MongoBackend stores each collection in the MongoDB collection of the same
// name, with the record id as _id.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Backend = (*MongoBackend)(nil)

// NewMongoBackend connects to uri, verifies the primary answers and ensures
// the indexes every collection relies on.
func NewMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	start := time.Now()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	b := &MongoBackend{client: client, db: client.Database(database)}
	if err := b.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Storage.Info("mongo connected",
		slog.String("event", "storage.connect"),
		slog.String("status", "ok"),
		slog.String("backend", "mongo"),
		slog.String("db", database),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return b, nil
}

func (b *MongoBackend) ensureIndexes(ctx context.Context) error {
	for c, keys := range uniqueFields {
		models := make([]mongo.IndexModel, 0, len(keys))
		for _, k := range keys {
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: k, Value: 1}},
				Options: options.Index().SetUnique(true).SetName(k + "_unique"),
			})
		}
		if _, err := b.db.Collection(string(c)).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo indexes %s: %w", c, err)
		}
	}
	_, err := b.db.Collection(string(Posts)).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "blogId", Value: 1}},
		Options: options.Index().SetName("blogId"),
	})
	if err != nil {
		return fmt.Errorf("mongo indexes %s: %w", Posts, err)
	}
	return nil
}

func (b *MongoBackend) Name() string { return "mongo" }

func (b *MongoBackend) collection(c Collection) (*mongo.Collection, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	return b.db.Collection(string(c)), nil
}

// toBSON converts a JSON value into the bson form the driver stores, so that
// numbers keep the type they would have after a round trip through a document.
func toBSON(v any) (bson.M, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func filterBSON(f Filter) (bson.M, error) {
	if len(f) == 0 {
		return bson.M{}, nil
	}
	m, err := toBSON(map[string]any(f))
	if err != nil {
		return nil, fmt.Errorf("mongo filter: %w", err)
	}
	return m, nil
}

func patchBSON(p Patch) (bson.M, error) {
	update := bson.M{}
	if len(p.Set) > 0 {
		set, err := toBSON(p.Set)
		if err != nil {
			return nil, fmt.Errorf("mongo patch: %w", err)
		}
		update["$set"] = set
	}
	if len(p.Inc) > 0 {
		inc := bson.M{}
		for k, v := range p.Inc {
			inc[k] = v
		}
		update["$inc"] = inc
	}
	return update, nil
}

// fromBSON renders a stored document as relaxed extended JSON without _id.
func fromBSON(raw bson.Raw) (Document, error) {
	var m bson.D
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := m[:0]
	for _, e := range m {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	data, err := bson.MarshalExtJSON(out, false, false)
	if err != nil {
		return nil, err
	}
	return Document(data), nil
}

func (b *MongoBackend) Create(ctx context.Context, c Collection, id string, doc Document) error {
	coll, err := b.collection(c)
	if err != nil {
		return err
	}
	var m bson.D
	if err := bson.UnmarshalExtJSON(doc, false, &m); err != nil {
		return fmt.Errorf("mongo create: %w", err)
	}
	m = append(bson.D{{Key: "_id", Value: id}}, m...)
	if _, err := coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return fmt.Errorf("mongo create: %w", err)
	}
	return nil
}

func (b *MongoBackend) Read(ctx context.Context, c Collection, id string) (Document, error) {
	coll, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	raw, err := coll.FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo read: %w", err)
	}
	return fromBSON(raw)
}

func (b *MongoBackend) Update(ctx context.Context, c Collection, id string, p Patch) (Document, error) {
	if p.IsZero() {
		return b.Read(ctx, c, id)
	}
	coll, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	update, err := patchBSON(p)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	raw, err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return nil, fmt.Errorf("mongo update: %w", err)
	}
	return fromBSON(raw)
}

func (b *MongoBackend) Delete(ctx context.Context, c Collection, id string) error {
	coll, err := b.collection(c)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *MongoBackend) List(ctx context.Context, c Collection, f Filter) ([]Document, error) {
	coll, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	filter, err := filterBSON(f)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo list: %w", err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		doc, err := fromBSON(cur.Current)
		if err != nil {
			return nil, fmt.Errorf("mongo list: %w", err)
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo list: %w", err)
	}
	return out, nil
}

func (b *MongoBackend) UpdateMany(ctx context.Context, c Collection, f Filter, p Patch) (int64, error) {
	if p.IsZero() {
		return b.Count(ctx, c, f)
	}
	coll, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	filter, err := filterBSON(f)
	if err != nil {
		return 0, err
	}
	update, err := patchBSON(p)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("mongo update many: %w", err)
	}
	return res.MatchedCount, nil
}

func (b *MongoBackend) DeleteMany(ctx context.Context, c Collection, f Filter) (int64, error) {
	coll, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	filter, err := filterBSON(f)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo delete many: %w", err)
	}
	return res.DeletedCount, nil
}

func (b *MongoBackend) Count(ctx context.Context, c Collection, f Filter) (int64, error) {
	coll, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	filter, err := filterBSON(f)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return n, nil
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
