package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionValue struct {
	SessionID string    `bson:"session_id"`
	Key       string    `bson:"key"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend keeps one document per session key so that dotted keys such
// as "cart.items" never turn into field paths.
type MongoBackend struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoBackend(db *mongo.Database, ttl time.Duration) *MongoBackend {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MongoBackend{
		collection: db.Collection("sessions"),
		ttl:        ttl,
	}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoBackend) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	var doc sessionValue

	filter := bson.M{"session_id": sessionID, "key": key}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to get session value: %w", err)
	}

	return doc.Value, nil
}

func (m *MongoBackend) Remember(ctx context.Context, sessionID, key string, value []byte) error {
	filter := bson.M{"session_id": sessionID, "key": key}
	update := bson.M{"$set": sessionValue{
		SessionID: sessionID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert session value: %w", err)
	}
	return nil
}

func (m *MongoBackend) Forget(ctx context.Context, sessionID, key string) error {
	filter := bson.M{"session_id": sessionID, "key": key}
	if _, err := m.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete session value: %w", err)
	}
	return nil
}

func (m *MongoBackend) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}

func (m *MongoBackend) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(m.ttl.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
