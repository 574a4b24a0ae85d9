package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/internal/cart/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartDocument keeps the persisted cart as the same opaque JSON blob the cache holds,
// so money values survive without a decimal codec.
type cartDocument struct {
	SessionID string    `bson:"session_id"`
	Storage   string    `bson:"storage"`
	Data      string    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoRepository stores carts in the "carts" collection keyed by session id.
type MongoRepository struct {
	collection *mongo.Collection
}

func (m MongoRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var doc cartDocument

	filter := bson.M{"session_id": sessionID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var p domain.Persisted
	if err := json.Unmarshal([]byte(doc.Data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode cart %s: %w", sessionID, err)
	}

	cart := domain.FromPersisted(p)
	return &cart, nil
}

func (m MongoRepository) SaveCart(ctx context.Context, sessionID string, cart domain.Cart) error {
	data, err := json.Marshal(cart.Persisted())
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	now := time.Now()
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$set": bson.M{
			"storage":    domain.StorageName,
			"data":       string(data),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	_, err = m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

// DeleteCart is idempotent: deleting a missing cart is not an error.
func (m MongoRepository) DeleteCart(ctx context.Context, sessionID string) error {
	filter := bson.M{"session_id": sessionID}

	_, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}
