package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gatewaylabs/unigw/internal/observability"
)

const (
	recordsCollection    = "credentials"
	prioritiesCollection = "provider_priorities"
)

// MongoStore is the MongoDB-backed Store and PriorityStore.
type MongoStore struct {
	client     *mongo.Client
	records    *mongo.Collection
	priorities *mongo.Collection
	logger     observability.Logger
}

var (
	_ Store         = (*MongoStore)(nil)
	_ PriorityStore = (*MongoStore)(nil)
)

// NewMongoStore connects to MongoDB and prepares the credential
// collections and their indexes.
func NewMongoStore(ctx context.Context, uri, database string, logger observability.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:     client,
		records:    db.Collection(recordsCollection),
		priorities: db.Collection(prioritiesCollection),
		logger:     logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "provider", Value: 1},
			{Key: "environment", Value: 1},
			{Key: "is_active", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create credentials index: %w", err)
	}

	_, err = s.priorities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "category", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create priorities index: %w", err)
	}
	return nil
}

// Save implements Store. Older active records for the same triple are
// deactivated before the insert, keeping consolidation on the write
// path.
func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	filter := bson.M{
		"user_id":     rec.UserID,
		"provider":    rec.Provider,
		"environment": rec.Environment,
		"is_active":   true,
	}
	if _, err := s.records.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_active": false}}); err != nil {
		return fmt.Errorf("failed to deactivate previous credentials: %w", err)
	}

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true

	if _, err := s.records.InsertOne(ctx, &stored); err != nil {
		return fmt.Errorf("failed to insert credential record: %w", err)
	}
	return nil
}

// Active implements Store. The most recently created active record wins
// when historical duplicates exist.
func (s *MongoStore) Active(ctx context.Context, userID, provider string, env Environment) (*Record, error) {
	filter := bson.M{
		"user_id":     userID,
		"provider":    provider,
		"environment": env,
		"is_active":   true,
	}

	var rec Record
	err := s.records.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential record: %w", err)
	}
	return &rec, nil
}

// Deactivate implements Store.
func (s *MongoStore) Deactivate(ctx context.Context, userID, provider string, env Environment) error {
	filter := bson.M{
		"user_id":     userID,
		"provider":    provider,
		"environment": env,
		"is_active":   true,
	}
	result, err := s.records.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return fmt.Errorf("failed to deactivate credentials: %w", err)
	}

	s.logger.Debug("credentials deactivated",
		observability.String("user_id", userID),
		observability.String("provider", provider),
		observability.String("environment", env.String()),
		observability.Int64("modified", result.ModifiedCount),
	)
	return nil
}

// ActiveProviders implements Store.
func (s *MongoStore) ActiveProviders(ctx context.Context, userID string) (map[string][]Environment, error) {
	cursor, err := s.records.Find(ctx, bson.M{"user_id": userID, "is_active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string][]Environment)
	for cursor.Next(ctx) {
		var rec Record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode credential record: %w", err)
		}
		envs := out[rec.Provider]
		seen := false
		for _, env := range envs {
			if env == rec.Environment {
				seen = true
				break
			}
		}
		if !seen {
			out[rec.Provider] = append(envs, rec.Environment)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credential records: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// priorityDoc is the persisted provider-priority preference document.
type priorityDoc struct {
	UserID     string         `bson:"user_id"`
	Category   string         `bson:"category"`
	Priorities map[string]int `bson:"priorities"`
}

// Priorities implements PriorityStore.
func (s *MongoStore) Priorities(ctx context.Context, userID, category string) (map[string]int, error) {
	var doc priorityDoc
	err := s.priorities.FindOne(ctx, bson.M{"user_id": userID, "category": category}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load provider priorities: %w", err)
	}
	if doc.Priorities == nil {
		return map[string]int{}, nil
	}
	return doc.Priorities, nil
}

// SetPriorities implements PriorityStore.
func (s *MongoStore) SetPriorities(ctx context.Context, userID, category string, priorities map[string]int) error {
	doc := priorityDoc{UserID: userID, Category: category, Priorities: priorities}
	_, err := s.priorities.ReplaceOne(ctx,
		bson.M{"user_id": userID, "category": category},
		&doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save provider priorities: %w", err)
	}
	return nil
}
