// Package mongo stores financial records as one MongoDB document per user.
// Every write is a single FindOneAndUpdate so merges are atomic on the server.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"budgetsync/internal/core"
	"budgetsync/internal/records"
)

const (
	DefaultDatabase   = "budgetsync"
	DefaultCollection = "usersDetails"

	fieldUserID      = "firebaseUid"
	fieldTotalBudget = "totalBudget"
	fieldSnapshot    = "expenseSnapshot"
	fieldAllocations = "budgetAllocations"
)

type document struct {
	UserID            string             `bson:"firebaseUid"`
	TotalBudget       float64            `bson:"totalBudget"`
	ExpenseSnapshot   map[string]float64 `bson:"expenseSnapshot,omitempty"`
	BudgetAllocations map[string]float64 `bson:"budgetAllocations,omitempty"`
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ records.Store = (*Store)(nil)

// New connects to uri and makes sure the per-user unique index exists.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("missing MongoDB URI")
	}
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldUserID, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create user index: %w", err)
	}

	slog.InfoContext(ctx, "Connected to MongoDB", "database", database, "collection", collection)
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping MongoDB: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

func (s *Store) GetTotalBudget(ctx context.Context, uid string) (float64, error) {
	doc, err := s.findOne(ctx, uid, fieldTotalBudget)
	if err != nil {
		return 0, err
	}
	return doc.TotalBudget, nil
}

func (s *Store) SetTotalBudget(ctx context.Context, uid string, amount float64) (float64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: fieldTotalBudget, Value: 1}})

	var doc document
	err := s.coll.FindOneAndUpdate(ctx, byUser(uid),
		bson.D{{Key: "$set", Value: bson.D{{Key: fieldTotalBudget, Value: amount}}}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("upsert total budget: %w", err)
	}
	return doc.TotalBudget, nil
}

func (s *Store) GetLatestExpenseSnapshot(ctx context.Context, uid string) (core.Snapshot, error) {
	doc, err := s.findOne(ctx, uid, fieldSnapshot)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot(doc.ExpenseSnapshot).Clone(), nil
}

// MergeExpenseSnapshot runs the merge as an aggregation-pipeline upsert and
// asks for the pre-image: its absence means the record was created, and the
// merged snapshot is the pre-image's snapshot with the delta applied.
func (s *Store) MergeExpenseSnapshot(ctx context.Context, uid string, delta core.Delta) (core.MergeResult, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before).
		SetProjection(bson.D{{Key: fieldSnapshot, Value: 1}})

	var before document
	err := s.coll.FindOneAndUpdate(ctx, byUser(uid), mergePipeline(fieldSnapshot, delta), opts).Decode(&before)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return core.MergeResult{Snapshot: core.MergeSnapshot(nil, delta), Created: true}, nil
	case err != nil:
		return core.MergeResult{}, fmt.Errorf("merge expense snapshot: %w", err)
	}
	return core.MergeResult{Snapshot: core.MergeSnapshot(before.ExpenseSnapshot, delta)}, nil
}

func (s *Store) GetAllocations(ctx context.Context, uid string) (core.Allocations, error) {
	doc, err := s.findOne(ctx, uid, fieldAllocations)
	if err != nil {
		return core.Allocations{}, err
	}
	return core.Allocations(doc.BudgetAllocations).Clone(), nil
}

func (s *Store) SetAllocations(ctx context.Context, uid string, update core.Allocations) (core.Allocations, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: fieldAllocations, Value: 1}})

	var doc document
	err := s.coll.FindOneAndUpdate(ctx, byUser(uid), mergePipeline(fieldAllocations, update), opts).Decode(&doc)
	if err != nil {
		return core.Allocations{}, fmt.Errorf("merge allocations: %w", err)
	}
	return core.Allocations(doc.BudgetAllocations).Clone(), nil
}

func (s *Store) findOne(ctx context.Context, uid, field string) (document, error) {
	var doc document
	opts := options.FindOne().SetProjection(bson.D{{Key: field, Value: 1}})
	err := s.coll.FindOne(ctx, byUser(uid), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return document{}, records.ErrNotFound
	}
	if err != nil {
		return document{}, fmt.Errorf("find record: %w", err)
	}
	return doc, nil
}

func byUser(uid string) bson.D {
	return bson.D{{Key: fieldUserID, Value: uid}}
}

// mergePipeline sets field to {...field, ...values}. $literal keeps category
// names that look like operators from being interpreted. totalBudget defaults
// to 0 on first creation.
func mergePipeline(field string, values map[string]float64) mongo.Pipeline {
	literal := bson.D{}
	for k, v := range values {
		literal = append(literal, bson.E{Key: k, Value: v})
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: field, Value: bson.D{{Key: "$mergeObjects", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, bson.D{}}}},
				bson.D{{Key: "$literal", Value: literal}},
			}}}},
			{Key: fieldTotalBudget, Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + fieldTotalBudget, 0}}}},
		}}},
	}
}
