package async

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultLaneCollection is the collection lane progress is stored in.
const DefaultLaneCollection = "_async_lanes"

// laneStore abstracts the lane collection for testing purposes
type laneStore interface {
	find(ctx context.Context, lane string) (laneDoc, error)
	advance(ctx context.Context, info Info) error
}

// laneDoc is the MongoDB document structure for lane progress.
type laneDoc struct {
	Lane          string    `bson:"_id"`
	LastIndexedTo int64     `bson:"lastIndexedTo"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

type mongoLaneStore struct {
	collection *mongo.Collection
}

func (s mongoLaneStore) find(ctx context.Context, lane string) (laneDoc, error) {
	var doc laneDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": lane}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return laneDoc{}, ErrLaneNotFound
	}
	return doc, err
}

func (s mongoLaneStore) advance(ctx context.Context, info Info) error {
	update := bson.M{
		"$max": bson.M{"lastIndexedTo": info.LastIndexedTo},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": info.Lane}, update, opts)
	return err
}

// MongoProvider stores lane progress in a MongoDB collection, one document
// per lane. Stored watermarks never move backwards.
type MongoProvider struct {
	store laneStore
}

var (
	_ Provider = (*MongoProvider)(nil)
	_ Reporter = (*MongoProvider)(nil)
)

// NewMongoProvider creates a provider on the given collection of db.
func NewMongoProvider(db *mongo.Database, collection string) *MongoProvider {
	if collection == "" {
		collection = DefaultLaneCollection
	}
	return &MongoProvider{store: mongoLaneStore{collection: db.Collection(collection)}}
}

// LaneInfo implements Provider.
func (p *MongoProvider) LaneInfo(ctx context.Context, lane string) (Info, error) {
	doc, err := p.store.find(ctx, lane)
	if errors.Is(err, ErrLaneNotFound) {
		return Info{}, err
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to load lane %s: %w", lane, err)
	}
	return Info{Lane: doc.Lane, LastIndexedTo: doc.LastIndexedTo}, nil
}

// Report implements Reporter.
func (p *MongoProvider) Report(ctx context.Context, info Info) error {
	if info.Lane == "" {
		return errors.New("lane name is required")
	}
	if err := p.store.advance(ctx, info); err != nil {
		return fmt.Errorf("failed to save lane %s: %w", info.Lane, err)
	}
	return nil
}
