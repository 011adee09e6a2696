package eventlog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the collection holding attendance activity events.
const CollectionName = "events"

// Event types written by the attendance ledger and the visitor directory.
const (
	TypeQRScan           = "qr_scan"
	TypeFaceVerification = "face_verification"
	TypeDeparture        = "departure"
	TypeServerActivity   = "server_activity"
	TypeUserCreated      = "user_created"
)

// Event is a single activity line shown on the operator console.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	Type      string             `bson:"type" json:"type"`
	UserID    string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	UserName  string             `bson:"user_name,omitempty" json:"user_name,omitempty"`
	Success   bool               `bson:"success" json:"success"`
	Message   string             `bson:"message,omitempty" json:"message,omitempty"`
}

// Store persists activity events.
type Store struct {
	c *mongo.Collection
}

// New creates a Store backed by the events collection of db.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// EnsureIndexes creates the timestamp and per-user indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_events_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_events_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Record inserts an event, filling the id and timestamp when unset.
func (s *Store) Record(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Recent returns the newest events, optionally restricted to a user.
func (s *Store) Recent(ctx context.Context, userID string, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	events := make([]Event, 0)
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
