package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore persists transcripts as documents holding the JSON envelope
// verbatim, so a load reproduces exactly what was saved.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoTranscriptDocument struct {
	ID        string    `bson:"_id"`
	Entries   string    `bson:"entries"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects and pings before returning a usable store.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("store: mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("store: mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("store: mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

var _ Store = (*MongoStore)(nil)

func (s *MongoStore) Save(ctx context.Context, id string, t *transcript.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	doc := mongoTranscriptDocument{
		ID:        id,
		Entries:   string(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.collection.ReplaceOne(ctx,
		bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Load(ctx context.Context, id string) (*transcript.Transcript, error) {
	var doc mongoTranscriptDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := transcript.New()
	if err := json.Unmarshal([]byte(doc.Entries), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
