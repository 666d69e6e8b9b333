package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName は、チェックポイントを保存するコレクションの名前です。
const CollectionName = "checkpoints"

// MongoStore は、スロットを _id にした1ドキュメントとして保存する Store です。
// 1回の ReplaceOne で置き換えるので、途中の状態は残りません。
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ConnectMongo は、MongoDB に接続して疎通を確認します。
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	slog.InfoContext(ctx, "connected to MongoDB", "database", database)
	return &MongoStore{client: client, collection: client.Database(database).Collection(CollectionName)}, nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": cp.Slot}, cp, options.Replace().SetUpsert(true))
	if err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, slot string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.collection.FindOne(ctx, bson.M{"_id": slot}).Decode(&cp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: ErrNotFound}
	}
	if err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: err}
	}
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: err}
	}
	return cp, nil
}

// infoDocument は、一覧表示に必要な項目だけを読むための射影です。
type infoDocument struct {
	Slot       string    `bson:"_id"`
	ID         string    `bson:"id"`
	SavedAt    time.Time `bson:"savedAt"`
	Characters int       `bson:"characters"`
}

func (s *MongoStore) List(ctx context.Context) ([]Info, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "savedAt", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "id", Value: 1},
			{Key: "savedAt", Value: 1},
			{Key: "characters", Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$snapshots", bson.A{}}}}}}},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []infoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	infos := make([]Info, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, Info{Slot: d.Slot, ID: d.ID, SavedAt: d.SavedAt.UTC(), Characters: d.Characters})
	}
	return infos, nil
}

func (s *MongoStore) Delete(ctx context.Context, slot string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": slot})
	if err != nil {
		return &PersistenceError{Op: "delete", Slot: slot, Err: err}
	}
	if res.DeletedCount == 0 {
		return &PersistenceError{Op: "delete", Slot: slot, Err: ErrNotFound}
	}
	return nil
}

var _ Store = (*MongoStore)(nil)
