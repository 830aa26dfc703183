package mirror

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

// MongoSink keeps one document per token in the "tokens" collection, keyed by
// token id.
type MongoSink struct {
	DB     *mongo.Database
	client *mongo.Client
}

func NewMongoSink(ctx context.Context, connString string) (*MongoSink, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(connString))
	if err != nil {
		return nil, err
	}

	dbName := "gamedata"
	if cs, err := connstring.ParseAndValidate(connString); err == nil && cs.Database != "" {
		dbName = cs.Database
	}
	db := client.Database(dbName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
	}
	if _, err := db.Collection("tokens").Indexes().CreateMany(ctx, indexes); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return &MongoSink{DB: db, client: client}, nil
}

func (s *MongoSink) Write(ctx context.Context, tokenID uint64, doc []byte) error {
	var m bson.M
	if err := bson.UnmarshalExtJSON(doc, false, &m); err != nil {
		return err
	}
	m["_id"] = int64(tokenID)
	_, err := s.DB.Collection("tokens").ReplaceOne(ctx,
		bson.M{"_id": int64(tokenID)},
		m,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoSink) Delete(ctx context.Context, tokenID uint64) error {
	_, err := s.DB.Collection("tokens").DeleteOne(ctx, bson.M{"_id": int64(tokenID)})
	return err
}

func (s *MongoSink) Get(ctx context.Context, tokenID uint64) ([]byte, error) {
	var m bson.M
	err := s.DB.Collection("tokens").FindOne(ctx, bson.M{"_id": int64(tokenID)}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	delete(m, "_id")
	return bson.MarshalExtJSON(m, false, false)
}

func (s *MongoSink) Close() error {
	return s.client.Disconnect(context.Background())
}
