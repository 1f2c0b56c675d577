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

const chatsCollection = "chats"

// MongoStore implements Store on a MongoDB collection with one document per session.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to uri and ensures the session id index exists.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(chatsCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return newMongoStore(client, coll), nil
}

func newMongoStore(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll, now: time.Now}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, sess *Session) error {
	doc := sess.Clone()
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	// $push needs arrays, never null.
	if doc.Messages == nil {
		doc.Messages = []Message{}
	}
	if doc.AISuggestions == nil {
		doc.AISuggestions = []Suggestion{}
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.coll.FindOne(ctx, bson.M{"sessionId": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	set := bson.M{"updatedAt": s.now().UTC()}
	if patch.Preferences != nil {
		set["preferences"] = patch.Preferences
	}
	if patch.WeatherData != nil {
		set["weatherData"] = patch.WeatherData
	}

	var sess Session
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"sessionId": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	return s.push(ctx, id, "messages", msg)
}

func (s *MongoStore) AppendSuggestion(ctx context.Context, id string, sug Suggestion) error {
	return s.push(ctx, id, "aiSuggestions", sug)
}

func (s *MongoStore) push(ctx context.Context, id, field string, value any) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"sessionId": id},
		bson.M{
			"$push": bson.M{field: value},
			"$set":  bson.M{"updatedAt": s.now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error) {
	filter := bson.M{"userId": userID}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	result := []Summary{}
	for cur.Next(ctx) {
		var sess Session
		if err := cur.Decode(&sess); err != nil {
			return nil, 0, err
		}
		result = append(result, sess.Summarize())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return result, int(total), nil
}

func (s *MongoStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"updatedAt": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
