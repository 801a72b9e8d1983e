package history

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// sessionDocument holds every turn of one session. Appends push onto Turns,
// so a session is only ever written by single-document updates.
type sessionDocument struct {
	ID      string `bson:"_id"`
	User    string `bson:"user"`
	Session string `bson:"session"`
	Turns   []Turn `bson:"turns"`
}

// MongoStore keeps one document per session in <database>.<collection>,
// keyed by Namespace.Key.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	ns     Namespace
}

// NewMongoStore creates a MongoDB-backed Store.
func NewMongoStore(client *mongo.Client, ns Namespace) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(ns.Database).Collection(ns.Collection),
		ns:     ns,
	}
}

// Load returns the session's turns in append order.
func (s *MongoStore) Load(ctx context.Context, session string) ([]Turn, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}

	var doc sessionDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: s.ns.Key(session)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrHistoryStore, session, err)
	}
	if doc.Turns == nil {
		return []Turn{}, nil
	}
	return doc.Turns, nil
}

// Append pushes turns onto the session document in one upserting update.
func (s *MongoStore) Append(ctx context.Context, session string, turns ...Turn) error {
	if err := checkSession(session); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	filter, update := s.appendUpdate(session, stamp(turns))
	if _, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("%w: append to %s: %w", ErrHistoryStore, session, err)
	}
	return nil
}

// appendUpdate builds the filter and $push update for one Append.
func (s *MongoStore) appendUpdate(session string, turns []Turn) (bson.D, bson.D) {
	filter := bson.D{{Key: "_id", Value: s.ns.Key(session)}}
	update := bson.D{
		{Key: "$push", Value: bson.D{
			{Key: "turns", Value: bson.D{{Key: "$each", Value: turns}}},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "user", Value: s.ns.User},
			{Key: "session", Value: session},
		}},
	}
	return filter, update
}

// Health pings the primary.
func (s *MongoStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrHistoryStore, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
