package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vibemeet/vibemeet/internal/domain"
)

// Mongo persists rooms, messages and participants in three collections.
// Message expiry is delegated to a TTL index on the timestamp field.
type Mongo struct {
	client       *mongo.Client
	rooms        *mongo.Collection
	messages     *mongo.Collection
	participants *mongo.Collection
}

func NewMongo(ctx context.Context, uri, db string, retention time.Duration) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := &Mongo{
		client:       client,
		rooms:        client.Database(db).Collection("rooms"),
		messages:     client.Database(db).Collection("messages"),
		participants: client.Database(db).Collection("participants"),
	}
	if err := m.ensureIndexes(ctx, retention); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context, retention time.Duration) error {
	_, err := m.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		},
		{
			Keys:    bson.D{{Key: "messageId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("message indexes: %w", err)
	}
	_, err = m.participants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("participant index: %w", err)
	}
	_, err = m.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("room index: %w", err)
	}
	return nil
}

func (m *Mongo) SaveMessage(ctx context.Context, msg *domain.Message) error {
	_, err := m.messages.UpdateOne(ctx,
		bson.M{"messageId": msg.ID},
		bson.M{"$set": msg},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) Messages(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := m.messages.Find(ctx, bson.M{"roomId": roomID}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	// Query is newest-first; callers expect append order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (m *Mongo) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := m.participants.UpdateOne(ctx,
		bson.M{"roomId": p.RoomID, "userId": p.UserID},
		bson.M{"$set": p},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) UpdateParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, upd domain.ParticipantUpdate) error {
	set := bson.M{}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.ConnID != nil {
		set["connId"] = *upd.ConnID
	}
	if upd.LastSeen != nil {
		set["lastSeen"] = *upd.LastSeen
	}
	if len(set) == 0 {
		return nil
	}
	res, err := m.participants.UpdateOne(ctx,
		bson.M{"roomId": roomID, "userId": userID},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	cur, err := m.participants.Find(ctx, bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "joinTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var ps []domain.Participant
	if err := cur.All(ctx, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (m *Mongo) FindParticipantByConn(ctx context.Context, connID domain.ConnID) (*domain.Participant, error) {
	if connID == "" {
		return nil, ErrNotFound
	}
	var p domain.Participant
	err := m.participants.FindOne(ctx, bson.M{"connId": connID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Mongo) MarkStaleOffline(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := m.participants.UpdateMany(ctx,
		bson.M{"status": domain.StatusOnline, "lastSeen": bson.M{"$lt": olderThan}},
		bson.M{"$set": bson.M{"status": domain.StatusOffline, "connId": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) Room(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	err := m.rooms.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (m *Mongo) CreateRoom(ctx context.Context, room *domain.Room) error {
	// $setOnInsert keeps the original creator if two first-joins race.
	_, err := m.rooms.UpdateOne(ctx,
		bson.M{"roomId": room.ID},
		bson.M{"$setOnInsert": room},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) TouchRoom(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	_, err := m.rooms.UpdateOne(ctx,
		bson.M{"roomId": roomID},
		bson.M{"$set": bson.M{"lastActivity": at}},
	)
	return err
}

func (m *Mongo) DeleteRoom(ctx context.Context, roomID domain.RoomID) (Purged, error) {
	msgRes, err := m.messages.DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return Purged{}, err
	}
	partRes, err := m.participants.DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return Purged{}, err
	}
	if _, err := m.rooms.DeleteOne(ctx, bson.M{"roomId": roomID}); err != nil {
		return Purged{}, err
	}
	return Purged{Messages: msgRes.DeletedCount, Participants: partRes.DeletedCount}, nil
}

func (m *Mongo) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil) == nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
