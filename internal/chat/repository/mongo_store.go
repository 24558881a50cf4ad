package repository

import (
	"context"
	"time"

	"social_chat_service/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongo date resolution
const mongoTick = time.Millisecond

// MongoStore ChatStore on mongo. Append needs a replica set (transactions)
type MongoStore struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
	now           func() time.Time
}

// NewMongoStore create MongoStore
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:        db.Client(),
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		now:           time.Now,
	}
}

// EnsureIndexes unique pair, message order, idempotent client id
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_a", Value: 1}, {Key: "member_b", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pair_unique"),
		},
		{Keys: bson.D{{Key: "member_a", Value: 1}, {Key: "last_message_at", Value: -1}}},
		{Keys: bson.D{{Key: "member_b", Value: 1}, {Key: "last_message_at", Value: -1}}},
	}); err != nil {
		return errors.Wrap(err, "mongoStore.EnsureIndexes: ")
	}

	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sender_client_unique").
				SetPartialFilterExpression(bson.M{"client_id": bson.M{"$exists": true}}),
		},
	}); err != nil {
		return errors.Wrap(err, "mongoStore.EnsureIndexes: ")
	}
	return nil
}

func (s *MongoStore) FindOrCreate(ctx context.Context, memberA, memberB string) (*domain.Conversation, error) {
	filter := bson.M{"member_a": memberA, "member_b": memberB}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":                    uuid.New().String(),
		"last_message_text":      "",
		"last_message_sender_id": "",
		"unread_a":               0,
		"unread_b":               0,
		"created_at":             s.now().UTC().Truncate(mongoTick),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c domain.Conversation
	err := s.conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race, the other insert is visible now
		err = s.conversations.FindOne(ctx, filter).Decode(&c)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.FindOrCreate: ")
	}
	return normalizeConversation(&c), nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.FindByID: ")
	}
	return normalizeConversation(&c), nil
}

func (s *MongoStore) ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	filter := bson.M{"$or": []bson.M{{"member_a": memberID}, {"member_b": memberID}}}
	// missing last_message_at sorts last in descending order
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}})

	cur, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListByMember: ")
	}
	out := make([]domain.Conversation, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListByMember: ")
	}
	for i := range out {
		normalizeConversation(&out[i])
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, conversationID, memberID string, at time.Time) (*domain.Conversation, error) {
	conv, err := s.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(memberID) {
		return nil, ErrNotFound
	}

	side := "b"
	if conv.MemberA == memberID {
		side = "a"
	}
	at = at.UTC().Truncate(mongoTick)

	var c domain.Conversation
	err = s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_read_at_" + side: at, "unread_" + side: 0}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.MarkRead: ")
	}
	return normalizeConversation(&c), nil
}

func (s *MongoStore) Latest(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	msgs, err := s.findMessages(ctx, bson.M{"conversation_id": conversationID}, -1, limit)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.Latest: ")
	}
	return reverse(msgs), nil
}

func (s *MongoStore) Since(ctx context.Context, conversationID string, after time.Time, limit int) ([]domain.Message, error) {
	msgs, err := s.findMessages(ctx, bson.M{
		"conversation_id": conversationID,
		"created_at":      bson.M{"$gt": after.UTC()},
	}, 1, limit)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.Since: ")
	}
	return msgs, nil
}

func (s *MongoStore) Before(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	msgs, err := s.findMessages(ctx, bson.M{
		"conversation_id": conversationID,
		"created_at":      bson.M{"$lt": before.UTC()},
	}, -1, limit)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.Before: ")
	}
	return reverse(msgs), nil
}

// Append runs in a transaction; the $inc on seq takes the document write lock first
func (s *MongoStore) Append(ctx context.Context, msg domain.Message) (*domain.Message, bool, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, false, errors.Wrap(err, "mongoStore.Append: ")
	}
	defer session.EndSession(ctx)

	type result struct {
		msg     domain.Message
		created bool
	}

	out, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var conv domain.Conversation
		err := s.conversations.FindOneAndUpdate(sc,
			bson.M{"_id": msg.ConversationID},
			bson.M{"$inc": bson.M{"seq": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&conv)
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		if msg.ClientID != "" {
			var prev domain.Message
			err := s.messages.FindOne(sc, bson.M{"sender_id": msg.SenderID, "client_id": msg.ClientID}).Decode(&prev)
			if err == nil {
				prev.CreatedAt = prev.CreatedAt.UTC()
				return result{msg: prev}, nil
			}
			if err != mongo.ErrNoDocuments {
				return nil, err
			}
		}

		m := msg
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.CreatedAt = conv.NextMessageTime(s.now(), mongoTick)

		if _, err := s.messages.InsertOne(sc, m); err != nil {
			return nil, err
		}

		unreadField := "unread_b"
		if m.ReceiverID == conv.MemberA {
			unreadField = "unread_a"
		}
		if _, err := s.conversations.UpdateByID(sc, m.ConversationID, bson.M{
			"$set": bson.M{
				"last_message_at":        m.CreatedAt,
				"last_message_text":      m.Text,
				"last_message_sender_id": m.SenderID,
			},
			"$inc": bson.M{unreadField: 1},
		}); err != nil {
			return nil, err
		}
		return result{msg: m, created: true}, nil
	})
	if err == ErrNotFound || errors.Cause(err) == ErrNotFound {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "mongoStore.Append: ")
	}

	r := out.(result)
	return &r.msg, r.created, nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, order, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: order}}).
		SetLimit(int64(limit))

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

func normalizeConversation(c *domain.Conversation) *domain.Conversation {
	c.LastMessageAt = utcPtr(c.LastMessageAt)
	c.LastReadAtA = utcPtr(c.LastReadAtA)
	c.LastReadAtB = utcPtr(c.LastReadAtB)
	c.CreatedAt = c.CreatedAt.UTC()
	return c
}
