package repository

import (
	"context"
	"embed"
	"sort"
	"time"

	"social_chat_service/internal/chat/domain"
	"social_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// postgres timestamptz resolution
const pgTick = time.Microsecond

const conversationColumns = `id, member_a, member_b, last_message_at, last_message_text, last_message_sender_id,
	last_read_at_a, last_read_at_b, unread_a, unread_b, created_at`

const messageColumns = `id, conversation_id, sender_id, receiver_id, text, COALESCE(client_id, ''), created_at`

// PgStore ChatStore on postgres
type PgStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPgStore create PgStore
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, now: time.Now}
}

// Migrate apply embedded migrations not yet recorded in schema_migrations
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return errors.Wrap(err, "pgStore.Migrate: ")
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "pgStore.Migrate: ")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name).Scan(&applied); err != nil {
			return errors.Wrap(err, "pgStore.Migrate: ")
		}
		if applied {
			continue
		}

		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrap(err, "pgStore.Migrate: ")
		}
		if err := s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name)
			return err
		}); err != nil {
			return errors.Wrapf(err, "pgStore.Migrate %s: ", name)
		}
		logger.Log.Info("migration applied", zap.String("version", name))
	}
	return nil
}

func (s *PgStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PgStore) FindOrCreate(ctx context.Context, memberA, memberB string) (*domain.Conversation, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO conversations (id, member_a, member_b, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (member_a, member_b) DO NOTHING`,
		uuid.New().String(), memberA, memberB, s.now().UTC().Truncate(pgTick))
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.FindOrCreate: ")
	}

	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE member_a = $1 AND member_b = $2`, memberA, memberB)
	c, err := scanConversation(row)
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.FindOrCreate: ")
	}
	return c, nil
}

func (s *PgStore) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.FindByID: ")
	}
	return c, nil
}

func (s *PgStore) ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+conversationColumns+`
		FROM conversations
		WHERE member_a = $1 OR member_b = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`, memberID)
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.ListByMember: ")
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "pgStore.ListByMember: ")
		}
		out = append(out, *c)
	}
	return out, errors.Wrap(rows.Err(), "pgStore.ListByMember: ")
}

func (s *PgStore) MarkRead(ctx context.Context, conversationID, memberID string, at time.Time) (*domain.Conversation, error) {
	row := s.pool.QueryRow(ctx, `UPDATE conversations SET
			last_read_at_a = CASE WHEN member_a = $2 THEN $3 ELSE last_read_at_a END,
			unread_a       = CASE WHEN member_a = $2 THEN 0 ELSE unread_a END,
			last_read_at_b = CASE WHEN member_b = $2 THEN $3 ELSE last_read_at_b END,
			unread_b       = CASE WHEN member_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1 AND (member_a = $2 OR member_b = $2)
		RETURNING `+conversationColumns, conversationID, memberID, at.UTC().Truncate(pgTick))
	c, err := scanConversation(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.MarkRead: ")
	}
	return c, nil
}

func (s *PgStore) Latest(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	msgs, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.Latest: ")
	}
	return reverse(msgs), nil
}

func (s *PgStore) Since(ctx context.Context, conversationID string, after time.Time, limit int) ([]domain.Message, error) {
	msgs, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND created_at > $2 ORDER BY created_at ASC LIMIT $3`,
		conversationID, after.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.Since: ")
	}
	return msgs, nil
}

func (s *PgStore) Before(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	msgs, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`,
		conversationID, before.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "pgStore.Before: ")
	}
	return reverse(msgs), nil
}

// Append lock the conversation row, so createdAt and the clientId check are serialized per conversation
func (s *PgStore) Append(ctx context.Context, msg domain.Message) (*domain.Message, bool, error) {
	var (
		stored  *domain.Message
		created bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		conv, err := scanConversation(tx.QueryRow(ctx, `SELECT `+conversationColumns+`
			FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID))
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if msg.ClientID != "" {
			prev, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages
				WHERE sender_id = $1 AND client_id = $2`, msg.SenderID, msg.ClientID))
			if err == nil {
				stored = prev
				return nil
			}
			if err != pgx.ErrNoRows {
				return err
			}
		}

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		msg.CreatedAt = conv.NextMessageTime(s.now(), pgTick)

		if _, err := tx.Exec(ctx, `INSERT INTO messages
			(id, conversation_id, sender_id, receiver_id, text, client_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Text, msg.ClientID, msg.CreatedAt); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE conversations SET
				last_message_at = $2,
				last_message_text = $3,
				last_message_sender_id = $4,
				unread_a = unread_a + CASE WHEN member_a = $5 THEN 1 ELSE 0 END,
				unread_b = unread_b + CASE WHEN member_b = $5 THEN 1 ELSE 0 END
			WHERE id = $1`,
			msg.ConversationID, msg.CreatedAt, msg.Text, msg.SenderID, msg.ReceiverID); err != nil {
			return err
		}

		stored, created = &msg, true
		return nil
	})
	if err == ErrNotFound {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "pgStore.Append: ")
	}
	return stored, created, nil
}

func (s *PgStore) queryMessages(ctx context.Context, sql string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.MemberA, &c.MemberB,
		&c.LastMessageAt, &c.LastMessageText, &c.LastMessageSenderID,
		&c.LastReadAtA, &c.LastReadAtB, &c.UnreadA, &c.UnreadB, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.LastMessageAt = utcPtr(c.LastMessageAt)
	c.LastReadAtA = utcPtr(c.LastReadAtA)
	c.LastReadAtB = utcPtr(c.LastReadAtB)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
		&m.Text, &m.ClientID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
