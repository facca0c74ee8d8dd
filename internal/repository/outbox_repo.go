package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

// OutboxRepo persists notification events in the same transaction as the
// state change they describe, so a crash can delay a notification but
// never lose or invent one.
type OutboxRepo struct {
	db *sql.DB
}

func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

func (r *OutboxRepo) InsertTx(tx *sql.Tx, eventType domain.OutboxEventType, entityID string, payload []byte) error {
	_, err := tx.Exec(
		`INSERT INTO outbox_messages (id, event_type, entity_id, payload, created_at)
		VALUES (?,?,?,?,?)`,
		uuid.NewString(), string(eventType), entityID, string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepo) ListUnpublished(limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.db.Query(
		`SELECT id, event_type, entity_id, payload, created_at
		FROM outbox_messages WHERE published_at IS NULL
		ORDER BY created_at LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		var eventType, createdAt string
		if err := rows.Scan(&m.ID, &eventType, &m.EntityID, &m.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		m.EventType = domain.OutboxEventType(eventType)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *OutboxRepo) MarkPublished(id string) error {
	_, err := r.db.Exec(
		"UPDATE outbox_messages SET published_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

// CountByType exists for tests and the dashboard; the dispatcher does not
// use it.
func (r *OutboxRepo) CountByType(eventType domain.OutboxEventType) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM outbox_messages WHERE event_type = ?",
		string(eventType),
	).Scan(&count)
	return count, err
}
