package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradesworld/paycore/internal/domain"
)

// EventRepo is the append-only event log. Rows are inserted, never updated
// or deleted; the same gateway event may legitimately be recorded more than
// once (providers retry delivery).
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) Record(paymentID string, gateway domain.Gateway, eventType domain.PaymentEventType, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO payment_events (id, payment_id, gateway, event_type, payload, created_at)
		VALUES (?,?,?,?,?,?)`,
		id, paymentID, string(gateway), string(eventType),
		string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	return id, nil
}

func (r *EventRepo) ListByPayment(paymentID string) ([]domain.PaymentEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, payment_id, gateway, event_type, payload, created_at
		FROM payment_events WHERE payment_id = ? ORDER BY created_at`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		var gateway, eventType, createdAt string
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.PaymentID, &gateway, &eventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Gateway = domain.Gateway(gateway)
		e.EventType = domain.PaymentEventType(eventType)
		e.Payload = payload.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *EventRepo) CountByPayment(paymentID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM payment_events WHERE payment_id = ?", paymentID,
	).Scan(&count)
	return count, err
}
