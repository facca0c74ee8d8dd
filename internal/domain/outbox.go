package domain

import "time"

type OutboxEventType string

const (
	OutboxOrderCompleted   OutboxEventType = "order.completed"
	OutboxWithdrawalPaid   OutboxEventType = "withdrawal.paid"
	OutboxWithdrawalFailed OutboxEventType = "withdrawal.failed"
)

// OutboxMessage is a notification event written in the same transaction as
// the state change it describes. A background dispatcher publishes it to
// the notification collaborator and marks it published.
type OutboxMessage struct {
	ID          string          `json:"id"`
	EventType   OutboxEventType `json:"event_type"`
	EntityID    string          `json:"entity_id"`
	Payload     string          `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}
