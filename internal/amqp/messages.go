package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"budgetbuddy/internal/core"
)

type EventType string

const (
	PeriodCreated  EventType = "period.created"
	PeriodArchived EventType = "period.archived"
)

// PeriodEventMessage carries ids only plus the bounds for logging. Consumers
// reload the period from the store.
type PeriodEventMessage struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	PeriodID  string    `json:"period_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPeriodEventMessage(t EventType, userID string, p core.BudgetPeriod) *PeriodEventMessage {
	return &PeriodEventMessage{
		Type:      t,
		UserID:    userID,
		PeriodID:  p.ID,
		StartDate: p.StartDate.String(),
		EndDate:   p.EndDate.String(),
		Timestamp: time.Now(),
	}
}

func (m *PeriodEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodEventMessageFromJSON decodes and validates a message.
func PeriodEventMessageFromJSON(data []byte) (*PeriodEventMessage, error) {
	var msg PeriodEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case PeriodCreated, PeriodArchived:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.UserID == "" || msg.PeriodID == "" {
		return nil, fmt.Errorf("event missing user or period id")
	}
	return &msg, nil
}
