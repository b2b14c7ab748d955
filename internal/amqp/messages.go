package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the notifications queue.
const (
	EventExpenseCreated       = "expense.created"
	EventExpenseStatusChanged = "expense.status_changed"
	EventBudgetExceeded       = "budget.exceeded"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope wraps every event. Payload holds one of the event structs below,
// selected by Type.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	AccountID  string          `json:"account_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// ExpenseEvent describes a created expense or a status change. FromStatus is
// empty for expense.created.
type ExpenseEvent struct {
	ExpenseID    string `json:"expense_id"`
	Description  string `json:"description"`
	AmountAgorot int64  `json:"amount_agorot"`
	Category     string `json:"category"`
	PaidByID     string `json:"paid_by_id"`
	ActorID      string `json:"actor_id"`
	FromStatus   string `json:"from_status,omitempty"`
	ToStatus     string `json:"to_status"`
}

type BudgetExceededEvent struct {
	BudgetID      string   `json:"budget_id"`
	Categories    []string `json:"categories"`
	Period        string   `json:"period"`
	PlannedAgorot int64    `json:"planned_agorot"`
	ActualAgorot  int64    `json:"actual_agorot"`
}

func NewEnvelope(eventType, accountID string, payload any) (*Envelope, error) {
	switch eventType {
	case EventExpenseCreated, EventExpenseStatusChanged, EventBudgetExceeded:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" || env.AccountID == "" {
		return nil, errors.New("envelope missing type or account")
	}
	return &env, nil
}

// ExpenseEvent decodes the payload of an expense.* envelope.
func (e *Envelope) ExpenseEvent() (ExpenseEvent, error) {
	var ev ExpenseEvent
	if e.Type != EventExpenseCreated && e.Type != EventExpenseStatusChanged {
		return ev, fmt.Errorf("%w: %s is not an expense event", ErrUnknownEvent, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return ev, nil
}

func (e *Envelope) BudgetExceededEvent() (BudgetExceededEvent, error) {
	var ev BudgetExceededEvent
	if e.Type != EventBudgetExceeded {
		return ev, fmt.Errorf("%w: %s is not a budget event", ErrUnknownEvent, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return ev, nil
}
