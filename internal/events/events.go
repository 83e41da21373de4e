package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	OrderCreated     = "order.created"
	OrderUpdated     = "order.updated"
	OrderCancelled   = "order.cancelled"
	OrderDeleted     = "order.deleted"
	OrderDispatched  = "order.dispatched"
	DishProduced     = "dish.produced"
	SaleSettled      = "sale.settled"
	RegisterOpened   = "register.opened"
	RegisterMovement = "register.movement"
	RegisterClosed   = "register.closed"
	PurchaseCreated  = "purchase.created"
	PurchaseReceived = "purchase.received"
)

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	EmployeeID *int64      `json:"employee_id,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

func New(eventType string, employeeID *int64, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		EmployeeID: employeeID,
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Emit publishes after a commit. A failed publish is logged and swallowed:
// the state change it describes is already durable.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
