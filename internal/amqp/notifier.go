package amqp

import (
	"context"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
)

// Publisher is the publishing half of Client.
type Publisher interface {
	PublishPeriodEvent(ctx context.Context, msg *PeriodEventMessage) error
}

// PeriodNotifier turns lifecycle transitions for one user into events.
// Publish failures are logged and never surface to the caller.
type PeriodNotifier struct {
	pub    Publisher
	userID string
	logger *log.Logger
}

func NewPeriodNotifier(pub Publisher, userID string, logger *log.Logger) *PeriodNotifier {
	if logger == nil {
		logger = log.Default(log.ComponentAMQP)
	}
	return &PeriodNotifier{pub: pub, userID: userID, logger: logger.WithComponent(log.ComponentAMQP)}
}

func (n *PeriodNotifier) PeriodCreated(ctx context.Context, p core.BudgetPeriod) {
	n.send(ctx, NewPeriodEventMessage(PeriodCreated, n.userID, p))
}

func (n *PeriodNotifier) PeriodArchived(ctx context.Context, p core.BudgetPeriod) {
	n.send(ctx, NewPeriodEventMessage(PeriodArchived, n.userID, p))
}

func (n *PeriodNotifier) send(ctx context.Context, msg *PeriodEventMessage) {
	if n.pub == nil {
		return
	}
	// Events outlive the request that caused them.
	ctx = context.WithoutCancel(ctx)
	if err := n.pub.PublishPeriodEvent(ctx, msg); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish period event",
			log.FieldEventType, string(msg.Type),
			log.FieldUserID, msg.UserID,
			log.FieldPeriodID, msg.PeriodID,
			log.FieldError, err)
	}
}
