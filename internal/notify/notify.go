package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

var (
	_ order.Notifier = Log{}
	_ order.Notifier = Multi(nil)
)

// Log writes customer notifications to the context logger.
type Log struct{}

func (Log) OrderCreated(ctx context.Context, o *order.Order) error {
	Deliver(ctx, NewEvent(KindCreated, o))
	return nil
}

func (Log) OrderReady(ctx context.Context, o *order.Order) error {
	Deliver(ctx, NewEvent(KindReady, o))
	return nil
}

// Deliver logs the customer message for e.
func Deliver(ctx context.Context, e Event) {
	zctx.From(ctx).Info("Customer notified",
		zap.String("kind", e.Kind),
		zap.String("order_id", e.OrderID),
		zap.String("customer", e.CustomerName),
		zap.String("message", e.Message()),
	)
}

// Multi fans every event out to all notifiers. All notifiers are called
// even when some fail; the failures are combined.
type Multi []order.Notifier

func (m Multi) OrderCreated(ctx context.Context, o *order.Order) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.OrderCreated(ctx, o))
	}
	return err
}

func (m Multi) OrderReady(ctx context.Context, o *order.Order) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.OrderReady(ctx, o))
	}
	return err
}
