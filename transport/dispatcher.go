package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/worker"
)

// handlerJob is one deferred (non-critical) handler invocation.
type handlerJob struct {
	sub *subscription
	msg *Message
}

// dispatcher delivers decoded inbound messages to subscriptions. Critical
// handlers run inline on the read goroutine; the rest go to a worker pool.
type dispatcher struct {
	registry *subscriptionRegistry
	pool     *worker.Pool[handlerJob]
	logger   *slog.Logger
	onError  func(*errors.HandlerError)
}

// dispatch sorts msgs and delivers each one to every subscription of its
// type, in registration order.
func (d *dispatcher) dispatch(ctx context.Context, msgs []*Message) {
	SortMessages(msgs)

	for _, msg := range msgs {
		for _, sub := range d.registry.lookup(msg.Type) {
			if sub.priority == PriorityCritical {
				if err := invoke(ctx, sub, msg); err != nil {
					d.report(msg, err)
				}
				continue
			}

			if err := d.pool.Submit(handlerJob{sub: sub, msg: msg}); err != nil {
				d.report(msg, err)
			}
		}
	}
}

// run is the worker pool processor.
func (d *dispatcher) run(ctx context.Context, job handlerJob) error {
	return invoke(ctx, job.sub, job.msg)
}

// invoke calls the handler unless it was unsubscribed meanwhile. Panics are
// converted into errors wrapping errors.ErrHandlerPanic.
func invoke(ctx context.Context, sub *subscription, msg *Message) (err error) {
	if !sub.active.Load() {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r)
		}
	}()
	return sub.handler(ctx, msg)
}

func (d *dispatcher) report(msg *Message, err error) {
	herr := &errors.HandlerError{MessageType: msg.Type, MessageID: msg.ID, Err: err}

	level := slog.LevelWarn
	if stderrors.Is(err, errors.ErrHandlerPanic) {
		level = slog.LevelError
	}
	d.logger.Log(context.Background(), level, "Message handler failed",
		"type", msg.Type, "id", msg.ID, "error", err)

	if d.onError != nil {
		d.onError(herr)
	}
}
