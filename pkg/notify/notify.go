// Package notify announces successful publishes to message brokers, databases
// and webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// DefaultTimeout bounds connecting and sending for one target.
const DefaultTimeout = 10 * time.Second

// Dispatcher delivers an event to a list of targets.
type Dispatcher struct {
	Targets []Target
	Timeout time.Duration
}

// Dispatch sends ev to every target in order. A failing target does not stop
// the others; all failures are joined in the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if ev.Type == "" {
		ev.Type = EventPublished
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := toolutil.Logger()

	var errs []error
	for _, t := range d.Targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.send(ctx, t, ev, timeout); err != nil {
			logger.Error("Notification failed", "target", t.String(), "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", t, err))
			continue
		}
		logger.Info("Notification sent", "scheme", t.Scheme(), "target", t.String())
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, t Target, ev Event, timeout time.Duration) error {
	body, err := ev.Encode(t.Format)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sink, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			toolutil.Logger().Warn("Failed to close sink", "target", t.String(), "error", err)
		}
	}()

	return sink.Send(ctx, Message{Event: ev, Body: body, ContentType: t.Format.ContentType()})
}
