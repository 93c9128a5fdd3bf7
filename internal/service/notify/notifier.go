package notify

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/config"
	"marketplace/internal/monitor"
	"marketplace/pkg/breaker"
	"marketplace/pkg/log"
)

// Notifier delivers a notification to one user. Delivery channels (mail,
// push, sms) live behind implementations of it.
type Notifier interface {
	Notify(ctx context.Context, userID uint64, kind string, payload interface{}) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct{}

// Notify logs the notification
func (LogNotifier) Notify(ctx context.Context, userID uint64, kind string, payload interface{}) error {
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": userID,
		"kind":    kind,
		"payload": fmt.Sprintf("%+v", payload),
	}).Info("Notification")
	return nil
}

// Dispatcher guards a notifier with a circuit breaker. Once the notifier
// keeps failing, calls fail fast until the breaker timeout lets a trial call through.
type Dispatcher struct {
	notifier Notifier
	breaker  *breaker.CircuitBreaker
	metrics  *monitor.Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(notifier Notifier, cfg config.NotificationConfig, metrics *monitor.Metrics) *Dispatcher {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cb := breaker.NewCircuitBreaker("notifier", breaker.Config{
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// the caller giving up says nothing about the notifier
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Notifier circuit breaker state changed")
		},
	})
	return &Dispatcher{notifier: notifier, breaker: cb, metrics: metrics}
}

// Notify delivers through the breaker
func (d *Dispatcher) Notify(ctx context.Context, userID uint64, kind string, payload interface{}) error {
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.notifier.Notify(ctx, userID, kind, payload)
	})
	outcome := "ok"
	switch {
	case breaker.IsCircuitBreakerError(err):
		outcome = "skipped"
	case err != nil:
		outcome = "error"
	}
	d.metrics.RecordNotification(kind, outcome)
	return err
}

// State reports the breaker state
func (d *Dispatcher) State() breaker.State {
	return d.breaker.State()
}
