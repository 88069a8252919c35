// Package notify delivers best-effort operator notifications. Delivery
// failures are logged, never propagated as fatal: a down Slack workspace must
// not block session or automation work.
package notify

import (
	"context"
	"log"
)

// Notifier sends a short operator-facing notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Multi fans a notification out to several notifiers. Each failure is logged
// and the rest still run; Notify itself never returns an error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, title, body string) error {
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			log.Printf("notify: %v", err)
		}
	}
	return nil
}
