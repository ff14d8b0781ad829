// Package push abstracts out-of-band Web Push delivery behind a narrow
// Sender interface so the routing engine never touches the transport
// directly.
package push

import (
	"context"
	"errors"

	"chattrix/internal/domain"
)

// ErrSubscriptionExpired reports that the push service rejected the
// subscription permanently. The caller should delete the stored record.
var ErrSubscriptionExpired = errors.New("push subscription expired")

// Payload is the notification content delivered to a subscription.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Sender delivers one payload to one subscription. Implementations return
// ErrSubscriptionExpired for permanently invalid endpoints and any other
// error for transient failures.
type Sender interface {
	Send(ctx context.Context, sub *domain.PushSubscription, p Payload) error
}

// NoopSender discards all pushes. Used when VAPID keys are not configured.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, sub *domain.PushSubscription, p Payload) error {
	return nil
}
