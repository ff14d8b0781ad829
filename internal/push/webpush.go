package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"chattrix/internal/domain"
)

const defaultIcon = "/static/profile_pics/default.jpg"

// WebPushSender delivers notifications over the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
}

var _ Sender = (*WebPushSender)(nil)

func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		ttl:        60,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub *domain.PushSubscription, p Payload) error {
	body, err := json.Marshal(map[string]string{
		"title": p.Title,
		"body":  p.Body,
		"url":   p.URL,
		"icon":  defaultIcon,
		"badge": defaultIcon,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return ErrSubscriptionExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
