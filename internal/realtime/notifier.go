package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chattrix/internal/domain"
	"chattrix/internal/push"
)

// maxPreviewRunes bounds notification bodies. Truncation keeps payloads small
// and avoids leaking full message content into a notification preview.
const maxPreviewRunes = 120

const pushTimeout = 10 * time.Second

// Notification describes a supplementary alert for a user who is not looking
// at the content it refers to.
type Notification struct {
	Kind     string
	Title    string
	Body     string
	Sender   string
	ChatURL  string
	SenderID int64 // 0 when the notification has no single sender
}

type pushJob struct {
	userID int64
	title  string
	body   string
	url    string
}

// NotificationDispatcher delivers notifications on two independent channels:
// an in-band "notification" event to the user's personal room, and a
// best-effort Web Push to every stored subscription. Push delivery runs on a
// bounded worker pool so a slow push endpoint never stalls a sender's event
// loop.
type NotificationDispatcher struct {
	rooms  *RoomManager
	subs   domain.SubscriptionRepository
	sender push.Sender
	log    *slog.Logger

	jobs chan pushJob
	wg   sync.WaitGroup
}

func NewNotificationDispatcher(
	rooms *RoomManager,
	subs domain.SubscriptionRepository,
	sender push.Sender,
	workers, queueSize int,
	log *slog.Logger,
) *NotificationDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &NotificationDispatcher{
		rooms:  rooms,
		subs:   subs,
		sender: sender,
		log:    log,
		jobs:   make(chan pushJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify fires both channels for userID. The in-band event reaches the user
// even while connected but looking elsewhere; the push reaches them when the
// socket is gone.
func (d *NotificationDispatcher) Notify(userID int64, n Notification) {
	body := previewText(n.Body, maxPreviewRunes)

	// "type" is taken by the frame discriminator, so the notification kind
	// travels as "notification_type".
	fields := map[string]any{
		"notification_type": n.Kind,
		"title":             n.Title,
		"message":           body,
		"sender":            n.Sender,
		"chat_url":          n.ChatURL,
	}
	if n.SenderID != 0 {
		fields["sender_id"] = n.SenderID
	}
	payload := event("notification", fields)

	d.rooms.Broadcast(PersonalRoomID(userID), payload)

	select {
	case d.jobs <- pushJob{userID: userID, title: n.Title, body: body, url: n.ChatURL}:
	default:
		d.log.Warn("push queue full, dropping push delivery", "user_id", userID)
	}
}

// Close drains pending push jobs and stops the workers.
func (d *NotificationDispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliverPush(job)
	}
}

// deliverPush iterates all stored subscriptions for the user. A permanently
// invalid subscription is deleted; any other failure is logged and leaves
// sibling subscriptions untouched.
func (d *NotificationDispatcher) deliverPush(job pushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	subs, err := d.subs.ListForUser(ctx, job.userID)
	if err != nil {
		d.log.Error("list push subscriptions", "user_id", job.userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := push.Payload{Title: job.title, Body: job.body, URL: job.url}
	for _, sub := range subs {
		err := d.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, push.ErrSubscriptionExpired):
			if derr := d.subs.Delete(ctx, sub.ID); derr != nil {
				d.log.Error("delete expired subscription",
					"subscription_id", sub.ID, "error", derr)
			} else {
				d.log.Info("removed expired push subscription",
					"subscription_id", sub.ID, "user_id", job.userID)
			}
		default:
			d.log.Warn("push delivery failed",
				"subscription_id", sub.ID, "user_id", job.userID, "error", err)
		}
	}
}

// previewText truncates s to at most limit runes, appending an ellipsis when
// anything was cut.
func previewText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
