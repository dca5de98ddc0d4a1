// Package notify delivers subscription notifications for new listings.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rent_bot/internal/extract"
	"rent_bot/internal/filter"
	"rent_bot/internal/model"
	"rent_bot/internal/storage"
)

// Messenger is the interface for the outbound messaging gateway.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text, attachment, keyboard string) error
}

// Dispatcher fans a new post out to matching subscriptions and sends
// notifications. Both delivery paths (poller and push events) go through it.
type Dispatcher struct {
	store     storage.Storage
	messenger Messenger
	groupID   int64
	log       *slog.Logger
	sendDelay time.Duration
	now       func() time.Time
}

// New creates a Dispatcher for the given community.
func New(store storage.Storage, messenger Messenger, groupID int64, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		messenger: messenger,
		groupID:   groupID,
		log:       log,
		sendDelay: 500 * time.Millisecond,
		now:       time.Now,
	}
}

// SetSendDelay overrides the pause between successive sends within one cycle.
func (d *Dispatcher) SetSendDelay(delay time.Duration) {
	d.sendDelay = delay
}

// Notify sends one notification about post to the user, referencing the
// original wall post as an attachment. Returns true only when the gateway
// acknowledged the send.
func (d *Dispatcher) Notify(ctx context.Context, userID int64, post model.Post, filters model.FilterSpec) bool {
	attachment := fmt.Sprintf("wall-%d_%d", abs(d.groupID), post.ID)
	message := fmt.Sprintf(
		"🔔 Новое объявление!\n\nНайдено объявление по вашей подписке:\n%s\n\nСмотрите объявление ниже:",
		filters.Describe(),
	)

	if err := d.messenger.SendMessage(ctx, userID, message, attachment, ""); err != nil {
		d.log.Warn("send notification", "user_id", userID, "post_id", post.ID, "error", err)
		return false
	}
	return true
}

// ProcessPost runs the fan-out for a single post: extract fields, apply each
// enabled subscription's dedup gate and filters, notify on match, and advance
// the per-subscription cursor only after a confirmed send. Returns the number
// of confirmed sends.
func (d *Dispatcher) ProcessPost(ctx context.Context, post model.Post, subs []model.UserSubscription) int {
	fields := extract.Parse(post.Text)
	if len(fields) == 0 {
		// Not a listing; the wall carries unrelated content too.
		d.log.Debug("post has no listing fields, skipping", "post_id", post.ID)
		return 0
	}

	sent := 0
	for _, us := range subs {
		if ctx.Err() != nil {
			return sent
		}
		sub := us.Subscription

		// The per-subscription cursor is the authoritative dedup gate.
		if sub.LastNotifiedPostID != nil && post.ID <= *sub.LastNotifiedPostID {
			continue
		}
		if !filter.Matches(fields, sub.Filters, post.PostedAt(), d.now()) {
			continue
		}

		if d.Notify(ctx, us.UserID, post, sub.Filters) {
			sent++
			if err := d.store.UpdateLastNotifiedPost(ctx, us.UserID, sub.ID, post.ID); err != nil {
				d.log.Error("update subscription cursor", "user_id", us.UserID, "sub_id", sub.ID, "error", err)
			}
			d.log.Info("notification sent", "user_id", us.UserID, "post_id", post.ID, "sub_id", sub.ID)
		}

		// Outbound rate limit.
		d.pause(ctx)
	}
	return sent
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.sendDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.sendDelay):
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
