// Package poller periodically checks the community wall for new listings and
// feeds them to the notification dispatcher.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"rent_bot/internal/model"
	"rent_bot/internal/notify"
	"rent_bot/internal/storage"
)

// Wall is the interface for fetching recent wall posts.
type Wall interface {
	WallGet(ctx context.Context, ownerID int64, count int) ([]model.Post, error)
}

// Poller drives the polling delivery path: it tracks the global poll cursor
// and fans new posts out through the Dispatcher.
type Poller struct {
	wall       Wall
	store      storage.Storage
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	ownerID    int64
	interval   time.Duration
	fetchCount int
}

// New creates a Poller for the given community.
func New(wall Wall, store storage.Storage, dispatcher *notify.Dispatcher, groupID int64, log *slog.Logger) *Poller {
	return &Poller{
		wall:       wall,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		ownerID:    -abs(groupID),
		interval:   5 * time.Minute,
		fetchCount: 10,
	}
}

// SetInterval overrides the default 5-minute poll interval.
func (p *Poller) SetInterval(d time.Duration) {
	p.interval = d
}

// Run seeds the poll cursor and then polls on a fixed interval until ctx is
// cancelled. Cycles never overlap; a failed cycle is logged and the next tick
// proceeds normally.
func (p *Poller) Run(ctx context.Context) {
	if err := p.InitCursor(ctx); err != nil {
		p.log.Error("init poll cursor", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.log.Error("poll cycle", "error", err)
			}
		}
	}
}

// InitCursor seeds the global poll cursor to the current maximum wall post ID
// so pre-existing history never triggers notifications. The storage write
// keeps the maximum, so a restart cannot move the cursor backwards.
func (p *Poller) InitCursor(ctx context.Context) error {
	posts, err := p.wall.WallGet(ctx, p.ownerID, p.fetchCount)
	if err != nil {
		return fmt.Errorf("fetch wall for cursor init: %w", err)
	}
	if len(posts) == 0 {
		p.log.Warn("no posts found during cursor initialization")
		return nil
	}

	maxID := posts[0].ID
	for _, post := range posts[1:] {
		if post.ID > maxID {
			maxID = post.ID
		}
	}
	if err := p.store.SetLastCheckedPostID(ctx, maxID); err != nil {
		return fmt.Errorf("seed poll cursor: %w", err)
	}
	p.log.Info("poll cursor initialized", "post_id", maxID)
	return nil
}

// PollOnce runs a single poll cycle and returns the number of confirmed
// sends. New posts are processed oldest first; the cursor advances after each
// processed post and ends the cycle at the highest fetched ID.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	posts, err := p.wall.WallGet(ctx, p.ownerID, p.fetchCount)
	if err != nil {
		return 0, fmt.Errorf("fetch wall: %w", err)
	}
	if len(posts) == 0 {
		return 0, nil
	}

	cursor, err := p.store.LastCheckedPostID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read poll cursor: %w", err)
	}

	latest := posts[0].ID
	var newPosts []model.Post
	for _, post := range posts {
		if post.ID > latest {
			latest = post.ID
		}
		if cursor == nil || post.ID > *cursor {
			newPosts = append(newPosts, post)
		}
	}
	if len(newPosts) == 0 {
		return 0, nil
	}

	subs, err := p.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active subscriptions: %w", err)
	}
	if len(subs) == 0 {
		// Keep the cursor fresh even with zero subscribers.
		if err := p.store.SetLastCheckedPostID(ctx, latest); err != nil {
			return 0, fmt.Errorf("advance poll cursor: %w", err)
		}
		return 0, nil
	}

	sort.Slice(newPosts, func(i, j int) bool { return newPosts[i].ID < newPosts[j].ID })

	p.log.Info("processing new posts", "count", len(newPosts))

	sent := 0
	for _, post := range newPosts {
		if ctx.Err() != nil {
			break
		}
		sent += p.dispatcher.ProcessPost(ctx, post, subs)
		if err := p.store.SetLastCheckedPostID(ctx, post.ID); err != nil {
			p.log.Error("advance poll cursor", "post_id", post.ID, "error", err)
		}
	}

	if err := p.store.SetLastCheckedPostID(ctx, latest); err != nil {
		p.log.Error("advance poll cursor", "post_id", latest, "error", err)
	}

	if sent > 0 {
		p.log.Info("sent notifications", "count", sent)
	}
	return sent, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
