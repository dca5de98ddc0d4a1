// Package service implements the user-facing operations: subscription
// management and on-demand listing search.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"rent_bot/internal/extract"
	"rent_bot/internal/filter"
	"rent_bot/internal/model"
	"rent_bot/internal/storage"
)

// ErrDuplicateSubscription is returned when the user already has an enabled
// subscription with the same filters.
var ErrDuplicateSubscription = errors.New("duplicate subscription")

// ErrSearchLimitReached is returned when a non-member has used up the free
// search quota.
var ErrSearchLimitReached = errors.New("search limit reached")

// Gateway covers the VK API methods the service consumes.
type Gateway interface {
	WallGet(ctx context.Context, ownerID int64, count int) ([]model.Post, error)
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// SearchResult is a wall post matched by an on-demand search, together with
// its extracted listing fields.
type SearchResult struct {
	Post   model.Post
	Fields extract.Fields
}

// Service coordinates storage and the VK gateway for user commands.
type Service struct {
	store           storage.Storage
	gw              Gateway
	groupID         int64
	searchDepth     int
	resultLimit     int
	maxFreeSearches int
	log             *slog.Logger
	now             func() time.Time
}

// New creates a Service. resultLimit caps the posts returned by Search and
// maxFreeSearches caps searches for users who are not community members.
func New(store storage.Storage, gw Gateway, groupID int64, resultLimit, maxFreeSearches int, log *slog.Logger) *Service {
	return &Service{
		store:           store,
		gw:              gw,
		groupID:         groupID,
		searchDepth:     100,
		resultLimit:     resultLimit,
		maxFreeSearches: maxFreeSearches,
		log:             log,
		now:             time.Now,
	}
}

// CreateSubscription validates the filters and stores a new subscription.
// The recency window is stripped before persisting: subscriptions watch for
// future posts, so a "posted within N days" constraint has no meaning there.
// Two enabled subscriptions of the same user may not carry the same filters.
func (s *Service) CreateSubscription(ctx context.Context, userID int64, filters model.FilterSpec) (string, error) {
	if err := filters.Validate(); err != nil {
		return "", err
	}

	existing, err := s.store.GetUserSubscriptions(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	candidate := filters.WithoutRecency()
	for _, sub := range existing {
		if sub.Enabled && sub.Filters.WithoutRecency().Equal(candidate) {
			return "", ErrDuplicateSubscription
		}
	}

	id, err := s.store.AddSubscription(ctx, userID, candidate)
	if err != nil {
		return "", fmt.Errorf("add subscription: %w", err)
	}
	s.log.Info("subscription created", "user_id", userID, "sub_id", id)
	return id, nil
}

// ListSubscriptions returns all subscriptions of the user, enabled or not.
func (s *Service) ListSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error) {
	return s.store.GetUserSubscriptions(ctx, userID)
}

// ToggleSubscription flips the enabled state of the user's subscription and
// returns the new state.
func (s *Service) ToggleSubscription(ctx context.Context, userID int64, subID string) (bool, error) {
	return s.store.ToggleSubscription(ctx, userID, subID)
}

// DeleteSubscription removes the user's subscription. Returns false when no
// such subscription exists.
func (s *Service) DeleteSubscription(ctx context.Context, userID int64, subID string) (bool, error) {
	return s.store.DeleteSubscription(ctx, userID, subID)
}

// Search scans the recent wall history for listings matching the filters.
// The newest matches win when the limit truncates; results are returned
// oldest first.
func (s *Service) Search(ctx context.Context, userID int64, filters model.FilterSpec) ([]SearchResult, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	allowed, err := s.AuthorizeSearch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrSearchLimitReached
	}

	posts, err := s.gw.WallGet(ctx, -s.groupID, s.searchDepth)
	if err != nil {
		return nil, fmt.Errorf("fetch wall: %w", err)
	}

	now := s.now()
	var results []SearchResult
	for _, post := range posts {
		fields := extract.Parse(post.Text)
		if len(fields) == 0 {
			continue
		}
		if !filter.Matches(fields, filters, post.PostedAt(), now) {
			continue
		}
		results = append(results, SearchResult{Post: post, Fields: fields})
		if len(results) == s.resultLimit {
			break
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Post.ID < results[j].Post.ID })
	s.log.Info("search finished", "user_id", userID, "results", len(results))
	return results, nil
}

// AuthorizeSearch enforces the free-search quota and consumes one credit
// when it applies. Community members search without limit and get their
// counter cleared; everyone else gets maxFreeSearches total.
func (s *Service) AuthorizeSearch(ctx context.Context, userID int64) (bool, error) {
	member, err := s.gw.IsGroupMember(ctx, s.groupID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	if member {
		if err := s.store.ResetSearchCount(ctx, userID); err != nil {
			s.log.Warn("reset search count", "user_id", userID, "error", err)
		}
		return true, nil
	}

	count, err := s.store.SearchCount(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read search count: %w", err)
	}
	if count >= s.maxFreeSearches {
		return false, nil
	}
	if _, err := s.store.IncrementSearchCount(ctx, userID); err != nil {
		return false, fmt.Errorf("increment search count: %w", err)
	}
	return true, nil
}
