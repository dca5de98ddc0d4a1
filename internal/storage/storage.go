// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"rent_bot/internal/model"
)

// Storage is the interface for all persistence operations. Implementations
// serialize mutations; every mutation is durable before the call returns.
type Storage interface {
	AddSubscription(ctx context.Context, userID int64, filters model.FilterSpec) (string, error)
	GetUserSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error)
	ToggleSubscription(ctx context.Context, userID int64, subID string) (bool, error)
	DeleteSubscription(ctx context.Context, userID int64, subID string) (bool, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.UserSubscription, error)
	UpdateLastNotifiedPost(ctx context.Context, userID int64, subID string, postID int64) error

	LastCheckedPostID(ctx context.Context) (*int64, error)
	SetLastCheckedPostID(ctx context.Context, postID int64) error

	SearchCount(ctx context.Context, userID int64) (int, error)
	IncrementSearchCount(ctx context.Context, userID int64) (int, error)
	ResetSearchCount(ctx context.Context, userID int64) error

	Close() error
}
