// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Post is a single entry on the community wall as returned by wall.get.
type Post struct {
	ID   int64
	Text string
	Date int64 // unix seconds
}

// PostedAt returns the publication time of the post.
func (p Post) PostedAt() time.Time {
	return time.Unix(p.Date, 0)
}

// FilterSpec is a set of optional search constraints. A nil pointer or an
// empty district means the dimension is unconstrained.
type FilterSpec struct {
	District   string
	PriceMin   *int64
	PriceMax   *int64
	Rooms      *int64
	RecentDays *int64
}

// Validate checks the internal consistency of the spec. Enforced at creation
// time only.
func (fs FilterSpec) Validate() error {
	if fs.PriceMin != nil && fs.PriceMax != nil && *fs.PriceMin > *fs.PriceMax {
		return fmt.Errorf("price_min %d exceeds price_max %d", *fs.PriceMin, *fs.PriceMax)
	}
	return nil
}

// Equal reports structural equality of two specs. Used for duplicate
// subscription detection.
func (fs FilterSpec) Equal(other FilterSpec) bool {
	return fs.District == other.District &&
		eqInt64Ptr(fs.PriceMin, other.PriceMin) &&
		eqInt64Ptr(fs.PriceMax, other.PriceMax) &&
		eqInt64Ptr(fs.Rooms, other.Rooms) &&
		eqInt64Ptr(fs.RecentDays, other.RecentDays)
}

// Describe renders a human-readable summary of the set constraints,
// or "все параметры" when nothing is constrained.
func (fs FilterSpec) Describe() string {
	var parts []string
	if fs.District != "" {
		parts = append(parts, "Район: "+fs.District)
	}
	if fs.PriceMin != nil {
		parts = append(parts, fmt.Sprintf("Цена от: %d", *fs.PriceMin))
	}
	if fs.PriceMax != nil {
		parts = append(parts, fmt.Sprintf("Цена до: %d", *fs.PriceMax))
	}
	if fs.Rooms != nil {
		parts = append(parts, fmt.Sprintf("Комнат: %d", *fs.Rooms))
	}
	if len(parts) == 0 {
		return "все параметры"
	}
	return strings.Join(parts, ", ")
}

// WithoutRecency returns a copy of the spec with the recency constraint
// dropped. Persisted subscriptions are forward-looking and never keep it.
func (fs FilterSpec) WithoutRecency() FilterSpec {
	fs.RecentDays = nil
	return fs
}

func eqInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Subscription is a saved search a user wants notifications for.
type Subscription struct {
	ID                 string // 8-char opaque token
	UserID             int64
	Filters            FilterSpec
	CreatedAt          time.Time
	Enabled            bool
	LastNotifiedPostID *int64
}

// UserSubscription pairs a subscription with its owner, as returned by the
// active-set query.
type UserSubscription struct {
	UserID       int64
	Subscription Subscription
}
