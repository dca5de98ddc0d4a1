// Package filter implements the listing matching engine.
package filter

import (
	"strings"
	"time"

	"rent_bot/internal/extract"
	"rent_bot/internal/model"
)

// Matches checks whether an extracted listing passes every set constraint of
// the spec. Constraints are independent predicates joined by AND; the first
// failure short-circuits. A listing missing a parsed value fails any active
// constraint on that dimension.
func Matches(fields extract.Fields, spec model.FilterSpec, postedAt time.Time, now time.Time) bool {
	if spec.District != "" {
		district, ok := fields[extract.KeyDistrict]
		if !ok || !strings.EqualFold(district, spec.District) {
			return false
		}
	}

	if spec.PriceMin != nil {
		price, ok := fields.Numeric(extract.KeyPrice)
		if !ok || price < *spec.PriceMin {
			return false
		}
	}
	if spec.PriceMax != nil {
		price, ok := fields.Numeric(extract.KeyPrice)
		if !ok || price > *spec.PriceMax {
			return false
		}
	}

	if spec.Rooms != nil {
		rooms, ok := fields.Numeric(extract.KeyRooms)
		if !ok || rooms != *spec.Rooms {
			return false
		}
	}

	// Recency only appears on search and poll-path specs, never on persisted
	// subscriptions.
	if spec.RecentDays != nil && *spec.RecentDays > 0 {
		threshold := now.Add(-time.Duration(*spec.RecentDays) * 24 * time.Hour)
		if postedAt.Before(threshold) {
			return false
		}
	}

	return true
}
