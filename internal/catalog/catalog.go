// Package catalog provides track recommendations per mental state.
package catalog

import (
	"context"

	"example.com/moodsync/internal/domain"
)

// Catalog returns up to limit tracks for a state, in recommendation order. An empty
// result is valid. limit <= 0 means no limit.
type Catalog interface {
	Recommend(ctx context.Context, state domain.MentalState, limit int) ([]string, error)
}

func truncate(tracks []string, limit int) []string {
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	out := make([]string, len(tracks))
	copy(out, tracks)
	return out
}
