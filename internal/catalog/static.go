package catalog

import (
	"context"

	"example.com/moodsync/internal/domain"
)

var playlists = map[domain.MentalState][]string{
	domain.StateStressed: {
		"Calming Classical",
		"Meditation Sounds",
		"Nature Sounds",
		"Deep Breathing",
		"Peaceful Piano",
	},
	domain.StateNeutral: {
		"Acoustic Covers",
		"Light Jazz",
		"Soft Pop",
		"Ambient Music",
		"Focus Flow",
	},
	domain.StateRelaxed: {
		"Upbeat Acoustic",
		"Happy Hits",
		"Feel Good Music",
		"Energy Boost",
		"Motivation Mix",
	},
}

// StaticCatalog serves the built-in playlists.
type StaticCatalog struct{}

// Recommend implements Catalog. Unknown states get the neutral playlists.
func (StaticCatalog) Recommend(_ context.Context, state domain.MentalState, limit int) ([]string, error) {
	tracks, ok := playlists[state]
	if !ok {
		tracks = playlists[domain.StateNeutral]
	}
	return truncate(tracks, limit), nil
}
