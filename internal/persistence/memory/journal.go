// Package memory keeps the actuation journal in process, for deployments without Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/moodsync/internal/persistence"
)

// DefaultCapacity is the number of entries retained when none is configured.
const DefaultCapacity = 500

// Journal is a bounded in-memory journal. The oldest entries are dropped first.
type Journal struct {
	mu       sync.RWMutex
	capacity int
	entries  []persistence.Entry
}

// NewJournal constructs a Journal.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity}
}

// Record implements persistence.Journal.
func (j *Journal) Record(_ context.Context, entry persistence.Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	sort.SliceStable(j.entries, func(a, b int) bool {
		ea, eb := j.entries[a], j.entries[b]
		if ea.RecordedAt.Equal(eb.RecordedAt) {
			return ea.ID < eb.ID
		}
		return ea.RecordedAt.Before(eb.RecordedAt)
	})
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append([]persistence.Entry(nil), j.entries[over:]...)
	}
	return nil
}

// Recent implements persistence.Journal.
func (j *Journal) Recent(_ context.Context, cursor *persistence.Cursor, limit int) ([]persistence.Entry, *persistence.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	results := make([]persistence.Entry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(results) < limit; i-- {
		if cursor.Before(j.entries[i]) {
			results = append(results, j.entries[i])
		}
	}

	var next *persistence.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &persistence.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return results, next, nil
}
