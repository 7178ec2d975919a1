// Package postgres implements the actuation journal on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/persistence"
)

const schema = `CREATE TABLE IF NOT EXISTS actuation_journal (
    entry_id     TEXT PRIMARY KEY,
    mental_state TEXT NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL,
    source       TEXT NOT NULL,
    annotation   TEXT NOT NULL DEFAULT '',
    reasoning    TEXT NOT NULL DEFAULT '',
    reading      JSONB,
    settings     JSONB NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS actuation_journal_recorded_idx
    ON actuation_journal (recorded_at DESC, entry_id DESC);`

// Journal provides Postgres-backed persistence for journal entries.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal constructs a Journal.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// EnsureSchema creates the journal table when it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Record implements persistence.Journal.
func (j *Journal) Record(ctx context.Context, entry persistence.Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}

	settings, err := json.Marshal(entry.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	var reading interface{}
	if entry.Reading != nil {
		raw, err := json.Marshal(entry.Reading)
		if err != nil {
			return fmt.Errorf("encode reading: %w", err)
		}
		reading = raw
	}

	const insert = `INSERT INTO actuation_journal (entry_id, mental_state, confidence, source, annotation, reasoning, reading, settings, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = j.pool.Exec(ctx, insert,
		entry.ID,
		string(entry.State),
		entry.Confidence,
		entry.Source,
		entry.Annotation,
		entry.Reasoning,
		reading,
		settings,
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent implements persistence.Journal.
func (j *Journal) Recent(ctx context.Context, cursor *persistence.Cursor, limit int) ([]persistence.Entry, *persistence.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}
	args := []interface{}{limit}
	query := `SELECT entry_id, mental_state, confidence, source, annotation, reasoning, reading, settings, recorded_at
        FROM actuation_journal`

	if cursor != nil {
		query += ` WHERE (recorded_at, entry_id) < ($2, $3)`
		args = append(args, cursor.RecordedAt, cursor.ID)
	}

	query += ` ORDER BY recorded_at DESC, entry_id DESC LIMIT $1`

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	results := make([]persistence.Entry, 0, limit)
	for rows.Next() {
		var (
			entry             persistence.Entry
			state             string
			reading, settings []byte
		)
		if err := rows.Scan(&entry.ID, &state, &entry.Confidence, &entry.Source, &entry.Annotation, &entry.Reasoning, &reading, &settings, &entry.RecordedAt); err != nil {
			return nil, nil, err
		}
		entry.State = domain.MentalState(state)
		if len(reading) > 0 {
			var r domain.Reading
			if err := json.Unmarshal(reading, &r); err != nil {
				return nil, nil, fmt.Errorf("decode reading of %s: %w", entry.ID, err)
			}
			entry.Reading = &r
		}
		if err := json.Unmarshal(settings, &entry.Settings); err != nil {
			return nil, nil, fmt.Errorf("decode settings of %s: %w", entry.ID, err)
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *persistence.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &persistence.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return results, next, nil
}
