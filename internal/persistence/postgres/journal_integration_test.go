//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/persistence"
)

func TestJournalRoundTripAndPaging(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("moodsync"),
		postgrescontainer.WithUsername("moodsync"),
		postgrescontainer.WithPassword("moodsync"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	journal := NewJournal(pool)
	require.NoError(t, journal.EnsureSchema(ctx))
	require.NoError(t, journal.EnsureSchema(ctx))

	base := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	reading := domain.Reading{HeartRate: 92, BloodOxygen: 97, StressLevel: 71, Steps: 1200, Calories: 80, Timestamp: base}
	for i := 0; i < 3; i++ {
		entry := persistence.Entry{
			ID:         fmt.Sprintf("entry-%d", i),
			State:      domain.StateStressed,
			Confidence: 0.8,
			Source:     "openai",
			Annotation: "long day",
			Settings: domain.ActuationSettings{
				Lights:      domain.LightSettings{Color: "#4A6FE3", Hue: 46920, Saturation: 254, Brightness: 127},
				Music:       domain.MusicSettings{Genre: "calming", Tracks: []string{"Peaceful Piano"}},
				Temperature: 72,
				State:       domain.StateStressed,
			},
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i == 0 {
			entry.Reading = &reading
		}
		require.NoError(t, journal.Record(ctx, entry))
	}

	page, next, err := journal.Recent(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "entry-2", page[0].ID)
	require.Equal(t, 72, page[0].Settings.Temperature)
	require.Nil(t, page[0].Reading)
	require.NotNil(t, next)

	page, next, err = journal.Recent(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "entry-0", page[0].ID)
	require.NotNil(t, page[0].Reading)
	require.Equal(t, 92, page[0].Reading.HeartRate)
	require.Equal(t, []string{"Peaceful Piano"}, page[0].Settings.Music.Tracks)
	require.Nil(t, next)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
