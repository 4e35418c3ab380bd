//go:build integration

package observation

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testObsDB   *pgxpool.Pool
	testObsRepo Repository
)

func TestMain(m *testing.M) {
	if err := godotenv.Load("../../../.env.test"); err != nil {
		log.Println("Warning: .env.test file not found for observation integration tests.")
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("TEST_DATABASE_URL environment variable is not set for observation integration tests")
	}

	var err error
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("Unable to parse TEST_DATABASE_URL: %v\n", err)
	}
	config.MaxConns = 5

	testObsDB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("Unable to create connection pool for observation tests: %v\n", err)
	}
	defer testObsDB.Close()

	if err := testObsDB.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping test database for observation tests: %v\n", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	testObsRepo = NewRepository(testObsDB, logger)

	exitCode := m.Run()
	os.Exit(exitCode)
}

// seedObservationLocation inserts a throwaway location row and returns its id.
func seedObservationLocation(t *testing.T) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := testObsDB.QueryRow(context.Background(), `
        INSERT INTO locations (name, country, latitude, longitude, geom)
        VALUES ($1, 'Testland', 1, 1, ST_SetSRID(ST_MakePoint(1, 1), 4326))
        RETURNING id
    `, "TestObsLoc-"+uuid.NewString()).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testObsDB.Exec(context.Background(), "DELETE FROM weather_observations WHERE location_id = $1", id)
		_, _ = testObsDB.Exec(context.Background(), "DELETE FROM locations WHERE id = $1", id)
	})
	return id
}

func seedObservation(t *testing.T, locationID uuid.UUID, date time.Time, tempMax float64) {
	t.Helper()
	_, err := testObsDB.Exec(context.Background(), `
        INSERT INTO weather_observations (location_id, observation_date, temp_max_c, temp_min_c, temp_avg_c, source)
        VALUES ($1, $2, $3, $3 - 10, $3 - 5, 'test')
    `, locationID, date, tempMax)
	require.NoError(t, err)
}

func TestObservationRepository_GetRange_Integration(t *testing.T) {
	ctx := context.Background()
	locationID := seedObservationLocation(t)

	base := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedObservation(t, locationID, base.AddDate(0, 0, i), 20+float64(i))
	}

	t.Run("returns rows in the range ordered by date", func(t *testing.T) {
		got, err := testObsRepo.GetRange(ctx, locationID, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 21.0, got[0].TempMaxC)
		assert.Equal(t, 23.0, got[2].TempMaxC)
		assert.True(t, got[0].Date.Before(got[1].Date))
	})

	t.Run("range endpoints are inclusive", func(t *testing.T) {
		got, err := testObsRepo.GetRange(ctx, locationID, base, base.AddDate(0, 0, 4))
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("empty range is not an error", func(t *testing.T) {
		got, err := testObsRepo.GetRange(ctx, locationID, base.AddDate(1, 0, 0), base.AddDate(1, 0, 7))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestObservationRepository_CountByLocation_Integration(t *testing.T) {
	ctx := context.Background()
	locationID := seedObservationLocation(t)

	count, err := testObsRepo.CountByLocation(ctx, locationID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	seedObservation(t, locationID, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 20)
	seedObservation(t, locationID, time.Date(2020, 6, 2, 0, 0, 0, 0, time.UTC), 21)

	count, err = testObsRepo.CountByLocation(ctx, locationID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
