//go:build integration

package location

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

var (
	testLocationDB   *pgxpool.Pool
	testLocationRepo Repository
)

func TestMain(m *testing.M) {
	if err := godotenv.Load("../../../.env.test"); err != nil {
		log.Println("Warning: .env.test file not found for location integration tests.")
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("TEST_DATABASE_URL environment variable is not set for location integration tests")
	}

	var err error
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("Unable to parse TEST_DATABASE_URL: %v\n", err)
	}
	config.MaxConns = 5

	testLocationDB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("Unable to create connection pool for location tests: %v\n", err)
	}
	defer testLocationDB.Close()

	if err := testLocationDB.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping test database for location tests: %v\n", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	testLocationRepo = NewRepository(testLocationDB, logger)

	exitCode := m.Run()
	os.Exit(exitCode)
}

func clearLocationTables(t *testing.T) {
	t.Helper()
	_, err := testLocationDB.Exec(context.Background(), "DELETE FROM locations WHERE name LIKE 'TestLoc%'")
	require.NoError(t, err, "Failed to clear test locations")
}

func insertTestLocation(t *testing.T, name string, lat, lon float64) *types.Location {
	t.Helper()
	loc, err := testLocationRepo.Insert(context.Background(), types.CreateLocationParams{
		Name:      name,
		Country:   "Testland",
		Latitude:  lat,
		Longitude: lon,
		Timezone:  "UTC",
	})
	require.NoError(t, err)
	require.NotNil(t, loc)
	return loc
}

func TestLocationRepository_FindByCoordinates_Integration(t *testing.T) {
	ctx := context.Background()
	clearLocationTables(t)

	lisbon := insertTestLocation(t, "TestLocLisbon", 38.7223, -9.1393)
	insertTestLocation(t, "TestLocPorto", 41.1579, -8.6291)

	t.Run("finds the nearest row inside the radius", func(t *testing.T) {
		// ~1.5 km from the Lisbon row.
		got, err := testLocationRepo.FindByCoordinates(ctx, 38.7350, -9.1420, 10000)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, lisbon.ID, got.ID)
	})

	t.Run("nothing inside the radius returns nil without error", func(t *testing.T) {
		got, err := testLocationRepo.FindByCoordinates(ctx, 0, 0, 10000)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rejects out-of-range coordinates", func(t *testing.T) {
		_, err := testLocationRepo.FindByCoordinates(ctx, 95, 0, 10000)
		assert.Error(t, err)
	})
}

func TestLocationRepository_SearchByText_Integration(t *testing.T) {
	ctx := context.Background()
	clearLocationTables(t)

	insertTestLocation(t, "TestLocLisbon", 38.7223, -9.1393)
	insertTestLocation(t, "TestLocPorto", 41.1579, -8.6291)

	matches, err := testLocationRepo.SearchByText(ctx, "TestLocLisbon", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "TestLocLisbon", matches[0].Name)

	none, err := testLocationRepo.SearchByText(ctx, "TestLocAtlantis", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocationRepository_List_Integration(t *testing.T) {
	ctx := context.Background()
	clearLocationTables(t)

	insertTestLocation(t, "TestLocA", 10, 10)
	insertTestLocation(t, "TestLocB", 20, 20)
	insertTestLocation(t, "TestLocC", 30, 30)

	page1, total, err := testLocationRepo.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, int64(3))
	assert.Len(t, page1, 2)

	page2, _, err := testLocationRepo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, page2)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}

func TestLocationRepository_UpdateDelete_Integration(t *testing.T) {
	ctx := context.Background()
	clearLocationTables(t)

	loc := insertTestLocation(t, "TestLocMutable", 50, 50)

	newName := "TestLocRenamed"
	newTZ := "Europe/Lisbon"
	err := testLocationRepo.Update(ctx, loc.ID, types.UpdateLocationParams{
		Name:     &newName,
		Timezone: &newTZ,
	})
	require.NoError(t, err)

	got, err := testLocationRepo.GetByID(ctx, loc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newName, got.Name)
	assert.Equal(t, newTZ, got.Timezone)
	assert.Equal(t, "Testland", got.Country, "untouched fields keep their values")

	require.NoError(t, testLocationRepo.Delete(ctx, loc.ID))
	gone, err := testLocationRepo.GetByID(ctx, loc.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
