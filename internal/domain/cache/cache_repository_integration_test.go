//go:build integration

package cache

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCacheDB   *pgxpool.Pool
	testCacheRepo Store
)

func TestMain(m *testing.M) {
	if err := godotenv.Load("../../../.env.test"); err != nil {
		log.Println("Warning: .env.test file not found for cache integration tests.")
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("TEST_DATABASE_URL environment variable is not set for cache integration tests")
	}

	var err error
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatalf("Unable to parse TEST_DATABASE_URL: %v\n", err)
	}
	config.MaxConns = 5

	testCacheDB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("Unable to create connection pool for cache tests: %v\n", err)
	}
	defer testCacheDB.Close()

	if err := testCacheDB.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping test database for cache tests: %v\n", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	testCacheRepo = NewRepository(testCacheDB, logger)

	exitCode := m.Run()
	os.Exit(exitCode)
}

func clearCacheTable(t *testing.T) {
	t.Helper()
	_, err := testCacheDB.Exec(context.Background(), "DELETE FROM weather_cache")
	require.NoError(t, err, "Failed to clear weather_cache")
}

func TestCacheRepository_PutGet_Integration(t *testing.T) {
	ctx := context.Background()
	clearCacheTable(t)

	key := DeriveKey("test-source", map[string]string{"location": "lisbon"})
	payload := []byte(`{"success": true}`)

	ok := testCacheRepo.Put(ctx, PutParams{
		Key:     key,
		Source:  "test-source",
		Params:  map[string]string{"location": "lisbon"},
		Payload: payload,
		TTL:     time.Hour,
	})
	require.True(t, ok)

	got, found := testCacheRepo.Get(ctx, key)
	require.True(t, found)
	assert.JSONEq(t, string(payload), string(got))

	t.Run("upsert replaces payload and resets expiry", func(t *testing.T) {
		newPayload := []byte(`{"success": true, "query_cost": 1}`)
		ok := testCacheRepo.Put(ctx, PutParams{
			Key:     key,
			Source:  "test-source",
			Payload: newPayload,
			TTL:     time.Hour,
		})
		require.True(t, ok)

		got, found := testCacheRepo.Get(ctx, key)
		require.True(t, found)
		assert.JSONEq(t, string(newPayload), string(got))
	})

	t.Run("unknown key is a miss", func(t *testing.T) {
		_, found := testCacheRepo.Get(ctx, "no-such-key")
		assert.False(t, found)
	})
}

func TestCacheRepository_Expiry_Integration(t *testing.T) {
	ctx := context.Background()
	clearCacheTable(t)

	key := DeriveKey("test-source", map[string]string{"location": "expired"})
	ok := testCacheRepo.Put(ctx, PutParams{
		Key:     key,
		Source:  "test-source",
		Payload: []byte(`{}`),
		TTL:     -time.Second,
	})
	require.True(t, ok)

	_, found := testCacheRepo.Get(ctx, key)
	assert.False(t, found, "expired entry must read as a miss")

	deleted, err := testCacheRepo.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCacheRepository_ClearBySource_Integration(t *testing.T) {
	ctx := context.Background()
	clearCacheTable(t)

	for _, source := range []string{"source-a", "source-a", "source-b"} {
		key := DeriveKey(source, map[string]string{"n": time.Now().String()})
		require.True(t, testCacheRepo.Put(ctx, PutParams{
			Key:     key,
			Source:  source,
			Payload: []byte(`{}`),
			TTL:     time.Hour,
		}))
	}

	deleted, err := testCacheRepo.ClearBySource(ctx, "source-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stats, err := testCacheRepo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	require.Len(t, stats.BySource, 1)
	assert.Equal(t, "source-b", stats.BySource[0].Source)
}

func TestCacheRepository_Stats_Integration(t *testing.T) {
	ctx := context.Background()
	clearCacheTable(t)

	require.True(t, testCacheRepo.Put(ctx, PutParams{
		Key:     "live-entry",
		Source:  "test-source",
		Payload: []byte(`{}`),
		TTL:     time.Hour,
	}))
	require.True(t, testCacheRepo.Put(ctx, PutParams{
		Key:     "expired-entry",
		Source:  "test-source",
		Payload: []byte(`{}`),
		TTL:     -time.Second,
	}))

	stats, err := testCacheRepo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.ExpiredEntries)
	require.Len(t, stats.BySource, 1)
	assert.Equal(t, int64(2), stats.BySource[0].Count)
}
