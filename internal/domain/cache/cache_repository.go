package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

var _ Store = (*RepositoryImpl)(nil)

// Store is the persistence contract for the weather_cache table. Get and Put
// never return errors: the cache is a performance optimization and read/write
// failures must not break the primary request path.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, params PutParams) bool
	SweepExpired(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearBySource(ctx context.Context, source string) (int64, error)
	Stats(ctx context.Context) (*types.CacheStats, error)
}

// PutParams carries one upsert into the cache table.
type PutParams struct {
	Key        string
	Source     string
	LocationID *uuid.UUID
	Params     map[string]string
	Payload    []byte
	TTL        time.Duration
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewRepository(pgpool *pgxpool.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

// DeriveKey computes the deterministic cache key for a source and its request
// parameters. Parameters are marshalled as a map, which encoding/json emits in
// sorted key order, so insertion order never changes the digest.
func DeriveKey(source string, params map[string]string) string {
	keyData := make(map[string]string, len(params)+1)
	keyData["source"] = source
	for k, v := range params {
		keyData[k] = v
	}
	keyBytes, _ := json.Marshal(keyData)
	hash := md5.Sum(keyBytes)
	return hex.EncodeToString(hash[:])
}

// Get returns the payload for key if a non-expired row exists. Read errors are
// logged and reported as a miss.
func (r *RepositoryImpl) Get(ctx context.Context, key string) ([]byte, bool) {
	query := `
        SELECT payload
        FROM weather_cache
        WHERE cache_key = $1 AND expires_at > NOW()
    `

	var payload []byte
	err := r.pgpool.QueryRow(ctx, query, key).Scan(&payload)
	if err != nil {
		if err != pgx.ErrNoRows {
			r.logger.WarnContext(ctx, "cache read failed, treating as miss",
				slog.Any("error", err),
				slog.String("cache_key", key))
		}
		return nil, false
	}

	return payload, true
}

// Put upserts the entry, replacing payload and resetting expiry on conflict.
// Write errors are logged and reported as false.
func (r *RepositoryImpl) Put(ctx context.Context, p PutParams) bool {
	query := `
        INSERT INTO weather_cache (cache_key, source, location_id, params, payload, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW() + $6)
        ON CONFLICT (cache_key) DO UPDATE SET
            source = EXCLUDED.source,
            location_id = EXCLUDED.location_id,
            params = EXCLUDED.params,
            payload = EXCLUDED.payload,
            created_at = EXCLUDED.created_at,
            expires_at = EXCLUDED.expires_at
    `

	var paramsJSON []byte
	if p.Params != nil {
		paramsJSON, _ = json.Marshal(p.Params)
	}

	_, err := r.pgpool.Exec(ctx, query, p.Key, p.Source, p.LocationID, paramsJSON, p.Payload, p.TTL)
	if err != nil {
		r.logger.WarnContext(ctx, "cache write failed",
			slog.Any("error", err),
			slog.String("cache_key", p.Key),
			slog.String("source", p.Source))
		return false
	}

	return true
}

// SweepExpired deletes every row whose expiry has passed and returns the count.
func (r *RepositoryImpl) SweepExpired(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("CacheRepository").Start(ctx, "SweepExpired")
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM weather_cache WHERE expires_at <= NOW()`)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to sweep expired cache entries", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Sweep failed")
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}

	deleted := tag.RowsAffected()
	span.SetAttributes(attribute.Int64("cache.deleted", deleted))
	span.SetStatus(codes.Ok, "Sweep completed")
	return deleted, nil
}

// ClearAll empties the cache table.
func (r *RepositoryImpl) ClearAll(ctx context.Context) (int64, error) {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM weather_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearBySource deletes every entry written for the given source identifier.
func (r *RepositoryImpl) ClearBySource(ctx context.Context, source string) (int64, error) {
	query, args, err := sq.Delete("weather_cache").
		Where(sq.Eq{"source": source}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build clear query: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache for source %q: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// Stats reports entry counts and age bounds for the admin endpoint.
func (r *RepositoryImpl) Stats(ctx context.Context) (*types.CacheStats, error) {
	ctx, span := otel.Tracer("CacheRepository").Start(ctx, "Stats")
	defer span.End()

	stats := &types.CacheStats{}

	err := r.pgpool.QueryRow(ctx, `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE expires_at <= NOW()),
            MIN(created_at),
            MAX(created_at)
        FROM weather_cache
    `).Scan(&stats.TotalEntries, &stats.ExpiredEntries, &stats.OldestEntry, &stats.NewestEntry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stats query failed")
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}

	query, args, err := sq.Select("source", "COUNT(*)").
		From("weather_cache").
		GroupBy("source").
		OrderBy("COUNT(*) DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stats query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query cache stats by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc types.SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan source count row: %w", err)
		}
		stats.BySource = append(stats.BySource, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source count rows: %w", err)
	}

	span.SetAttributes(attribute.Int64("cache.total", stats.TotalEntries))
	span.SetStatus(codes.Ok, "Stats retrieved")
	return stats, nil
}
