package observation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository reads the pre-populated weather_observations archive. Rows are
// bulk-loaded offline; the request path only ever reads them.
type Repository interface {
	GetRange(ctx context.Context, locationID uuid.UUID, start, end time.Time) ([]types.WeatherObservation, error)
	CountByLocation(ctx context.Context, locationID uuid.UUID) (int64, error)
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

// GetRange returns archived observations for a location between start and end
// inclusive, ordered by date. An empty result is not an error; the caller
// falls back to a live fetch.
func (r *RepositoryImpl) GetRange(ctx context.Context, locationID uuid.UUID, start, end time.Time) ([]types.WeatherObservation, error) {
	ctx, span := otel.Tracer("ObservationRepository").Start(ctx, "GetRange", trace.WithAttributes(
		attribute.String("location.id", locationID.String()),
		attribute.String("range.start", start.Format("2006-01-02")),
		attribute.String("range.end", end.Format("2006-01-02")),
	))
	defer span.End()

	query := `
        SELECT
            id, location_id, observation_date,
            COALESCE(temp_max_c, 0), COALESCE(temp_min_c, 0), COALESCE(temp_avg_c, 0),
            COALESCE(humidity, 0), COALESCE(precip_mm, 0), COALESCE(precip_prob, 0),
            COALESCE(wind_kph, 0), COALESCE(pressure_mb, 0), COALESCE(cloud_cover, 0),
            COALESCE(uv_index, 0), COALESCE(visibility_km, 0),
            COALESCE(condition_code, ''), COALESCE(conditions, ''),
            COALESCE(sunrise, ''), COALESCE(sunset, ''),
            source
        FROM weather_observations
        WHERE location_id = $1 AND observation_date BETWEEN $2 AND $3
        ORDER BY observation_date ASC
    `

	rows, err := r.pgpool.Query(ctx, query, locationID, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query observations for location %s: %w", locationID, err)
	}
	defer rows.Close()

	var observations []types.WeatherObservation
	for rows.Next() {
		var o types.WeatherObservation
		if err := rows.Scan(
			&o.ID, &o.LocationID, &o.Date,
			&o.TempMaxC, &o.TempMinC, &o.TempAvgC,
			&o.Humidity, &o.PrecipMm, &o.PrecipProb,
			&o.WindKph, &o.PressureMb, &o.CloudCover,
			&o.UVIndex, &o.VisibilityKm,
			&o.ConditionCode, &o.Conditions,
			&o.Sunrise, &o.Sunset,
			&o.Source,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan observation row: %w", err)
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating observation rows: %w", err)
	}

	span.SetAttributes(attribute.Int("results.count", len(observations)))
	span.SetStatus(codes.Ok, "Observations retrieved")
	return observations, nil
}

// CountByLocation reports how many archived rows reference a location. Used to
// block deletion of locations with dependent observations.
func (r *RepositoryImpl) CountByLocation(ctx context.Context, locationID uuid.UUID) (int64, error) {
	var count int64
	err := r.pgpool.QueryRow(ctx,
		`SELECT COUNT(*) FROM weather_observations WHERE location_id = $1`,
		locationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations for location %s: %w", locationID, err)
	}
	return count, nil
}
