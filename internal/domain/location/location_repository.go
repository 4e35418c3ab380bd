package location

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	FindByCoordinates(ctx context.Context, lat, lon, radiusMeters float64) (*types.Location, error)
	SearchByText(ctx context.Context, query string, limit int) ([]types.Location, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Location, error)
	List(ctx context.Context, page, limit int) ([]types.Location, int64, error)
	Insert(ctx context.Context, params types.CreateLocationParams) (*types.Location, error)
	Update(ctx context.Context, id uuid.UUID, params types.UpdateLocationParams) error
	Delete(ctx context.Context, id uuid.UUID) error
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

const locationColumns = `
        id, name, country,
        COALESCE(country_code, '') as country_code,
        COALESCE(state_province, '') as state_province,
        latitude, longitude,
        COALESCE(timezone, '') as timezone,
        COALESCE(elevation, 0) as elevation,
        created_at, updated_at`

// FindByCoordinates resolves the nearest stored location within radiusMeters
// of (lat, lon), or nil when none qualifies. The search runs in two phases: a
// bounding-box filter served by the GIST index narrows the table to a handful
// of candidates, then the exact geodesic distance is computed only for those
// and the nearest one under the radius wins. A naive per-row distance scan
// cannot use the spatial index and degrades linearly with table size.
func (r *RepositoryImpl) FindByCoordinates(ctx context.Context, lat, lon, radiusMeters float64) (*types.Location, error) {
	ctx, span := otel.Tracer("LocationRepository").Start(ctx, "FindByCoordinates", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
		attribute.Float64("radius_meters", radiusMeters),
	))
	defer span.End()

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: invalid coordinates lat=%f, lon=%f", types.ErrBadRequest, lat, lon)
	}

	box := boundingBoxForRadius(lat, lon, radiusMeters)

	// ST_MakePoint takes longitude first.
	query := `
        SELECT` + locationColumns + `,
            ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_meters
        FROM locations
        WHERE geom && ST_MakeEnvelope($3, $4, $5, $6, 4326)
          AND ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) <= $7
        ORDER BY distance_meters ASC
        LIMIT 1
    `

	var loc types.Location
	var distance float64
	err := r.pgpool.QueryRow(ctx, query,
		lon, lat,
		box.MinLon, box.MinLat, box.MaxLon, box.MaxLat,
		radiusMeters,
	).Scan(
		&loc.ID, &loc.Name, &loc.Country, &loc.CountryCode, &loc.StateProvince,
		&loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.Elevation,
		&loc.CreatedAt, &loc.UpdatedAt, &distance,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			span.SetStatus(codes.Ok, "No location within radius")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find location near (%f, %f): %w", lat, lon, err)
	}

	span.SetAttributes(
		attribute.String("location.id", loc.ID.String()),
		attribute.Float64("location.distance_meters", distance),
	)
	span.SetStatus(codes.Ok, "Location found")
	return &loc, nil
}

// SearchByText performs a full-text relevance search over name, country and
// state, ordered by rank then name, for autocomplete.
func (r *RepositoryImpl) SearchByText(ctx context.Context, query string, limit int) ([]types.Location, error) {
	ctx, span := otel.Tracer("LocationRepository").Start(ctx, "SearchByText", trace.WithAttributes(
		attribute.String("query", query),
		attribute.Int("limit", limit),
	))
	defer span.End()

	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
        SELECT` + locationColumns + `
        FROM locations
        WHERE search_vector @@ plainto_tsquery('simple', $1)
        ORDER BY ts_rank(search_vector, plainto_tsquery('simple', $1)) DESC, name ASC
        LIMIT $2
    `

	rows, err := r.pgpool.Query(ctx, sqlQuery, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to search locations for %q: %w", query, err)
	}
	defer rows.Close()

	locations, err := scanLocations(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("results.count", len(locations)))
	span.SetStatus(codes.Ok, "Search completed")
	return locations, nil
}

// GetByID fetches one location or nil when it does not exist.
func (r *RepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*types.Location, error) {
	query := `SELECT` + locationColumns + ` FROM locations WHERE id = $1`

	var loc types.Location
	err := r.pgpool.QueryRow(ctx, query, id).Scan(
		&loc.ID, &loc.Name, &loc.Country, &loc.CountryCode, &loc.StateProvince,
		&loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.Elevation,
		&loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}
	return &loc, nil
}

// List returns one page of locations ordered by name plus the total count.
func (r *RepositoryImpl) List(ctx context.Context, page, limit int) ([]types.Location, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query, args, err := sq.Select(
		"id", "name", "country",
		"COALESCE(country_code, '')", "COALESCE(state_province, '')",
		"latitude", "longitude",
		"COALESCE(timezone, '')", "COALESCE(elevation, 0)",
		"created_at", "updated_at",
	).
		From("locations").
		OrderBy("name ASC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	locations, err := scanLocations(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pgpool.QueryRow(ctx, `SELECT COUNT(*) FROM locations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count locations: %w", err)
	}

	return locations, total, nil
}

// Insert creates a location row with its derived spatial point.
func (r *RepositoryImpl) Insert(ctx context.Context, p types.CreateLocationParams) (*types.Location, error) {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return nil, fmt.Errorf("%w: invalid coordinates lat=%f, lon=%f", types.ErrBadRequest, p.Latitude, p.Longitude)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: location name is required", types.ErrBadRequest)
	}

	query := `
        INSERT INTO locations (name, country, country_code, state_province, latitude, longitude, geom, timezone, elevation)
        VALUES ($1, $2, $3, $4, $5, $6, ST_SetSRID(ST_MakePoint($6, $5), 4326), $7, $8)
        RETURNING` + locationColumns + `
    `

	var loc types.Location
	err := r.pgpool.QueryRow(ctx, query,
		p.Name, p.Country,
		newNullString(p.CountryCode), newNullString(p.StateProvince),
		p.Latitude, p.Longitude,
		newNullString(p.Timezone), p.Elevation,
	).Scan(
		&loc.ID, &loc.Name, &loc.Country, &loc.CountryCode, &loc.StateProvince,
		&loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.Elevation,
		&loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert location: %w", err)
	}

	r.logger.InfoContext(ctx, "location created",
		slog.String("location_id", loc.ID.String()),
		slog.String("name", loc.Name))
	return &loc, nil
}

// Update applies administrative edits; nil fields are left untouched.
func (r *RepositoryImpl) Update(ctx context.Context, id uuid.UUID, p types.UpdateLocationParams) error {
	builder := sq.Update("locations").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)

	if p.Name != nil {
		builder = builder.Set("name", *p.Name)
	}
	if p.Country != nil {
		builder = builder.Set("country", *p.Country)
	}
	if p.CountryCode != nil {
		builder = builder.Set("country_code", *p.CountryCode)
	}
	if p.StateProvince != nil {
		builder = builder.Set("state_province", *p.StateProvince)
	}
	if p.Timezone != nil {
		builder = builder.Set("timezone", *p.Timezone)
	}
	if p.Elevation != nil {
		builder = builder.Set("elevation", *p.Elevation)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update location %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: location %s", types.ErrNotFound, id)
	}
	return nil
}

// Delete removes a location row. Referential checks against dependent
// observations live in the service layer.
func (r *RepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: location %s", types.ErrNotFound, id)
	}
	return nil
}

func scanLocations(rows pgx.Rows) ([]types.Location, error) {
	var locations []types.Location
	for rows.Next() {
		var loc types.Location
		if err := rows.Scan(
			&loc.ID, &loc.Name, &loc.Country, &loc.CountryCode, &loc.StateProvince,
			&loc.Latitude, &loc.Longitude, &loc.Timezone, &loc.Elevation,
			&loc.CreatedAt, &loc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location rows: %w", err)
	}
	return locations, nil
}

// newNullString converts empty strings to NULL for insertion.
func newNullString(s string) sql.NullString {
	if len(s) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
