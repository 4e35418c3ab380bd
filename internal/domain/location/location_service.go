package location

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

// DefaultMatchRadiusMeters is the radius used when resolving coordinates to a
// canonical location.
const DefaultMatchRadiusMeters = 10000

// dedupeRadiusMeters bounds how close two canonical rows may sit; Create
// returns the existing row instead of inserting inside this radius.
const dedupeRadiusMeters = 1000

// ObservationCounter reports how many archived observations reference a
// location. Satisfied by the observation repository.
type ObservationCounter interface {
	CountByLocation(ctx context.Context, locationID uuid.UUID) (int64, error)
}

type Service struct {
	repo         Repository
	observations ObservationCounter
	logger       *slog.Logger
	l1           *cache.Cache
}

func NewService(repo Repository, observations ObservationCounter, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		observations: observations,
		logger:       logger,
		l1:           cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Resolve matches a free-form location string to a canonical Location. A
// "lat,lon" string resolves spatially; anything else goes through full-text
// search. Returns nil when nothing matches — callers fall back to a live
// provider lookup rather than failing.
func (s *Service) Resolve(ctx context.Context, query string) (*types.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty location query", types.ErrBadRequest)
	}

	cacheKey := "resolve:" + strings.ToLower(query)
	if cached, found := s.l1.Get(cacheKey); found {
		loc := cached.(types.Location)
		return &loc, nil
	}

	if lat, lon, ok := parseCoordinates(query); ok {
		loc, err := s.repo.FindByCoordinates(ctx, lat, lon, DefaultMatchRadiusMeters)
		if err != nil || loc == nil {
			return loc, err
		}
		s.l1.Set(cacheKey, *loc, cache.DefaultExpiration)
		return loc, nil
	}

	matches, err := s.repo.SearchByText(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		s.logger.DebugContext(ctx, "no canonical location for query", slog.String("query", query))
		return nil, nil
	}

	s.l1.Set(cacheKey, matches[0], cache.DefaultExpiration)
	return &matches[0], nil
}

// FindByCoordinates is the spatial nearest-match lookup.
func (s *Service) FindByCoordinates(ctx context.Context, lat, lon, radiusMeters float64) (*types.Location, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultMatchRadiusMeters
	}
	return s.repo.FindByCoordinates(ctx, lat, lon, radiusMeters)
}

// Search runs the autocomplete text search.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]types.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", types.ErrBadRequest)
	}

	cacheKey := fmt.Sprintf("search:%s:%d", strings.ToLower(query), limit)
	if cached, found := s.l1.Get(cacheKey); found {
		return cached.([]types.Location), nil
	}

	matches, err := s.repo.SearchByText(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.l1.Set(cacheKey, matches, cache.DefaultExpiration)
	return matches, nil
}

// Get fetches one location by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.Location, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("%w: location %s", types.ErrNotFound, id)
	}
	return loc, nil
}

// List returns a page of locations plus the total count.
func (s *Service) List(ctx context.Context, page, limit int) ([]types.Location, int64, error) {
	return s.repo.List(ctx, page, limit)
}

// Create inserts a location, first re-checking FindByCoordinates so repeated
// resolutions of the same place do not accumulate duplicate rows. The existing
// row wins.
func (s *Service) Create(ctx context.Context, params types.CreateLocationParams) (*types.Location, error) {
	existing, err := s.repo.FindByCoordinates(ctx, params.Latitude, params.Longitude, dedupeRadiusMeters)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.DebugContext(ctx, "reusing existing location",
			slog.String("location_id", existing.ID.String()),
			slog.String("name", existing.Name))
		return existing, nil
	}

	return s.repo.Insert(ctx, params)
}

// Update applies administrative edits.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params types.UpdateLocationParams) error {
	return s.repo.Update(ctx, id, params)
}

// Delete removes a location unless archived observations still reference it.
// The check lives here, not in a foreign key, so the error carries a reason
// the caller can surface.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.observations.CountByLocation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check dependent observations: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: location has %d dependent weather observations", types.ErrConflict, count)
	}
	return s.repo.Delete(ctx, id)
}

// parseCoordinates recognizes "lat,lon" strings.
func parseCoordinates(query string) (lat, lon float64, ok bool) {
	parts := strings.Split(query, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
