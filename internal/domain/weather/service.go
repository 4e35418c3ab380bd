package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cachesvc "github.com/michaelbuckingham/meteo-api/internal/domain/cache"
	"github.com/michaelbuckingham/meteo-api/internal/types"
	"github.com/michaelbuckingham/meteo-api/pkg/config"
	"github.com/michaelbuckingham/meteo-api/pkg/observability"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = 15
	defaultHistoryYears = 10
	maxHistoryYears     = 50
)

var _ ProviderGateway = (*Gateway)(nil)

// ProviderGateway is the outbound provider surface the service depends on.
type ProviderGateway interface {
	FetchCurrent(ctx context.Context, location string) *types.WeatherResult
	FetchForecast(ctx context.Context, location string, days int) *types.WeatherResult
	FetchHistorical(ctx context.Context, location string, start, end time.Time) *types.WeatherResult
}

// CacheWrapper is the cache-aside combinator the service routes live fetches
// through. Satisfied by the cache service.
type CacheWrapper interface {
	Wrap(ctx context.Context, source string, locationID *uuid.UUID, params map[string]string, ttl time.Duration, fn cachesvc.FetchFunc) (*types.WeatherResult, error)
}

// LocationResolver matches a free-form location string to a canonical row.
type LocationResolver interface {
	Resolve(ctx context.Context, query string) (*types.Location, error)
}

// ObservationReader reads the pre-populated archive.
type ObservationReader interface {
	GetRange(ctx context.Context, locationID uuid.UUID, start, end time.Time) ([]types.WeatherObservation, error)
}

// Service is the weather core facade: current/forecast requests go through
// the cache-aside layer, historical requests try the zero-cost observation
// archive before spending provider budget.
type Service struct {
	gateway      ProviderGateway
	cache        CacheWrapper
	locations    LocationResolver
	observations ObservationReader
	archive      config.ArchiveConfig
	ttl          config.CacheConfig
	metrics      *observability.Metrics
	logger       *slog.Logger
}

func NewService(
	gateway ProviderGateway,
	cache CacheWrapper,
	locations LocationResolver,
	observations ObservationReader,
	archive config.ArchiveConfig,
	ttl config.CacheConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		gateway:      gateway,
		cache:        cache,
		locations:    locations,
		observations: observations,
		archive:      archive,
		ttl:          ttl,
		metrics:      metrics,
		logger:       logger,
	}
}

// GetCurrentWeather returns current conditions, cached per location.
func (s *Service) GetCurrentWeather(ctx context.Context, location string) (*types.WeatherResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", types.ErrBadRequest)
	}

	params := map[string]string{
		"location": strings.ToLower(location),
		"request":  "current",
	}
	return s.cache.Wrap(ctx, sourceName+"-current", nil, params, s.ttl.CurrentTTL, func(ctx context.Context) (*types.WeatherResult, error) {
		return s.gateway.FetchCurrent(ctx, location), nil
	})
}

// GetForecast returns up to days of daily forecast, cached per (location, days).
func (s *Service) GetForecast(ctx context.Context, location string, days int) (*types.WeatherResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", types.ErrBadRequest)
	}
	if days <= 0 {
		days = defaultForecastDays
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	params := map[string]string{
		"location": strings.ToLower(location),
		"request":  "forecast",
		"days":     strconv.Itoa(days),
	}
	return s.cache.Wrap(ctx, sourceName+"-forecast", nil, params, s.ttl.ForecastTTL, func(ctx context.Context) (*types.WeatherResult, error) {
		return s.gateway.FetchForecast(ctx, location, days), nil
	})
}

// GetHistoricalWeather serves a date range, preferring the observation archive
// over provider spend. The fallback chain — range check, location resolution,
// archive read, live fetch — degrades step by step instead of failing: any
// miss or lookup error just moves on to the next strategy.
func (s *Service) GetHistoricalWeather(ctx context.Context, location string, start, end time.Time) (*types.WeatherResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", types.ErrBadRequest)
	}
	if start.IsZero() || end.IsZero() || start.After(end) {
		return nil, fmt.Errorf("%w: invalid date range", types.ErrBadRequest)
	}

	if s.rangeInArchive(start, end) {
		if result := s.tryArchive(ctx, location, start, end); result != nil {
			return result, nil
		}
	}

	params := map[string]string{
		"location": strings.ToLower(location),
		"request":  "historical",
		"start":    start.Format("2006-01-02"),
		"end":      end.Format("2006-01-02"),
	}
	return s.cache.Wrap(ctx, sourceName+"-historical", nil, params, s.ttl.HistoricalTTL, func(ctx context.Context) (*types.WeatherResult, error) {
		return s.gateway.FetchHistorical(ctx, location, start, end), nil
	})
}

func (s *Service) rangeInArchive(start, end time.Time) bool {
	return !start.Before(s.archive.Start) && !end.After(s.archive.End)
}

// tryArchive returns a database-sourced result, or nil when the archive
// cannot serve the request and the caller should fall through to a live fetch.
func (s *Service) tryArchive(ctx context.Context, location string, start, end time.Time) *types.WeatherResult {
	loc, err := s.locations.Resolve(ctx, location)
	if err != nil {
		s.logger.WarnContext(ctx, "location resolution failed, falling back to live fetch",
			slog.Any("error", err),
			slog.String("location", location))
		return nil
	}
	if loc == nil {
		return nil
	}

	observations, err := s.observations.GetRange(ctx, loc.ID, start, end)
	if err != nil {
		s.logger.WarnContext(ctx, "archive read failed, falling back to live fetch",
			slog.Any("error", err),
			slog.String("location_id", loc.ID.String()))
		return nil
	}
	if len(observations) == 0 {
		return nil
	}

	s.metrics.ArchiveHits.Inc()

	result := &types.WeatherResult{
		Success: true,
		Source:  types.SourceDatabase,
		Location: &types.ResolvedLocation{
			Name:      loc.Name,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Timezone:  loc.Timezone,
			Elevation: loc.Elevation,
		},
		QueryCost: 0,
	}
	for _, o := range observations {
		result.Historical = append(result.Historical, observationToDay(o))
	}
	return result
}

// GetHistoricalDateData fetches one calendar date across several years in
// bounded concurrent batches and summarizes the results. Each year reuses
// GetHistoricalWeather, so archive hits and cached entries cost nothing.
func (s *Service) GetHistoricalDateData(ctx context.Context, location, monthDay string, years int) (*types.HistoricalDateResult, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", types.ErrBadRequest)
	}
	if years <= 0 {
		years = defaultHistoryYears
	}
	if years > maxHistoryYears {
		years = maxHistoryYears
	}

	var costMu sync.Mutex
	var totalCost float64

	batch, err := FetchDateAcrossYears(ctx, monthDay, BatchOptions{
		Years:     years,
		StartYear: time.Now().Year() - 1,
	}, func(ctx context.Context, date string) ([]types.HistoricalDay, error) {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, err
		}
		result, err := s.GetHistoricalWeather(ctx, location, day, day)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			if result.Error != "" {
				return nil, errors.New(result.Error)
			}
			return nil, fmt.Errorf("fetch failed with status %d", result.StatusCode)
		}

		costMu.Lock()
		totalCost += result.QueryCost
		costMu.Unlock()

		return result.Historical, nil
	})
	if err != nil {
		return nil, err
	}

	out := &types.HistoricalDateResult{
		Success:        batch.YearsReceived > 0,
		Location:       location,
		MonthDay:       monthDay,
		YearsRequested: batch.YearsRequested,
		YearsReceived:  batch.YearsReceived,
		Data:           batch.Data,
		Errors:         batch.Errors,
		QueryCost:      totalCost,
	}
	if len(batch.Data) > 0 {
		out.Statistics = computeDateStatistics(batch.Data)
	}
	return out, nil
}

func computeDateStatistics(days []types.HistoricalDay) *types.DateStatistics {
	stats := &types.DateStatistics{
		TempMinC:     days[0].TempMinC,
		TempMaxC:     days[0].TempMaxC,
		YearsSampled: len(days),
	}

	var tempSum float64
	for _, d := range days {
		if d.TempMinC < stats.TempMinC {
			stats.TempMinC = d.TempMinC
		}
		if d.TempMaxC > stats.TempMaxC {
			stats.TempMaxC = d.TempMaxC
		}
		tempSum += d.TempAvgC
		if d.PrecipMm > 0 {
			stats.PrecipDays++
		}
	}
	stats.TempAvgC = tempSum / float64(len(days))
	return stats
}

func observationToDay(o types.WeatherObservation) types.HistoricalDay {
	return types.HistoricalDay{
		Date:          o.Date.Format("2006-01-02"),
		TempMaxC:      o.TempMaxC,
		TempMinC:      o.TempMinC,
		TempAvgC:      o.TempAvgC,
		Humidity:      o.Humidity,
		PrecipMm:      o.PrecipMm,
		WindKph:       o.WindKph,
		PressureMb:    o.PressureMb,
		CloudCover:    o.CloudCover,
		UVIndex:       o.UVIndex,
		VisibilityKm:  o.VisibilityKm,
		ConditionCode: o.ConditionCode,
		Conditions:    o.Conditions,
		Sunrise:       o.Sunrise,
		Sunset:        o.Sunset,
		Source:        types.SourceDatabase,
	}
}
