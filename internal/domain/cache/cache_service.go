package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbuckingham/meteo-api/internal/types"
	"github.com/michaelbuckingham/meteo-api/pkg/observability"
)

// FetchFunc produces a fresh result on a cache miss.
type FetchFunc func(ctx context.Context) (*types.WeatherResult, error)

// Service implements the cache-aside pattern on top of Store.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewService(store Store, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Wrap checks the cache before invoking fn. On a hit the stored payload is
// returned tagged FromCache=true and fn is never called. On a miss, fn runs
// and — only when the result reports Success — the payload is stored with the
// given TTL before being returned tagged FromCache=false. Failed results are
// deliberately never cached so a transient upstream failure cannot poison the
// cache until TTL expiry.
func (s *Service) Wrap(ctx context.Context, source string, locationID *uuid.UUID, params map[string]string, ttl time.Duration, fn FetchFunc) (*types.WeatherResult, error) {
	key := DeriveKey(source, params)

	if payload, found := s.store.Get(ctx, key); found {
		var cached types.WeatherResult
		if err := json.Unmarshal(payload, &cached); err == nil {
			s.metrics.CacheHits.WithLabelValues(source).Inc()
			cached.FromCache = true
			return &cached, nil
		}
		// Undecodable payload behaves like a miss; the upsert below replaces it.
		s.logger.WarnContext(ctx, "discarding undecodable cache payload",
			slog.String("cache_key", key),
			slog.String("source", source))
	}

	s.metrics.CacheMisses.WithLabelValues(source).Inc()

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	result.FromCache = false

	if result.Success {
		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to marshal result for caching",
				slog.Any("error", err),
				slog.String("cache_key", key))
			return result, nil
		}
		s.store.Put(ctx, PutParams{
			Key:        key,
			Source:     source,
			LocationID: locationID,
			Params:     params,
			Payload:    payload,
			TTL:        ttl,
		})
	}

	return result, nil
}

// SweepExpired exposes the store sweep for the scheduler and admin endpoint.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "swept expired cache entries", slog.Int64("deleted", deleted))
	}
	return deleted, nil
}

// ClearAll empties the cache.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	return s.store.ClearAll(ctx)
}

// ClearBySource drops all entries written for one provider source.
func (s *Service) ClearBySource(ctx context.Context, source string) (int64, error) {
	return s.store.ClearBySource(ctx, source)
}

// Stats reports the admin cache snapshot.
func (s *Service) Stats(ctx context.Context) (*types.CacheStats, error) {
	return s.store.Stats(ctx)
}
