package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/michaelbuckingham/meteo-api/pkg/middleware"
)

// SetupRouter configures all routes and returns the HTTP handler chain.
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()
	h := &apiHandler{deps: deps}

	// Weather
	mux.HandleFunc("GET /weather/current/{location}", h.getCurrentWeather)
	mux.HandleFunc("GET /weather/forecast/{location}", h.getForecast)
	mux.HandleFunc("GET /weather/history/{location}", h.getHistoricalWeather)
	mux.HandleFunc("GET /weather/thisday/{location}", h.getHistoricalDateData)

	// Locations
	mux.HandleFunc("GET /locations", h.listLocations)
	mux.HandleFunc("GET /locations/search", h.searchLocations)
	mux.HandleFunc("GET /locations/reverse", h.reverseLocation)
	mux.HandleFunc("POST /locations", h.createLocation)
	mux.HandleFunc("GET /locations/{id}", h.getLocation)
	mux.HandleFunc("PATCH /locations/{id}", h.updateLocation)
	mux.HandleFunc("DELETE /locations/{id}", h.deleteLocation)

	// Admin cache controls
	mux.HandleFunc("DELETE /admin/cache/expired", h.clearExpiredCache)
	mux.HandleFunc("DELETE /admin/cache/source/{source}", h.clearCacheBySource)
	mux.HandleFunc("DELETE /admin/cache", h.clearAllCache)
	mux.HandleFunc("GET /admin/cache/stats", h.getCacheStats)

	registerUtilityRoutes(mux, deps)

	var handler http.Handler = mux
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		handler = middleware.RateLimit(limiter.Allow)(handler)
	}
	handler = middleware.Logging(deps.Logger)(handler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
	})

	return corsHandler.Handler(handler)
}

// registerUtilityRoutes registers health check, readiness, and metrics routes.
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
