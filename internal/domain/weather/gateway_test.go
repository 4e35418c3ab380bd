package weather

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbuckingham/meteo-api/internal/types"
	"github.com/michaelbuckingham/meteo-api/pkg/config"
	"github.com/michaelbuckingham/meteo-api/pkg/observability"
)

const timelinePayload = `{
	"queryCost": 1,
	"latitude": 38.7223,
	"longitude": -9.1393,
	"resolvedAddress": "Lisbon, Portugal",
	"timezone": "Europe/Lisbon",
	"elevation": 100,
	"days": [
		{"datetime": "2025-06-01", "tempmax": 28, "tempmin": 17, "temp": 22.5, "humidity": 55, "precip": 0, "windspeed": 12, "pressure": 1015, "cloudcover": 10, "uvindex": 8, "conditions": "Clear", "icon": "clear-day", "sunrise": "06:12:00", "sunset": "21:01:00"},
		{"datetime": "2025-06-02", "tempmax": 29, "tempmin": 18, "temp": 23, "conditions": "Partially cloudy", "icon": "partly-cloudy-day"}
	],
	"currentConditions": {"datetime": "14:00:00", "temp": 26, "feelslike": 27, "humidity": 50, "windspeed": 10, "pressure": 1014, "uvindex": 7, "conditions": "Clear", "icon": "clear-day"}
}`

func newTestGateway(t *testing.T, providerURL, geocodeURL string, maxRetries uint64) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	metrics := observability.New(prometheus.NewRegistry())
	geocoder := NewReverseGeocoder(geocodeURL, &http.Client{Timeout: time.Second}, logger)

	return NewGateway(config.WeatherConfig{
		APIKey:         "test-key",
		BaseURL:        providerURL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     maxRetries,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
	}, NewDisabledThrottle(), geocoder, metrics, logger)
}

func TestGateway_FetchCurrent(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(timelinePayload))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 0)
	result := g.FetchCurrent(context.Background(), "Lisbon")

	require.True(t, result.Success)
	assert.False(t, result.FromCache)
	assert.Equal(t, types.SourceAPI, result.Source)
	assert.Equal(t, float64(1), result.QueryCost)

	assert.Equal(t, "/Lisbon", gotPath)
	assert.Equal(t, []string{"current"}, gotQuery["include"])
	assert.Equal(t, []string{"metric"}, gotQuery["unitGroup"])
	assert.Equal(t, []string{"json"}, gotQuery["contentType"])
	assert.Equal(t, []string{"test-key"}, gotQuery["key"])

	require.NotNil(t, result.Location)
	assert.Equal(t, "Lisbon, Portugal", result.Location.Name)
	assert.Equal(t, 38.7223, result.Location.Latitude)

	require.NotNil(t, result.Current)
	assert.Equal(t, 26.0, result.Current.TempC)
	assert.Equal(t, "clear-day", result.Current.ConditionCode)
	// Sunrise and sunset come from the first day, not currentConditions.
	assert.Equal(t, "06:12:00", result.Current.Sunrise)
	assert.Equal(t, "21:01:00", result.Current.Sunset)
}

func TestGateway_FetchForecast_LimitsDays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(timelinePayload))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 0)
	result := g.FetchForecast(context.Background(), "Lisbon", 1)

	require.True(t, result.Success)
	require.Len(t, result.Forecast, 1)
	assert.Equal(t, "2025-06-01", result.Forecast[0].Date)
	assert.Equal(t, 28.0, result.Forecast[0].TempMaxC)
}

func TestGateway_FetchHistorical(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(timelinePayload))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 0)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	result := g.FetchHistorical(context.Background(), "Lisbon", start, end)

	require.True(t, result.Success)
	assert.Equal(t, "/Lisbon/2025-06-01/2025-06-02", gotPath)

	require.Len(t, result.Historical, 2)
	assert.Equal(t, "2025-06-01", result.Historical[0].Date)
	assert.Equal(t, types.SourceAPI, result.Historical[0].Source)
}

func TestGateway_RateLimitIsRetriedThenClassified(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 2)
	result := g.FetchCurrent(context.Background(), "Lisbon")

	assert.False(t, result.Success)
	assert.True(t, result.RateLimitExceeded)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "429 is retried until the budget runs out")
}

func TestGateway_ClientErrorIsNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 2)
	result := g.FetchCurrent(context.Background(), "nowhere")

	assert.False(t, result.Success)
	assert.False(t, result.RateLimitExceeded)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGateway_UnreachableProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	g := newTestGateway(t, server.URL, "http://unused.invalid", 1)
	result := g.FetchCurrent(context.Background(), "Lisbon")

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.StatusCode)
	assert.NotEmpty(t, result.Error)
}

func TestGateway_UndecodableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 0)
	result := g.FetchCurrent(context.Background(), "Lisbon")

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.Error, "undecodable")
}

func TestGateway_SanitizesPlaceholderAddress(t *testing.T) {
	t.Run("coordinate echo falls back to reverse geocode", func(t *testing.T) {
		provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"queryCost": 1, "latitude": 38.7223, "longitude": -9.1393, "resolvedAddress": "38.7223,-9.1393", "days": []}`))
		}))
		defer provider.Close()

		geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"display_name": "Lisboa, Portugal", "address": {"city": "Lisboa", "country": "Portugal"}}`))
		}))
		defer geocode.Close()

		g := newTestGateway(t, provider.URL, geocode.URL, 0)
		result := g.FetchCurrent(context.Background(), "38.7223,-9.1393")

		require.True(t, result.Success)
		assert.Equal(t, "Lisboa, Portugal", result.Location.Name)
	})

	t.Run("failed geocode falls back to formatted coordinates", func(t *testing.T) {
		provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"queryCost": 1, "latitude": 38.7223, "longitude": -9.1393, "resolvedAddress": "", "days": []}`))
		}))
		defer provider.Close()

		geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer geocode.Close()

		g := newTestGateway(t, provider.URL, geocode.URL, 0)
		result := g.FetchCurrent(context.Background(), "38.7223,-9.1393")

		require.True(t, result.Success)
		assert.Equal(t, "38.7223, -9.1393", result.Location.Name)
	})

	t.Run("real address passes through untouched", func(t *testing.T) {
		provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(timelinePayload))
		}))
		defer provider.Close()

		geocodeCalled := false
		geocode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			geocodeCalled = true
		}))
		defer geocode.Close()

		g := newTestGateway(t, provider.URL, geocode.URL, 0)
		result := g.FetchCurrent(context.Background(), "Lisbon")

		require.True(t, result.Success)
		assert.Equal(t, "Lisbon, Portugal", result.Location.Name)
		assert.False(t, geocodeCalled)
	})
}

func TestGateway_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL, "http://unused.invalid", 0)

	// Five consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		result := g.FetchCurrent(context.Background(), "Lisbon")
		assert.False(t, result.Success)
	}

	before := atomic.LoadInt32(&attempts)
	result := g.FetchCurrent(context.Background(), "Lisbon")
	assert.False(t, result.Success)
	assert.Equal(t, before, atomic.LoadInt32(&attempts), "open breaker must not reach the provider")
}
