package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/michaelbuckingham/meteo-api/internal/types"
	"github.com/michaelbuckingham/meteo-api/pkg/config"
	"github.com/michaelbuckingham/meteo-api/pkg/observability"
)

// sourceName tags cache entries and metrics for the metered provider.
const sourceName = "visualcrossing"

// coordinateText matches a resolvedAddress that is just echoed coordinates,
// which the provider returns when it cannot name the place.
var coordinateText = regexp.MustCompile(`^-?\d+(\.\d+)?\s*,\s*-?\d+(\.\d+)?$`)

// httpStatusError is a non-2xx provider reply. It stays internal to the
// gateway: callers only ever see classified WeatherResult values.
type httpStatusError struct {
	statusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("weather provider returned status %d", e.statusCode)
}

// Gateway is the only component that spends the metered provider budget. It
// builds timeline requests, runs them through the shared throttle, retry
// policy and circuit breaker, and classifies every outcome into a typed
// result — ordinary upstream failures never surface as Go errors.
type Gateway struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	throttle *Throttle
	retry    RetryPolicy
	geocoder *ReverseGeocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewGateway(cfg config.WeatherConfig, throttle *Throttle, geocoder *ReverseGeocoder, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    sourceName,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		throttle: throttle,
		retry: RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
		},
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// FetchCurrent retrieves current conditions for a location.
func (g *Gateway) FetchCurrent(ctx context.Context, location string) *types.WeatherResult {
	resp, result := g.request(ctx, location, nil, url.Values{
		"include": []string{"current"},
	})
	if result != nil {
		return result
	}

	out := g.baseResult(ctx, resp)
	if resp.CurrentConditions != nil {
		out.Current = normalizeCurrent(resp.CurrentConditions)
		if len(resp.Days) > 0 {
			out.Current.Sunrise = resp.Days[0].Sunrise
			out.Current.Sunset = resp.Days[0].Sunset
		}
	}
	return out
}

// FetchForecast retrieves up to days of daily forecast.
func (g *Gateway) FetchForecast(ctx context.Context, location string, days int) *types.WeatherResult {
	resp, result := g.request(ctx, location, nil, url.Values{
		"include": []string{"days"},
	})
	if result != nil {
		return result
	}

	out := g.baseResult(ctx, resp)
	for i, day := range resp.Days {
		if days > 0 && i >= days {
			break
		}
		out.Forecast = append(out.Forecast, normalizeForecastDay(day))
	}
	return out
}

// FetchHistorical retrieves daily historical data for [start, end].
func (g *Gateway) FetchHistorical(ctx context.Context, location string, start, end time.Time) *types.WeatherResult {
	segments := []string{start.Format("2006-01-02"), end.Format("2006-01-02")}
	resp, result := g.request(ctx, location, segments, url.Values{
		"include": []string{"days"},
		"elements": []string{
			"datetime,tempmax,tempmin,temp,humidity,precip,windspeed,pressure,cloudcover,uvindex,visibility,conditions,icon,sunrise,sunset",
		},
	})
	if result != nil {
		return result
	}

	out := g.baseResult(ctx, resp)
	for _, day := range resp.Days {
		out.Historical = append(out.Historical, normalizeHistoricalDay(day))
	}
	return out
}

// timelineResponse is the provider-shaped payload. It never escapes this file.
type timelineResponse struct {
	QueryCost         float64             `json:"queryCost"`
	Latitude          float64             `json:"latitude"`
	Longitude         float64             `json:"longitude"`
	ResolvedAddress   string              `json:"resolvedAddress"`
	Address           string              `json:"address"`
	Timezone          string              `json:"timezone"`
	Elevation         float64             `json:"elevation"`
	Days              []timelineDay       `json:"days"`
	CurrentConditions *timelineConditions `json:"currentConditions"`
}

type timelineDay struct {
	Datetime   string  `json:"datetime"`
	TempMax    float64 `json:"tempmax"`
	TempMin    float64 `json:"tempmin"`
	Temp       float64 `json:"temp"`
	FeelsLike  float64 `json:"feelslike"`
	Humidity   float64 `json:"humidity"`
	Dew        float64 `json:"dew"`
	Precip     float64 `json:"precip"`
	PrecipProb float64 `json:"precipprob"`
	WindSpeed  float64 `json:"windspeed"`
	WindDir    float64 `json:"winddir"`
	Pressure   float64 `json:"pressure"`
	CloudCover float64 `json:"cloudcover"`
	UVIndex    float64 `json:"uvindex"`
	Visibility float64 `json:"visibility"`
	Conditions string  `json:"conditions"`
	Icon       string  `json:"icon"`
	Sunrise    string  `json:"sunrise"`
	Sunset     string  `json:"sunset"`
}

type timelineConditions struct {
	Datetime   string  `json:"datetime"`
	Temp       float64 `json:"temp"`
	FeelsLike  float64 `json:"feelslike"`
	Humidity   float64 `json:"humidity"`
	Dew        float64 `json:"dew"`
	Precip     float64 `json:"precip"`
	PrecipProb float64 `json:"precipprob"`
	WindSpeed  float64 `json:"windspeed"`
	WindDir    float64 `json:"winddir"`
	Pressure   float64 `json:"pressure"`
	CloudCover float64 `json:"cloudcover"`
	UVIndex    float64 `json:"uvindex"`
	Visibility float64 `json:"visibility"`
	Conditions string  `json:"conditions"`
	Icon       string  `json:"icon"`
}

// request executes one timeline call. Exactly one return value is non-nil:
// the parsed provider response on success, or a classified failure result.
func (g *Gateway) request(ctx context.Context, location string, dateSegments []string, query url.Values) (*timelineResponse, *types.WeatherResult) {
	ctx, span := otel.Tracer("WeatherGateway").Start(ctx, "request", trace.WithAttributes(
		attribute.String("weather.location", location),
	))
	defer span.End()

	reqURL := g.buildURL(location, dateSegments, query)

	var body []byte
	start := time.Now()
	err := g.throttle.Run(ctx, func(ctx context.Context) error {
		return g.retry.Do(ctx, shouldRetryProviderError, func(ctx context.Context) error {
			data, execErr := g.execute(ctx, reqURL)
			if execErr != nil {
				return execErr
			}
			body = data
			return nil
		})
	})
	g.metrics.ProviderLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Provider call failed")
		return nil, g.classifyFailure(ctx, location, err)
	}

	var resp timelineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		g.logger.ErrorContext(ctx, "failed to decode provider response",
			slog.Any("error", err),
			slog.String("location", location))
		g.metrics.ProviderRequests.WithLabelValues("decode_error").Inc()
		span.SetStatus(codes.Error, "Undecodable provider response")
		return nil, &types.WeatherResult{
			Success:    false,
			Source:     types.SourceAPI,
			StatusCode: http.StatusOK,
			Error:      "undecodable provider response",
		}
	}

	g.metrics.ProviderRequests.WithLabelValues("success").Inc()
	g.metrics.ProviderQueryCost.Add(resp.QueryCost)
	span.SetAttributes(attribute.Float64("weather.query_cost", resp.QueryCost))
	span.SetStatus(codes.Ok, "Provider call succeeded")
	return &resp, nil
}

// execute performs a single HTTP attempt through the circuit breaker.
func (g *Gateway) execute(ctx context.Context, reqURL string) ([]byte, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, &httpStatusError{statusCode: resp.StatusCode}
		}

		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// shouldRetryProviderError approves retries only for HTTP 429 and transport
// errors. Other client errors are non-recoverable and retrying them would
// spend budget for nothing; an open circuit breaker means the provider is
// already struggling, so piling on is pointless.
func shouldRetryProviderError(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// No response at all.
	return true
}

func (g *Gateway) classifyFailure(ctx context.Context, location string, err error) *types.WeatherResult {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.statusCode == http.StatusTooManyRequests {
			g.logger.WarnContext(ctx, "provider rate limit exceeded", slog.String("location", location))
			g.metrics.ProviderRequests.WithLabelValues("rate_limited").Inc()
			return &types.WeatherResult{
				Success:           false,
				Source:            types.SourceAPI,
				RateLimitExceeded: true,
				StatusCode:        http.StatusTooManyRequests,
				Error:             "provider rate limit exceeded",
			}
		}
		g.logger.WarnContext(ctx, "provider returned error status",
			slog.Int("status", statusErr.statusCode),
			slog.String("location", location))
		g.metrics.ProviderRequests.WithLabelValues("http_error").Inc()
		return &types.WeatherResult{
			Success:    false,
			Source:     types.SourceAPI,
			StatusCode: statusErr.statusCode,
			Error:      statusErr.Error(),
		}
	}

	g.logger.WarnContext(ctx, "provider unreachable",
		slog.Any("error", err),
		slog.String("location", location))
	g.metrics.ProviderRequests.WithLabelValues("unreachable").Inc()
	return &types.WeatherResult{
		Success:    false,
		Source:     types.SourceAPI,
		StatusCode: 0,
		Error:      err.Error(),
	}
}

func (g *Gateway) buildURL(location string, dateSegments []string, query url.Values) string {
	var sb strings.Builder
	sb.WriteString(g.baseURL)
	sb.WriteString("/")
	sb.WriteString(url.PathEscape(location))
	for _, seg := range dateSegments {
		sb.WriteString("/")
		sb.WriteString(url.PathEscape(seg))
	}

	params := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("unitGroup", "metric")
	params.Set("contentType", "json")
	params.Set("key", g.apiKey)

	sb.WriteString("?")
	sb.WriteString(params.Encode())
	return sb.String()
}

// baseResult builds the successful result skeleton, including the sanitized
// location echo.
func (g *Gateway) baseResult(ctx context.Context, resp *timelineResponse) *types.WeatherResult {
	return &types.WeatherResult{
		Success:   true,
		Source:    types.SourceAPI,
		QueryCost: resp.QueryCost,
		Location: &types.ResolvedLocation{
			Name:      g.sanitizeAddress(ctx, resp),
			Latitude:  resp.Latitude,
			Longitude: resp.Longitude,
			Timezone:  resp.Timezone,
			Elevation: resp.Elevation,
		},
	}
}

// sanitizeAddress never lets a provider placeholder reach the caller: a
// missing or coordinate-shaped resolvedAddress falls back to a free reverse
// geocode, then to formatted coordinates.
func (g *Gateway) sanitizeAddress(ctx context.Context, resp *timelineResponse) string {
	addr := strings.TrimSpace(resp.ResolvedAddress)
	if addr != "" && !coordinateText.MatchString(addr) {
		return addr
	}

	if name, ok := g.geocoder.Lookup(ctx, resp.Latitude, resp.Longitude); ok {
		return name
	}

	return fmt.Sprintf("%.4f, %.4f", resp.Latitude, resp.Longitude)
}

func normalizeCurrent(c *timelineConditions) *types.CurrentConditions {
	return &types.CurrentConditions{
		Datetime:      c.Datetime,
		TempC:         c.Temp,
		FeelsLikeC:    c.FeelsLike,
		Humidity:      c.Humidity,
		DewPointC:     c.Dew,
		PrecipMm:      c.Precip,
		PrecipProb:    c.PrecipProb,
		WindKph:       c.WindSpeed,
		WindDirDeg:    c.WindDir,
		PressureMb:    c.Pressure,
		CloudCover:    c.CloudCover,
		UVIndex:       c.UVIndex,
		VisibilityKm:  c.Visibility,
		ConditionCode: c.Icon,
		Conditions:    c.Conditions,
	}
}

func normalizeForecastDay(d timelineDay) types.ForecastDay {
	return types.ForecastDay{
		Date:          d.Datetime,
		TempMaxC:      d.TempMax,
		TempMinC:      d.TempMin,
		TempAvgC:      d.Temp,
		Humidity:      d.Humidity,
		PrecipMm:      d.Precip,
		PrecipProb:    d.PrecipProb,
		WindKph:       d.WindSpeed,
		PressureMb:    d.Pressure,
		CloudCover:    d.CloudCover,
		UVIndex:       d.UVIndex,
		ConditionCode: d.Icon,
		Conditions:    d.Conditions,
		Sunrise:       d.Sunrise,
		Sunset:        d.Sunset,
	}
}

func normalizeHistoricalDay(d timelineDay) types.HistoricalDay {
	return types.HistoricalDay{
		Date:          d.Datetime,
		TempMaxC:      d.TempMax,
		TempMinC:      d.TempMin,
		TempAvgC:      d.Temp,
		Humidity:      d.Humidity,
		PrecipMm:      d.Precip,
		WindKph:       d.WindSpeed,
		PressureMb:    d.Pressure,
		CloudCover:    d.CloudCover,
		UVIndex:       d.UVIndex,
		VisibilityKm:  d.Visibility,
		ConditionCode: d.Icon,
		Conditions:    d.Conditions,
		Sunrise:       d.Sunrise,
		Sunset:        d.Sunset,
		Source:        types.SourceAPI,
	}
}
