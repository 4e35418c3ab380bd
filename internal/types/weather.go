package types

// ResolvedLocation is the location echo attached to every weather result. The
// gateway guarantees Name is a real place name (or formatted coordinates), never
// the provider's placeholder string.
type ResolvedLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
	Elevation float64 `json:"elevation,omitempty"`
}

// CurrentConditions is the normalized shape of the provider's currentConditions
// block. Provider-shaped JSON never crosses the gateway boundary.
type CurrentConditions struct {
	Datetime      string  `json:"datetime"`
	TempC         float64 `json:"temp_c"`
	FeelsLikeC    float64 `json:"feels_like_c"`
	Humidity      float64 `json:"humidity"`
	DewPointC     float64 `json:"dew_point_c"`
	PrecipMm      float64 `json:"precip_mm"`
	PrecipProb    float64 `json:"precip_prob"`
	WindKph       float64 `json:"wind_kph"`
	WindDirDeg    float64 `json:"wind_dir_deg"`
	PressureMb    float64 `json:"pressure_mb"`
	CloudCover    float64 `json:"cloud_cover"`
	UVIndex       float64 `json:"uv_index"`
	VisibilityKm  float64 `json:"visibility_km"`
	ConditionCode string  `json:"condition_code"`
	Conditions    string  `json:"conditions"`
	Sunrise       string  `json:"sunrise,omitempty"`
	Sunset        string  `json:"sunset,omitempty"`
}

// ForecastDay is one day of the normalized forecast.
type ForecastDay struct {
	Date          string  `json:"date"`
	TempMaxC      float64 `json:"temp_max_c"`
	TempMinC      float64 `json:"temp_min_c"`
	TempAvgC      float64 `json:"temp_avg_c"`
	Humidity      float64 `json:"humidity"`
	PrecipMm      float64 `json:"precip_mm"`
	PrecipProb    float64 `json:"precip_prob"`
	WindKph       float64 `json:"wind_kph"`
	PressureMb    float64 `json:"pressure_mb"`
	CloudCover    float64 `json:"cloud_cover"`
	UVIndex       float64 `json:"uv_index"`
	ConditionCode string  `json:"condition_code"`
	Conditions    string  `json:"conditions"`
	Sunrise       string  `json:"sunrise,omitempty"`
	Sunset        string  `json:"sunset,omitempty"`
}

// HistoricalDay is one day of historical data, whether it came from the
// observation archive or a live provider call.
type HistoricalDay struct {
	Date          string  `json:"date"`
	TempMaxC      float64 `json:"temp_max_c"`
	TempMinC      float64 `json:"temp_min_c"`
	TempAvgC      float64 `json:"temp_avg_c"`
	Humidity      float64 `json:"humidity"`
	PrecipMm      float64 `json:"precip_mm"`
	WindKph       float64 `json:"wind_kph"`
	PressureMb    float64 `json:"pressure_mb"`
	CloudCover    float64 `json:"cloud_cover"`
	UVIndex       float64 `json:"uv_index"`
	VisibilityKm  float64 `json:"visibility_km"`
	ConditionCode string  `json:"condition_code"`
	Conditions    string  `json:"conditions"`
	Sunrise       string  `json:"sunrise,omitempty"`
	Sunset        string  `json:"sunset,omitempty"`
	Source        string  `json:"source,omitempty"`
}

// Weather data sources reported in WeatherResult.Source.
const (
	SourceAPI      = "api"
	SourceDatabase = "database"
)

// WeatherResult is the single result type the weather core returns to callers.
// Upstream failures are represented here as values; the gateway and service
// never surface raw errors for ordinary provider failures.
type WeatherResult struct {
	Success           bool               `json:"success"`
	FromCache         bool               `json:"from_cache"`
	Source            string             `json:"source,omitempty"`
	RateLimitExceeded bool               `json:"rate_limit_exceeded,omitempty"`
	StatusCode        int                `json:"status_code,omitempty"`
	Error             string             `json:"error,omitempty"`
	Location          *ResolvedLocation  `json:"location,omitempty"`
	Current           *CurrentConditions `json:"current,omitempty"`
	Forecast          []ForecastDay      `json:"forecast,omitempty"`
	Historical        []HistoricalDay    `json:"historical,omitempty"`
	QueryCost         float64            `json:"query_cost"`
}

// YearError records a single failed year inside a multi-year fetch.
type YearError struct {
	Year  int    `json:"year"`
	Error string `json:"error"`
}

// DateStatistics summarizes the same calendar date across several years.
type DateStatistics struct {
	TempMinC     float64 `json:"temp_min_c"`
	TempMaxC     float64 `json:"temp_max_c"`
	TempAvgC     float64 `json:"temp_avg_c"`
	PrecipDays   int     `json:"precip_days"`
	YearsSampled int     `json:"years_sampled"`
}

// HistoricalDateResult is the outcome of a this-day-in-history lookup.
// Partial failures are carried in Errors; Data holds every year that succeeded,
// in requested-year order.
type HistoricalDateResult struct {
	Success        bool            `json:"success"`
	Location       string          `json:"location"`
	MonthDay       string          `json:"month_day"`
	YearsRequested int             `json:"years_requested"`
	YearsReceived  int             `json:"years_received"`
	Data           []HistoricalDay `json:"data"`
	Errors         []YearError     `json:"errors,omitempty"`
	Statistics     *DateStatistics `json:"statistics,omitempty"`
	QueryCost      float64         `json:"query_cost"`
}
