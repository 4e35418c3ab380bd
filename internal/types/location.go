package types

import (
	"time"

	"github.com/google/uuid"
)

// Location is a canonical geocoded place backed by the locations table.
// Latitude is bounded to [-90,90] and longitude to [-180,180]; the repository
// rejects inserts outside those ranges.
type Location struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Country       string    `json:"country"`
	CountryCode   string    `json:"country_code,omitempty"`
	StateProvince string    `json:"state_province,omitempty"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Timezone      string    `json:"timezone,omitempty"`
	Elevation     float64   `json:"elevation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateLocationParams carries the fields needed to insert a new location.
type CreateLocationParams struct {
	Name          string  `json:"name"`
	Country       string  `json:"country"`
	CountryCode   string  `json:"country_code,omitempty"`
	StateProvince string  `json:"state_province,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Timezone      string  `json:"timezone,omitempty"`
	Elevation     float64 `json:"elevation,omitempty"`
}

// UpdateLocationParams carries administrative edits. Nil fields are left untouched.
type UpdateLocationParams struct {
	Name          *string  `json:"name,omitempty"`
	Country       *string  `json:"country,omitempty"`
	CountryCode   *string  `json:"country_code,omitempty"`
	StateProvince *string  `json:"state_province,omitempty"`
	Timezone      *string  `json:"timezone,omitempty"`
	Elevation     *float64 `json:"elevation,omitempty"`
}

// WeatherObservation is one archived day of weather for a location, unique per
// (location_id, observation_date). Rows are bulk-loaded offline and read-only
// on the request path.
type WeatherObservation struct {
	ID            uuid.UUID `json:"id"`
	LocationID    uuid.UUID `json:"location_id"`
	Date          time.Time `json:"date"`
	TempMaxC      float64   `json:"temp_max_c"`
	TempMinC      float64   `json:"temp_min_c"`
	TempAvgC      float64   `json:"temp_avg_c"`
	Humidity      float64   `json:"humidity"`
	PrecipMm      float64   `json:"precip_mm"`
	PrecipProb    float64   `json:"precip_prob"`
	WindKph       float64   `json:"wind_kph"`
	PressureMb    float64   `json:"pressure_mb"`
	CloudCover    float64   `json:"cloud_cover"`
	UVIndex       float64   `json:"uv_index"`
	VisibilityKm  float64   `json:"visibility_km"`
	ConditionCode string    `json:"condition_code,omitempty"`
	Conditions    string    `json:"conditions,omitempty"`
	Sunrise       string    `json:"sunrise,omitempty"`
	Sunset        string    `json:"sunset,omitempty"`
	Source        string    `json:"source,omitempty"`
}
