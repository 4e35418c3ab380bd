package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// ReverseGeocoder looks up a human-readable place name for coordinates through
// a free Nominatim-compatible endpoint. It is a best-effort fallback used only
// when the paid provider returns a placeholder address, so it never reports an
// error — a failed lookup is simply "not found".
type ReverseGeocoder struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewReverseGeocoder(baseURL string, client *http.Client, logger *slog.Logger) *ReverseGeocoder {
	return &ReverseGeocoder{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Lookup returns a place name for (lat, lon), preferring "City, Country" over
// the full display name.
func (g *ReverseGeocoder) Lookup(ctx context.Context, lat, lon float64) (string, bool) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("format", "jsonv2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", "meteo-api/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.DebugContext(ctx, "reverse geocode lookup failed", slog.Any("error", err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.DebugContext(ctx, "reverse geocode lookup rejected",
			slog.Int("status", resp.StatusCode))
		return "", false
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false
	}

	city := body.Address.City
	if city == "" {
		city = body.Address.Town
	}
	if city == "" {
		city = body.Address.Village
	}
	if city != "" && body.Address.Country != "" {
		return city + ", " + body.Address.Country, true
	}
	if body.DisplayName != "" {
		return body.DisplayName, true
	}
	return "", false
}
