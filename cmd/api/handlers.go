package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbuckingham/meteo-api/internal/types"
)

type apiHandler struct {
	deps *Dependencies
}

// --- Weather ---

func (h *apiHandler) getCurrentWeather(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.WeatherService.GetCurrentWeather(r.Context(), r.PathValue("location"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeWeatherResult(w, result)
}

func (h *apiHandler) getForecast(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 0)

	result, err := h.deps.WeatherService.GetForecast(r.Context(), r.PathValue("location"), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeWeatherResult(w, result)
}

func (h *apiHandler) getHistoricalWeather(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		h.writeBadRequest(w, "start must be a YYYY-MM-DD date")
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		h.writeBadRequest(w, "end must be a YYYY-MM-DD date")
		return
	}

	result, err := h.deps.WeatherService.GetHistoricalWeather(r.Context(), r.PathValue("location"), start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeWeatherResult(w, result)
}

func (h *apiHandler) getHistoricalDateData(w http.ResponseWriter, r *http.Request) {
	monthDay := r.URL.Query().Get("date")
	years := queryInt(r, "years", 0)

	result, err := h.deps.WeatherService.GetHistoricalDateData(r.Context(), r.PathValue("location"), monthDay, years)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// --- Locations ---

func (h *apiHandler) listLocations(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	locations, total, err := h.deps.LocationService.List(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"locations": locations,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

func (h *apiHandler) searchLocations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	locations, err := h.deps.LocationService.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *apiHandler) reverseLocation(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		h.writeBadRequest(w, "lat and lon query parameters are required")
		return
	}
	radius, _ := strconv.ParseFloat(r.URL.Query().Get("radius"), 64)

	loc, err := h.deps.LocationService.FindByCoordinates(r.Context(), lat, lon, radius)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if loc == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"error": "no location within radius"})
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

func (h *apiHandler) createLocation(w http.ResponseWriter, r *http.Request) {
	var params types.CreateLocationParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}
	if params.Name == "" {
		h.writeBadRequest(w, "name is required")
		return
	}

	loc, err := h.deps.LocationService.Create(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loc)
}

func (h *apiHandler) getLocation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeBadRequest(w, "invalid location id")
		return
	}

	loc, err := h.deps.LocationService.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

func (h *apiHandler) updateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeBadRequest(w, "invalid location id")
		return
	}

	var params types.UpdateLocationParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := h.deps.LocationService.Update(r.Context(), id, params); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) deleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeBadRequest(w, "invalid location id")
		return
	}

	if err := h.deps.LocationService.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Admin cache ---

func (h *apiHandler) clearExpiredCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.deps.CacheService.SweepExpired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *apiHandler) clearAllCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.deps.CacheService.ClearAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *apiHandler) clearCacheBySource(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if source == "" {
		h.writeBadRequest(w, "source is required")
		return
	}

	deleted, err := h.deps.CacheService.ClearBySource(r.Context(), source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "source": source})
}

func (h *apiHandler) getCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.CacheService.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.deps.Logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeWeatherResult maps the value-carried upstream failure modes onto HTTP
// status codes: provider rate limiting surfaces as 429, any other provider
// failure as 502. The body is always the full WeatherResult.
func (h *apiHandler) writeWeatherResult(w http.ResponseWriter, result *types.WeatherResult) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
		if result.RateLimitExceeded {
			status = http.StatusTooManyRequests
		}
	}
	h.writeJSON(w, status, result)
}

func (h *apiHandler) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
}

func (h *apiHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.deps.Logger.ErrorContext(r.Context(), "request failed",
			slog.Any("error", err),
			slog.String("path", r.URL.Path))
		h.writeJSON(w, status, map[string]any{"error": "internal server error"})
		return
	}
	h.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
