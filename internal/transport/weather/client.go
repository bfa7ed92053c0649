// Package weather fetches hourly forecasts from the Open-Meteo API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/metrics"
)

// Client fetches hourly forecasts for a fixed site location.
type Client struct {
	baseURL    string
	latitude   float64
	longitude  float64
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds the forecast provider settings.
type Config struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewClient creates an Open-Meteo forecast client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: cfg.Logger,
	}
}

// forecastResponse mirrors the Open-Meteo hourly payload. Arrays are
// parallel: hourly.time[i] pairs with hourly.temperature_2m[i].
type forecastResponse struct {
	Hourly struct {
		Time             []string  `json:"time"`
		Temperature2m    []float64 `json:"temperature_2m"`
		RelativeHumidity []float64 `json:"relative_humidity_2m"`
		CloudCover       []float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// Fetch returns exactly domain.PlanHorizonHours consecutive hourly
// slots starting at the current hour. Any shortfall or provider
// failure is reported as domain.ErrForecastUnavailable; a partial
// forecast is never returned.
func (c *Client) Fetch(ctx context.Context) ([]domain.ForecastSlot, error) {
	reqURL, err := c.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build forecast URL: %w", domain.ErrForecastUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", domain.ErrForecastUnavailable)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.WeatherRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("forecast request failed: %v: %w", err, domain.ErrForecastUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.WeatherRequestsTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("forecast provider returned %d: %s: %w",
			resp.StatusCode, string(body), domain.ErrForecastUnavailable)
	}

	var parsed forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.WeatherRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode forecast response: %v: %w", err, domain.ErrForecastUnavailable)
	}

	slots, err := c.toSlots(&parsed)
	if err != nil {
		metrics.WeatherRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.WeatherRequestsTotal.WithLabelValues("success").Inc()
	return slots, nil
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path = "/v1/forecast"

	q := u.Query()
	q.Set("latitude", fmt.Sprintf("%.4f", c.latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", c.longitude))
	q.Set("hourly", "temperature_2m,relative_humidity_2m,cloud_cover")
	q.Set("forecast_days", "4")
	q.Set("timezone", "UTC")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) toSlots(parsed *forecastResponse) ([]domain.ForecastSlot, error) {
	h := parsed.Hourly
	n := len(h.Time)
	if len(h.Temperature2m) < n {
		n = len(h.Temperature2m)
	}
	if len(h.RelativeHumidity) < n {
		n = len(h.RelativeHumidity)
	}
	if len(h.CloudCover) < n {
		n = len(h.CloudCover)
	}

	// The provider returns whole calendar days; skip hours already past.
	start := c.currentHourIndex(h.Time, n)
	if n-start < domain.PlanHorizonHours {
		return nil, fmt.Errorf("forecast covers %d hours, need %d: %w",
			n-start, domain.PlanHorizonHours, domain.ErrForecastUnavailable)
	}

	slots := make([]domain.ForecastSlot, domain.PlanHorizonHours)
	for i := 0; i < domain.PlanHorizonHours; i++ {
		j := start + i
		ts, err := time.Parse("2006-01-02T15:04", h.Time[j])
		if err != nil {
			return nil, fmt.Errorf("malformed slot timestamp %q: %w", h.Time[j], domain.ErrForecastUnavailable)
		}
		slots[i] = domain.ForecastSlot{
			HourOffset:    i,
			TemperatureC:  h.Temperature2m[j],
			HumidityPct:   h.RelativeHumidity[j],
			CloudCoverPct: h.CloudCover[j],
			Timestamp:     ts.UTC(),
		}
	}
	return slots, nil
}

// currentHourIndex finds the first slot at or after the current UTC
// hour. Falls back to index 0 when timestamps do not parse.
func (c *Client) currentHourIndex(times []string, n int) int {
	now := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < n; i++ {
		t, err := time.Parse("2006-01-02T15:04", times[i])
		if err != nil {
			return 0
		}
		if !t.Before(now) {
			return i
		}
	}
	return 0
}
