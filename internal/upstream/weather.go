package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const geoJSON = "application/geo+json"

// Alert is one active weather alert.
type Alert struct {
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// ForecastPeriod is one named forecast period ("Tonight", "Saturday", ...).
type ForecastPeriod struct {
	Name            string  `json:"name"`
	Temperature     float64 `json:"temperature"`
	TemperatureUnit string  `json:"temperatureUnit"`
	ShortForecast   string  `json:"shortForecast"`
}

// ErrNoForecastURL is returned when a points lookup carries no forecast link.
var ErrNoForecastURL = errors.New("no forecast URL for location")

// WeatherClient talks to a National Weather Service compatible API.
type WeatherClient struct {
	baseURL string
	client  *http.Client
}

// NewWeatherClient creates a weather client rooted at baseURL.
func NewWeatherClient(baseURL string, client *http.Client) *WeatherClient {
	if client == nil {
		client = NewHTTPClient(Options{})
	}
	return &WeatherClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// ActiveAlerts lists the active alerts for a two-letter state code.
func (c *WeatherClient) ActiveAlerts(ctx context.Context, state string) ([]Alert, error) {
	var payload struct {
		Features []struct {
			Properties Alert `json:"properties"`
		} `json:"features"`
	}
	err := getJSON(ctx, c.client, request{
		what:   "weather alerts",
		url:    c.baseURL + "/alerts/active/area/" + url.PathEscape(state),
		accept: geoJSON,
	}, &payload)
	if err != nil {
		return nil, err
	}

	alerts := make([]Alert, 0, len(payload.Features))
	for _, feature := range payload.Features {
		alerts = append(alerts, feature.Properties)
	}
	return alerts, nil
}

// ForecastURL resolves the forecast link for a coordinate pair.
func (c *WeatherClient) ForecastURL(ctx context.Context, latitude, longitude float64) (string, error) {
	var payload struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	point := formatCoordinate(latitude) + "," + formatCoordinate(longitude)
	err := getJSON(ctx, c.client, request{
		what:   "forecast point lookup",
		url:    c.baseURL + "/points/" + point,
		accept: geoJSON,
	}, &payload)
	if err != nil {
		return "", err
	}

	forecastURL := strings.TrimSpace(payload.Properties.Forecast)
	if forecastURL == "" {
		return "", ErrNoForecastURL
	}
	return forecastURL, nil
}

// Forecast fetches the periods behind a forecast link returned by ForecastURL.
func (c *WeatherClient) Forecast(ctx context.Context, forecastURL string) ([]ForecastPeriod, error) {
	var payload struct {
		Properties struct {
			Periods []ForecastPeriod `json:"periods"`
		} `json:"properties"`
	}
	err := getJSON(ctx, c.client, request{
		what:   "weather forecast",
		url:    forecastURL,
		accept: geoJSON,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return payload.Properties.Periods, nil
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
