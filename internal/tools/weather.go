package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chuangyeshuo/mcprapi/internal/upstream"
)

const (
	maxAlerts              = 3
	maxForecastPeriods     = 5
	maxAlertDescriptionLen = 150
)

func (r *Runner) weatherAlerts(ctx context.Context, inv Invocation) (string, error) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeArgsStrict(inv.Arguments, &req); err != nil {
		return "", err
	}
	state := strings.ToUpper(strings.TrimSpace(req.State))
	if state == "" {
		return "", validationErrorf("state is required")
	}

	alerts, err := r.weather.ActiveAlerts(ctx, state)
	if err != nil {
		return "", mapExecutionError(err, "fetching weather alerts")
	}
	if len(alerts) == 0 {
		return fmt.Sprintf("No active weather alerts for %s.", state), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌪️ Weather alerts for %s:\n\n", state)
	for i, alert := range alerts {
		if i == maxAlerts {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, orUnknown(alert.Event))
		fmt.Fprintf(&b, "   Headline: %s\n", orNone(alert.Headline))
		fmt.Fprintf(&b, "   Description: %s...\n\n", truncateRunes(strings.TrimSpace(alert.Description), maxAlertDescriptionLen))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Runner) weatherForecast(ctx context.Context, inv Invocation) (string, error) {
	var req struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := decodeArgsStrict(inv.Arguments, &req); err != nil {
		return "", err
	}
	if req.Latitude == nil || req.Longitude == nil {
		return "", validationErrorf("latitude and longitude are required")
	}
	lat, lon := *req.Latitude, *req.Longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", validationErrorf("latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	location := fmt.Sprintf("(%s, %s)", formatNumber(lat), formatNumber(lon))

	forecastURL, err := r.weather.ForecastURL(ctx, lat, lon)
	if errors.Is(err, upstream.ErrNoForecastURL) {
		return fmt.Sprintf("Unable to resolve a forecast for %s.", location), nil
	}
	if err != nil {
		return "", mapExecutionError(err, "resolving forecast point")
	}

	periods, err := r.weather.Forecast(ctx, forecastURL)
	if err != nil {
		return "", mapExecutionError(err, "fetching weather forecast")
	}
	if len(periods) == 0 {
		return fmt.Sprintf("No forecast data available for %s.", location), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌤️ Forecast for %s:\n\n", location)
	for i, period := range periods {
		if i == maxForecastPeriods {
			break
		}
		fmt.Fprintf(&b, "📅 %s\n", orUnknown(period.Name))
		fmt.Fprintf(&b, "🌡️ Temperature: %s°%s\n", formatNumber(period.Temperature), period.TemperatureUnit)
		fmt.Fprintf(&b, "☁️ Conditions: %s\n\n", orUnknown(period.ShortForecast))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func orUnknown(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "Unknown"
}

func orNone(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return "None"
}
