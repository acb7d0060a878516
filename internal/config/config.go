// Package config loads mcp-gateway configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// TransportHTTP serves the streamable HTTP and legacy SSE MCP surfaces.
	TransportHTTP = "http"
	// TransportStdio runs MCP over stdin/stdout.
	TransportStdio = "stdio"

	// ModeReadWrite allows every registered tool.
	ModeReadWrite = "read-write"
	// ModeReadOnly refuses tools with write capability.
	ModeReadOnly = "read-only"

	// AuthFailOpen degrades to the default principal when the authorization service
	// cannot be reached.
	AuthFailOpen = "open"
	// AuthFailClosed denies the call when the authorization service cannot be reached.
	AuthFailClosed = "closed"

	defaultListenAddr      = ":8000"
	defaultWeatherURL      = "https://api.weather.gov"
	defaultBusinessURL     = "http://localhost:8081"
	defaultAuthURL         = "http://localhost:8081"
	defaultAuthNamespace   = "member"
	defaultUpstreamTimeout = 30 * time.Second
	defaultUserAgent       = "mcp-gateway/1.0 (+https://github.com/chuangyeshuo/mcprapi)"
	defaultRateLimitBurst  = 20
	defaultCLIConfigPath   = "~/.mcprapi/config.yaml"
)

// Config holds service runtime configuration.
type Config struct {
	ListenAddr string
	LogLevel   string
	Transport  string
	Mode       string

	WeatherURL  string
	BusinessURL string
	AuthURL     string

	AuthNamespace   string
	AuthFailureMode string
	AllowAnonymous  bool

	UpstreamTimeout time.Duration
	UserAgent       string

	RateLimitRPS   float64
	RateLimitBurst int

	AllowCLIConfigToken bool
	CLIConfigPath       string

	MetricsEnabled bool
	TracesEnabled  bool
}

// Load returns configuration parsed from environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:          envOrDefault("MCP_GATEWAY_LISTEN_ADDR", defaultListenAddr),
		LogLevel:            strings.ToLower(strings.TrimSpace(envOrDefault("MCP_GATEWAY_LOG_LEVEL", "info"))),
		Transport:           strings.ToLower(strings.TrimSpace(envOrDefault("MCP_GATEWAY_TRANSPORT", TransportHTTP))),
		Mode:                strings.ToLower(strings.TrimSpace(envOrDefault("MCP_GATEWAY_MODE", ModeReadWrite))),
		WeatherURL:          strings.TrimRight(envOrDefault("REAL_WEATHER_API_URL", defaultWeatherURL), "/"),
		BusinessURL:         strings.TrimRight(envOrDefault("REAL_BUSINESS_API_URL", defaultBusinessURL), "/"),
		AuthURL:             strings.TrimRight(envOrDefault("REAL_AUTH_API_URL", defaultAuthURL), "/"),
		AuthNamespace:       strings.Trim(strings.TrimSpace(envOrDefault("MCP_GATEWAY_AUTH_NAMESPACE", defaultAuthNamespace)), "/"),
		AuthFailureMode:     strings.ToLower(strings.TrimSpace(envOrDefault("MCP_GATEWAY_AUTH_FAILURE_MODE", AuthFailOpen))),
		AllowAnonymous:      envBool("MCP_GATEWAY_ALLOW_ANONYMOUS", true),
		UserAgent:           envOrDefault("MCP_GATEWAY_USER_AGENT", defaultUserAgent),
		AllowCLIConfigToken: envBool("MCP_GATEWAY_ALLOW_CLI_CONFIG_TOKEN", false),
		CLIConfigPath:       envOrDefault("MCP_GATEWAY_CLI_CONFIG_PATH", defaultCLIConfigPath),
		MetricsEnabled:      envBool("MCP_GATEWAY_METRICS_ENABLED", true),
		TracesEnabled:       envBool("MCP_GATEWAY_TRACES_ENABLED", false),
	}

	switch cfg.Transport {
	case TransportHTTP, TransportStdio:
	default:
		return Config{}, fmt.Errorf("invalid MCP_GATEWAY_TRANSPORT %q (allowed: %s|%s)", cfg.Transport, TransportHTTP, TransportStdio)
	}

	switch cfg.Mode {
	case ModeReadWrite, ModeReadOnly:
	default:
		return Config{}, fmt.Errorf("invalid MCP_GATEWAY_MODE %q (allowed: %s|%s)", cfg.Mode, ModeReadWrite, ModeReadOnly)
	}

	switch cfg.AuthFailureMode {
	case AuthFailOpen, AuthFailClosed:
	default:
		return Config{}, fmt.Errorf("invalid MCP_GATEWAY_AUTH_FAILURE_MODE %q (allowed: %s|%s)", cfg.AuthFailureMode, AuthFailOpen, AuthFailClosed)
	}

	timeout, err := envDuration("MCP_GATEWAY_UPSTREAM_TIMEOUT", defaultUpstreamTimeout)
	if err != nil {
		return Config{}, err
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("invalid MCP_GATEWAY_UPSTREAM_TIMEOUT %s: must be positive", timeout)
	}
	cfg.UpstreamTimeout = timeout

	rps, err := envFloat("MCP_GATEWAY_RATE_LIMIT_RPS", 0)
	if err != nil {
		return Config{}, err
	}
	if rps < 0 {
		return Config{}, fmt.Errorf("invalid MCP_GATEWAY_RATE_LIMIT_RPS %v: must be >= 0", rps)
	}
	cfg.RateLimitRPS = rps

	burst, err := envInt("MCP_GATEWAY_RATE_LIMIT_BURST", defaultRateLimitBurst)
	if err != nil {
		return Config{}, err
	}
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	cfg.RateLimitBurst = burst

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AuthNamespace == "" {
		cfg.AuthNamespace = defaultAuthNamespace
	}

	return cfg, nil
}

// FailOpen reports whether authorization outages degrade to the default principal.
func (c Config) FailOpen() bool {
	return c.AuthFailureMode != AuthFailClosed
}

func envOrDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return parsed
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		// Bare numbers are seconds.
		seconds, numErr := strconv.ParseFloat(value, 64)
		if numErr != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return parsed, nil
}

func envInt(key string, defaultVal int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
