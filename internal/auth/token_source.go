package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenSource identifies where a local session token was resolved from.
type TokenSource string

const (
	// TokenSourceNone means no token was found.
	TokenSourceNone TokenSource = ""
	// TokenSourceEnv is MCP_GATEWAY_TOKEN.
	TokenSourceEnv TokenSource = "mcp_gateway_token"
	// TokenSourceCLIConfig is the auth.token entry of the CLI config file.
	TokenSourceCLIConfig TokenSource = "cli_config"
)

// TokenResolution contains the resolved token and its source.
type TokenResolution struct {
	Token  string
	Source TokenSource
}

// Headers returns synthetic request headers carrying the token, or nil when no
// token was resolved. The stdio transport uses them in place of HTTP headers.
func (r TokenResolution) Headers() Headers {
	if r.Token == "" {
		return nil
	}
	return Headers{"authorization": bearerPrefix + r.Token}
}

// TokenSourceOptions controls token resolution.
type TokenSourceOptions struct {
	AllowCLIConfigToken bool
	CLIConfigPath       string
}

type cliConfigFile struct {
	Auth struct {
		Token string `yaml:"token"`
	} `yaml:"auth"`
}

// ResolveToken resolves the local session token using precedence:
// 1) MCP_GATEWAY_TOKEN
// 2) CLI config auth.token (only when AllowCLIConfigToken=true)
func ResolveToken(opts TokenSourceOptions) (TokenResolution, error) {
	if token := strings.TrimSpace(os.Getenv("MCP_GATEWAY_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	if !opts.AllowCLIConfigToken {
		return TokenResolution{}, nil
	}

	configPath := expandPath(defaultIfEmpty(strings.TrimSpace(opts.CLIConfigPath), "~/.mcprapi/config.yaml"))
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return TokenResolution{}, nil
	default:
		return TokenResolution{}, fmt.Errorf("reading CLI config token source: %w", err)
	}

	var cfg cliConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TokenResolution{}, fmt.Errorf("decoding CLI config token source: %w", err)
	}

	token := strings.TrimSpace(cfg.Auth.Token)
	if token == "" {
		return TokenResolution{}, nil
	}

	return TokenResolution{Token: token, Source: TokenSourceCLIConfig}, nil
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
