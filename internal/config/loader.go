package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/devilmonastery/ara/internal/pkg/urlutil"
)

// Provider types accepted in configuration.
const (
	ProviderTypeOIDC   = "oidc"
	ProviderTypeOAuth2 = "oauth2"
	ProviderTypeCustom = "custom"
)

// Database drivers accepted in configuration.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"./configs/development.yaml",
	"/etc/ara/config.yaml",
	"/etc/ara/config.yml",
}

// Defaults returns a configuration populated with default values only
func Defaults() *Config {
	return &Config{
		Environment: "local",
		Database: DatabaseConfig{
			Driver: DriverPostgres,
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "ara",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		HTTP: HTTPConfig{
			Host:        "localhost",
			Port:        8080,
			FrontendURL: "http://localhost:4200",
		},
		Session: SessionConfig{
			Lifetime: 12 * time.Hour,
		},
		Auth: AuthConfig{
			DefaultScope: "OBSERVER",
			HTTPTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the configuration from the specified file or default locations
func Load(configPath string) (*Config, error) {
	config := Defaults()

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" && fileExists(configPath) {
		slog.Info("loading config", "path", configPath)
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(expandEnvVars(data), config); err != nil {
			return nil, err
		}
	} else {
		slog.Info("no config file found, using defaults")
	}

	normalize(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Parse decodes YAML into cfg, leaving fields absent from data untouched
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// normalize canonicalises provider codes and fills derived values.
func normalize(config *Config) {
	config.Database.Driver = strings.ToLower(strings.TrimSpace(config.Database.Driver))
	for i := range config.Auth.Providers {
		p := &config.Auth.Providers[i]
		p.Code = strings.ToLower(strings.TrimSpace(p.Code))
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Type == "" {
			p.Type = ProviderTypeOAuth2
			if p.Issuer != "" {
				p.Type = ProviderTypeOIDC
			}
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Code
		}
		if p.RedirectURL == "" && config.HTTP.PublicURL != "" {
			p.RedirectURL = urlutil.BuildCallbackURL(config.HTTP.PublicURL, p.Code)
		}
	}
	config.Auth.DefaultScope = strings.ToUpper(strings.TrimSpace(config.Auth.DefaultScope))
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	switch config.Database.Driver {
	case DriverPostgres:
		if config.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Database.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, config.Database.Driver)
	}

	if config.HTTP.Port < 1 || config.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if config.Auth.HTTPTimeout <= 0 {
		return fmt.Errorf("auth.http_timeout must be positive")
	}
	if config.Auth.WriteTimeout <= 0 {
		return fmt.Errorf("auth.write_timeout must be positive")
	}

	seen := make(map[string]bool, len(config.Auth.Providers))
	for i, p := range config.Auth.Providers {
		if p.Code == "" {
			return fmt.Errorf("auth.providers[%d]: code is required", i)
		}
		if seen[p.Code] {
			return fmt.Errorf("auth.providers[%d]: duplicate code %q", i, p.Code)
		}
		seen[p.Code] = true
		switch p.Type {
		case ProviderTypeOIDC, ProviderTypeOAuth2, ProviderTypeCustom:
		default:
			return fmt.Errorf("auth.providers[%d]: unknown type %q", i, p.Type)
		}
	}

	return nil
}
