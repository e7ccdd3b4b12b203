package config

import (
	"fmt"
	"os"
	"strings"
)

// Webhook endpoint types.
const (
	EndpointREST  = "rest"
	EndpointQuery = "query"
)

// FieldMapping maps one event user property onto a Kit custom field.
type FieldMapping struct {
	LocalName  string
	RemoteName string
}

// Config holds all configuration for the application. Per-product entries
// live in the database and are loaded separately at startup.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string

	KitAPIKey    string
	KitAPISecret string

	// Global fallbacks applied when a product entry leaves a target unset.
	KitFormID string
	KitTagID  string

	LastNameField string
	CustomFields  []FieldMapping

	WebhookEndpointType string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		KitAPIKey:           getEnv("KIT_API_KEY", ""),
		KitAPISecret:        getEnv("KIT_API_SECRET", ""),
		KitFormID:           getEnv("KIT_FORM_ID", ""),
		KitTagID:            getEnv("KIT_TAG_ID", ""),
		LastNameField:       getEnv("LAST_NAME_FIELD", ""),
		WebhookEndpointType: getEnv("WEBHOOK_ENDPOINT_TYPE", EndpointREST),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookEndpointType != EndpointREST && cfg.WebhookEndpointType != EndpointQuery {
		return nil, fmt.Errorf("WEBHOOK_ENDPOINT_TYPE must be %q or %q", EndpointREST, EndpointQuery)
	}

	mappings, err := ParseFieldMappings(getEnv("CUSTOM_FIELDS", ""))
	if err != nil {
		return nil, err
	}
	cfg.CustomFields = mappings

	return cfg, nil
}

// ParseFieldMappings parses the CUSTOM_FIELDS value, a comma-separated
// list of local:remote property pairs (e.g. "plugin:purchased_plugin").
func ParseFieldMappings(raw string) ([]FieldMapping, error) {
	var mappings []FieldMapping
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		local, remote, found := strings.Cut(pair, ":")
		local = strings.TrimSpace(local)
		remote = strings.TrimSpace(remote)
		if !found || local == "" || remote == "" {
			return nil, fmt.Errorf("CUSTOM_FIELDS entry %q is not local:remote", pair)
		}
		mappings = append(mappings, FieldMapping{LocalName: local, RemoteName: remote})
	}
	return mappings, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
