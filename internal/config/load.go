package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultExchangeTimeout bounds a single token exchange
const DefaultExchangeTimeout = 30 * time.Second

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into typed Config struct
	// The custom UnmarshalJSON methods will resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if config.Front.ExchangeTimeout == 0 {
		config.Front.ExchangeTimeout = DefaultExchangeTimeout
	}
	if config.Front.Storage == "" {
		config.Front.Storage = StorageMemory
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks the config structure before environment
// resolution. Secrets must arrive as env references so key material never
// sits in the config file.
func validateRawConfig(rawConfig map[string]any) error {
	checkEnvRef := func(section map[string]any, sectionName, field string) error {
		value, exists := section[field]
		if !exists {
			return nil
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", sectionName, field)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", sectionName, field)
			}
		}
		return nil
	}

	if front, ok := rawConfig["front"].(map[string]any); ok {
		if err := checkEnvRef(front, "front", "signingKey"); err != nil {
			return err
		}
		if err := checkEnvRef(front, "front", "encryptionKey"); err != nil {
			return err
		}
	}
	if hosted, ok := rawConfig["hosted"].(map[string]any); ok {
		if err := checkEnvRef(hosted, "hosted", "apiKey"); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration. Validation is
// strict: a misconfigured flow fails startup rather than degrading at the
// first sign-in attempt.
func ValidateConfig(config *Config) error {
	if config.Front.Addr == "" {
		return fmt.Errorf("front.addr is required")
	}
	if config.Front.BaseURL == "" {
		return fmt.Errorf("front.baseUrl is required")
	}
	if len(config.Front.SigningKey) < 32 {
		return fmt.Errorf("front.signingKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Front.SigningKey))
	}

	switch config.Front.Storage {
	case StorageMemory:
	case StorageFirestore:
		if config.Front.GCPProject == "" {
			return fmt.Errorf("front.gcpProject is required when using firestore storage")
		}
		if len(config.Front.EncryptionKey) != 32 {
			return fmt.Errorf("front.encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(config.Front.EncryptionKey))
		}
	default:
		return fmt.Errorf("front.storage must be %q or %q (got %q)", StorageMemory, StorageFirestore, config.Front.Storage)
	}

	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseUrl is required")
	}

	if google := config.Google; google != nil {
		if google.ClientID == "" {
			return fmt.Errorf("google config: clientId is required")
		}
		if google.RedirectURI == "" {
			return fmt.Errorf("google config: redirectUri is required")
		}
	}

	if hosted := config.Hosted; hosted != nil {
		if hosted.BaseURL == "" {
			return fmt.Errorf("hosted config: baseUrl is required")
		}
		if hosted.APIKey == "" {
			return fmt.Errorf("hosted config: apiKey is required")
		}
	}

	return nil
}
