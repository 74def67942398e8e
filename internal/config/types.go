package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// FrontConfig holds the server's own settings
type FrontConfig struct {
	Addr                string      `json:"addr"`
	BaseURL             string      `json:"baseUrl"`
	SigningKey          Secret      `json:"-"`
	Storage             StorageKind `json:"storage"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret      `json:"-"`
	ExchangeTimeout     time.Duration
}

// BackendConfig points at the credential-verifying token endpoint
type BackendConfig struct {
	BaseURL string `json:"baseUrl"`
}

// GoogleConfig enables the Google authorization-code flow. The client
// secret never appears here: the code exchange runs through the backend,
// which holds it.
type GoogleConfig struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
}

// HostedConfig enables the third-party-hosted implicit flow
type HostedConfig struct {
	BaseURL      string `json:"baseUrl"`
	APIKey       Secret `json:"-"`
	OAuthBackend string `json:"oauthBackend,omitempty"`
}

// Config is the resolved configuration. Google and Hosted are nil when
// the corresponding flow is not configured; a partially filled section is
// a startup error, never a silently degraded flow.
type Config struct {
	Front   FrontConfig   `json:"front"`
	Backend BackendConfig `json:"backend"`
	Google  *GoogleConfig `json:"google,omitempty"`
	Hosted  *HostedConfig `json:"hosted,omitempty"`
}

// RawConfigValue represents a value that could be a plain string or an
// env ref. Only used during parsing, not in the final config.
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or an
// {"$env": "VAR_NAME"} reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}
