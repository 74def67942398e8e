package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for FrontConfig so env
// references in secret fields are resolved immediately at parse time
func (f *FrontConfig) UnmarshalJSON(data []byte) error {
	// Use a raw type to avoid recursion
	type rawFront struct {
		Addr                string          `json:"addr"`
		BaseURL             json.RawMessage `json:"baseUrl"`
		SigningKey          json.RawMessage `json:"signingKey"`
		Storage             StorageKind     `json:"storage"`
		GCPProject          json.RawMessage `json:"gcpProject,omitempty"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
		EncryptionKey       json.RawMessage `json:"encryptionKey,omitempty"`
		ExchangeTimeout     string          `json:"exchangeTimeout,omitempty"`
	}

	var raw rawFront
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Addr = raw.Addr
	f.Storage = raw.Storage
	f.FirestoreDatabase = raw.FirestoreDatabase
	f.FirestoreCollection = raw.FirestoreCollection

	if raw.BaseURL != nil {
		parsed, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseUrl: %w", err)
		}
		f.BaseURL = parsed.value
	}

	if raw.SigningKey != nil {
		parsed, err := ParseConfigValue(raw.SigningKey)
		if err != nil {
			return fmt.Errorf("parsing signingKey: %w", err)
		}
		f.SigningKey = Secret(parsed.value)
	}

	if raw.GCPProject != nil {
		parsed, err := ParseConfigValue(raw.GCPProject)
		if err != nil {
			return fmt.Errorf("parsing gcpProject: %w", err)
		}
		f.GCPProject = parsed.value
	}

	if raw.EncryptionKey != nil {
		parsed, err := ParseConfigValue(raw.EncryptionKey)
		if err != nil {
			return fmt.Errorf("parsing encryptionKey: %w", err)
		}
		f.EncryptionKey = Secret(parsed.value)
	}

	if raw.ExchangeTimeout != "" {
		timeout, err := time.ParseDuration(raw.ExchangeTimeout)
		if err != nil {
			return fmt.Errorf("parsing exchangeTimeout: %w", err)
		}
		f.ExchangeTimeout = timeout
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for GoogleConfig
func (g *GoogleConfig) UnmarshalJSON(data []byte) error {
	type rawGoogle struct {
		ClientID    json.RawMessage `json:"clientId"`
		RedirectURI json.RawMessage `json:"redirectUri"`
	}

	var raw rawGoogle
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.ClientID != nil {
		parsed, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		g.ClientID = parsed.value
	}

	if raw.RedirectURI != nil {
		parsed, err := ParseConfigValue(raw.RedirectURI)
		if err != nil {
			return fmt.Errorf("parsing redirectUri: %w", err)
		}
		g.RedirectURI = parsed.value
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for HostedConfig
func (h *HostedConfig) UnmarshalJSON(data []byte) error {
	type rawHosted struct {
		BaseURL      json.RawMessage `json:"baseUrl"`
		APIKey       json.RawMessage `json:"apiKey"`
		OAuthBackend string          `json:"oauthBackend,omitempty"`
	}

	var raw rawHosted
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.OAuthBackend = raw.OAuthBackend

	if raw.BaseURL != nil {
		parsed, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseUrl: %w", err)
		}
		h.BaseURL = parsed.value
	}

	if raw.APIKey != nil {
		parsed, err := ParseConfigValue(raw.APIKey)
		if err != nil {
			return fmt.Errorf("parsing apiKey: %w", err)
		}
		h.APIKey = Secret(parsed.value)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		BaseURL json.RawMessage `json:"baseUrl"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.BaseURL != nil {
		parsed, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseUrl: %w", err)
		}
		b.BaseURL = parsed.value
	}

	return nil
}
