package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamusis/memview/internal/config"
)

// Environment keys read by LoadConfig. Values may also come from ~/.memview/.env.
const (
	EnvProvider = "MEMVIEW_EMBEDDINGS_PROVIDER"
	EnvModel    = "MEMVIEW_EMBEDDINGS_MODEL"
	EnvAPIKey   = "MEMVIEW_EMBEDDINGS_API_KEY"
	EnvBaseURL  = "MEMVIEW_EMBEDDINGS_BASE_URL"
)

// DefaultBaseURL is used when MEMVIEW_EMBEDDINGS_BASE_URL is empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// ErrNotConfigured is returned when no embeddings provider is set.
var ErrNotConfigured = errors.New("embeddings provider is not configured (set " + EnvProvider + ")")

// Provider turns text into query or record vectors.
type Provider interface {
	ModelID() string
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs ...string) ([][]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LoadConfig resolves embeddings config from environment variables first, then ~/.memview/.env.
func LoadConfig() (*Config, error) {
	var cfg Config
	for _, kv := range []struct {
		key string
		dst *string
	}{
		{EnvProvider, &cfg.Provider},
		{EnvModel, &cfg.Model},
		{EnvAPIKey, &cfg.APIKey},
		{EnvBaseURL, &cfg.BaseURL},
	} {
		v, err := config.GetConfigValue(kv.key)
		if err != nil {
			return nil, err
		}
		*kv.dst = v
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &cfg, nil
}

// NewFromConfig returns the provider named by cfg.Provider.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
}
