package config

import (
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Transport TransportConfig
}

type ServerConfig struct {
	Address string
	// Mode arms real authentication when set to "production"; any other
	// value enables the local development bypass.
	Mode        string
	CORSOrigins string `mapstructure:"corsOrigins"`
	APIKeys     string `mapstructure:"apiKeys"`
}

type BackendConfig struct {
	BaseURL      string        `mapstructure:"baseURL"`
	IdentityPath string        `mapstructure:"identityPath"`
	DocumentPath string        `mapstructure:"documentPath"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type TransportConfig struct {
	ReadTimeout      time.Duration `mapstructure:"readTimeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
}

func (s ServerConfig) Production() bool {
	return s.Mode == "production"
}

// AllowedOrigins splits the comma-separated CORS allow-list, trimming
// surrounding whitespace. Empty entries are dropped.
func (s ServerConfig) AllowedOrigins() []string {
	return splitList(s.CORSOrigins)
}

// APIKeySet returns the shared secrets accepted by the administrative
// endpoint.
func (s ServerConfig) APIKeySet() []string {
	return splitList(s.APIKeys)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
