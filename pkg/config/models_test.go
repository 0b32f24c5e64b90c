package config_test

import (
	"testing"

	"github.com/norfolkpine/collab-gateway/pkg/config"
)

func TestProductionModeFlag(t *testing.T) {
	cases := map[string]bool{
		"production":  true,
		"development": false,
		"":            false,
		"Production":  false, // exact match only
	}
	for mode, want := range cases {
		cfg := config.ServerConfig{Mode: mode}
		if got := cfg.Production(); got != want {
			t.Errorf("Production() with mode %q = %v, want %v", mode, got, want)
		}
	}
}

func TestAllowedOriginsSplitting(t *testing.T) {
	cfg := config.ServerConfig{CORSOrigins: "http://localhost:3000, https://app.example.com ,,"}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %d: %v", len(origins), origins)
	}
	if origins[0] != "http://localhost:3000" || origins[1] != "https://app.example.com" {
		t.Errorf("unexpected origins: %v", origins)
	}
}

func TestAPIKeySetEmpty(t *testing.T) {
	cfg := config.ServerConfig{APIKeys: ""}
	if keys := cfg.APIKeySet(); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}
