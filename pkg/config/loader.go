package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":4444")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.corsOrigins", "http://localhost:3000")
	v.SetDefault("server.apiKeys", "")
	v.SetDefault("backend.baseURL", "http://localhost:8000")
	v.SetDefault("backend.identityPath", "/api/v1.0/users/me/")
	v.SetDefault("backend.documentPath", "/api/v1.0/documents/%s/")
	v.SetDefault("backend.timeout", "5s")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.handshakeTimeout", "15s")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("COLLABGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if !cfg.Server.Production() {
		logger.Warn("SERVER RUNNING WITHOUT AUTHENTICATION: dev-mode bypass is active. " +
			"Every connection is accepted read-write with a placeholder identity. " +
			"Set COLLABGW_SERVER_MODE=production before exposing this process.")
	}

	return &cfg, nil
}
