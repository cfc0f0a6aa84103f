// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/skillswap-gateway/config.yaml",
	"/etc/skillswap-gateway/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyDevelopment()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors.allowed_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
var envMappings = map[string]string{
	// Server
	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_read_timeout":      "server.read_timeout",
	"http_write_timeout":     "server.write_timeout",
	"http_idle_timeout":      "server.idle_timeout",
	"shutdown_timeout":       "server.shutdown_timeout",
	"development":            "server.development",
	"metrics_enabled":        "server.metrics_enabled",
	"performance_window":     "server.performance_window",
	"slow_request_threshold": "server.slow_request_threshold",
	"maintenance_interval":   "server.maintenance_interval",

	// Security
	"jwt_secret":              "security.jwt_secret",
	"jwt_issuer":              "security.jwt_issuer",
	"jwt_leeway":              "security.jwt_leeway",
	"session_cookie_name":     "security.session.cookie.name",
	"session_cookie_domain":   "security.session.cookie.domain",
	"session_cookie_secure":   "security.session.cookie.secure",
	"session_ttl":             "security.session.cookie.session_ttl",
	"session_sliding":         "security.session.cookie.sliding",
	"session_refresh_wait":    "security.session.refresh_wait",
	"session_profile_wait":    "security.session.profile_wait",
	"session_profile_ttl":     "security.session.profile_ttl",
	"session_store":           "security.store.type",
	"session_store_path":      "security.store.path",
	"session_store_key":       "security.store.encryption_key",
	"lockout_enabled":         "security.lockout.enabled",
	"lockout_max_attempts":    "security.lockout.max_attempts",
	"lockout_duration":        "security.lockout.lockout_duration",
	"audit_enabled":           "security.audit.enabled",
	"audit_log_allowed":       "security.audit.log_allowed",
	"cors_origins":            "security.cors.allowed_origins",
	"rate_limit_disabled":     "security.rate_limit.disabled",
	"rate_limit_requests":     "security.rate_limit.requests",
	"rate_limit_window":       "security.rate_limit.window",
	"login_rate_limit":        "security.rate_limit.login_requests",
	"login_rate_limit_window": "security.rate_limit.login_window",

	// SkillSwap API
	"skillswap_api_url":           "backend.base_url",
	"skillswap_api_service_token": "backend.service_token",
	"skillswap_api_timeout":       "backend.timeout",
	"skillswap_api_rate_limit":    "backend.rate_limit",

	// Permissions
	"permissions_source":       "permissions.source",
	"casbin_model_path":        "permissions.model_path",
	"casbin_policy_path":       "permissions.policy_path",
	"casbin_auto_reload":       "permissions.auto_reload",
	"permissions_cache_ttl":    "permissions.cache_ttl",
	"permissions_default_role": "permissions.default_role",

	// Routes
	"login_path":       "routes.guard.login_path",
	"fail_closed":      "routes.guard.fail_closed",
	"suspense_timeout": "routes.lazy.suspense_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JWT_SECRET -> security.jwt_secret
//   - SKILLSWAP_API_URL -> backend.base_url
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
