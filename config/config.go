// Package config provides centralized configuration management for repocore.
//
// Configuration follows a three-tier hierarchy, highest priority first:
//  1. Command-line flags
//  2. Environment variables
//  3. An optional YAML config file, falling back to built-in defaults
//
// All values have sensible defaults and can be overridden through the
// environment or through a config file at startup.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values for a repocore repository process.
type Config struct {
	// Repository Storage
	// ==================

	// RepoFile is the path to the repository file holding BLOB/DELTA/SHUN
	// and all derived indices.
	// Environment: REPOCORE_REPO_FILE
	// Default: "./.repocore/repo.rdb"
	RepoFile string

	// WorkDir is the root of the working copy this process operates on.
	// Environment: REPOCORE_WORK_DIR
	// Default: "." (current directory)
	WorkDir string

	// SizeRatio is the delta-vs-raw storage threshold: a
	// candidate base is used for delta storage only if
	// len(delta) < SizeRatio * len(content).
	// Environment: REPOCORE_SIZE_RATIO
	// Default: 0.5
	SizeRatio float64

	// CompressionThreshold is loaded from the environment or YAML file but
	// nothing reads it: the store zlib-compresses every raw-stored artifact
	// regardless of size.
	// Environment: REPOCORE_COMPRESSION_THRESHOLD
	// Default: 128
	CompressionThreshold int

	// Identity
	// ========

	// User is the committer identity used when no explicit user is
	// configured, falling back to $USER.
	// Environment: REPOCORE_USER, then $USER
	User string

	// Logging
	// =======

	// LogLevel sets the minimum log level for message output.
	// Environment: REPOCORE_LOG_LEVEL
	// Default: "info"
	// Valid values: "trace", "debug", "info", "warn", "error"
	LogLevel string

	// TraceSubsystems enables fine-grained TRACE output for specific
	// subsystems (e.g. "store,merge").
	// Environment: REPOCORE_TRACE_SUBSYSTEMS
	TraceSubsystems []string

	// Diagnostics
	// ===========

	// StatusAddr is the listen address for the ambient /healthz and
	// /metrics diagnostics endpoints. Empty disables the listener.
	// Environment: REPOCORE_STATUS_ADDR
	// Default: "" (disabled)
	StatusAddr string

	// MetricsEnabled is loaded from the environment or YAML file but
	// nothing reads it: the metrics package registers its collectors at
	// init and updates them whatever this is set to.
	// Environment: REPOCORE_METRICS_ENABLED
	// Default: true
	MetricsEnabled bool

	// Merge behaviour
	// ===============

	// BinaryGlob is a user-supplied glob pattern (in addition to the
	// content heuristic) identifying paths that must never be
	// textually merged.
	// Environment: REPOCORE_BINARY_GLOB
	BinaryGlob string
}

// BinaryGlobs splits BinaryGlob on commas into the pattern list merge.Merge
// expects, e.g. "*.png,*.jpg" -> ["*.png", "*.jpg"].
func (c *Config) BinaryGlobs() []string {
	if c.BinaryGlob == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(c.BinaryGlob, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load creates a new Config with values from the environment, applied over
// the built-in defaults. Values returned by this function can be further
// overridden by command-line flags (see config.Manager).
func Load() *Config {
	return &Config{
		RepoFile:             getEnv("REPOCORE_REPO_FILE", "./.repocore/repo.rdb"),
		WorkDir:              getEnv("REPOCORE_WORK_DIR", "."),
		SizeRatio:            getEnvFloat("REPOCORE_SIZE_RATIO", 0.5),
		CompressionThreshold: getEnvInt("REPOCORE_COMPRESSION_THRESHOLD", 128),
		User:                 getEnv("REPOCORE_USER", defaultUser()),
		LogLevel:             getEnv("REPOCORE_LOG_LEVEL", "info"),
		TraceSubsystems:      getEnvStringSlice("REPOCORE_TRACE_SUBSYSTEMS", nil),
		StatusAddr:           getEnv("REPOCORE_STATUS_ADDR", ""),
		MetricsEnabled:       getEnvBool("REPOCORE_METRICS_ENABLED", true),
		BinaryGlob:           getEnv("REPOCORE_BINARY_GLOB", ""),
	}
}

// defaultUser falls back to $USER per the CLI's committer-identity contract.
func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// =============================================================================
// Environment Variable Parsing Utilities
// =============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if p := strings.TrimSpace(part); p != "" {
				result = append(result, p)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
