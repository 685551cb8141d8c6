package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"repocore/logger"
)

// Manager layers repocore's configuration hierarchy on top of Load():
// command-line flags override environment variables, which override an
// optional YAML config file, which overrides the built-in defaults.
//
// Flag Processing:
//
//	Only flags explicitly set on the command line override the
//	environment/file-derived configuration; an unset flag never clobbers
//	a value the user supplied another way.
//
// Thread Safety:
//
//	Manager is built once at process startup and treated as read-only
//	afterward; it does not need its own locking.
type Manager struct {
	config *Config
}

// fileOverrides mirrors the subset of Config fields a repository may pin in
// a checked-in YAML file (e.g. ".repocore/config.yaml"), so a shared
// convention like SizeRatio travels with the repository rather than each
// operator's shell environment.
type fileOverrides struct {
	RepoFile             *string  `yaml:"repo_file"`
	WorkDir              *string  `yaml:"work_dir"`
	SizeRatio            *float64 `yaml:"size_ratio"`
	CompressionThreshold *int     `yaml:"compression_threshold"`
	LogLevel             *string  `yaml:"log_level"`
	StatusAddr           *string  `yaml:"status_addr"`
	MetricsEnabled       *bool    `yaml:"metrics_enabled"`
	BinaryGlob           *string  `yaml:"binary_glob"`
}

// NewManager builds a Manager by loading environment defaults and then, if
// present, filling in values from a YAML config file: a YAML value is used
// only where the matching environment variable is unset. A missing file is
// not an error: most invocations rely on environment variables and defaults
// alone.
func NewManager(yamlPath string) (*Manager, error) {
	cfg := Load()

	if yamlPath != "" {
		if err := applyYAMLFile(cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	return &Manager{config: cfg}, nil
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return err
	}

	if overrides.RepoFile != nil && os.Getenv("REPOCORE_REPO_FILE") == "" {
		cfg.RepoFile = *overrides.RepoFile
	}
	if overrides.WorkDir != nil && os.Getenv("REPOCORE_WORK_DIR") == "" {
		cfg.WorkDir = *overrides.WorkDir
	}
	if overrides.SizeRatio != nil && os.Getenv("REPOCORE_SIZE_RATIO") == "" {
		cfg.SizeRatio = *overrides.SizeRatio
	}
	if overrides.CompressionThreshold != nil && os.Getenv("REPOCORE_COMPRESSION_THRESHOLD") == "" {
		cfg.CompressionThreshold = *overrides.CompressionThreshold
	}
	if overrides.LogLevel != nil && os.Getenv("REPOCORE_LOG_LEVEL") == "" {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.StatusAddr != nil && os.Getenv("REPOCORE_STATUS_ADDR") == "" {
		cfg.StatusAddr = *overrides.StatusAddr
	}
	if overrides.MetricsEnabled != nil && os.Getenv("REPOCORE_METRICS_ENABLED") == "" {
		cfg.MetricsEnabled = *overrides.MetricsEnabled
	}
	if overrides.BinaryGlob != nil && os.Getenv("REPOCORE_BINARY_GLOB") == "" {
		cfg.BinaryGlob = *overrides.BinaryGlob
	}

	logger.Debug("config: applied overrides from %s", path)
	return nil
}

// Config returns the resolved configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// ApplyFlag overrides a single field only if the corresponding
// command-line flag was explicitly set (changed reports this per cobra's
// pflag.Changed convention); the caller passes changed=false for untouched
// flags so defaults from the environment/file tier survive.
func (m *Manager) ApplyFlag(field string, value string, changed bool) {
	if !changed {
		return
	}
	switch field {
	case "repo-file":
		m.config.RepoFile = value
	case "work-dir":
		m.config.WorkDir = value
	case "log-level":
		m.config.LogLevel = value
	case "status-addr":
		m.config.StatusAddr = value
	case "binary-glob":
		m.config.BinaryGlob = value
	default:
		logger.Warn("config: unknown flag override field %q ignored", field)
	}
}
