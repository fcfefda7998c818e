package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvironmentConfig describes a single named environment from phaseline.toml.
type EnvironmentConfig struct {
	HistoryURL string `toml:"history_url"`
}

// Config represents the phaseline.toml configuration file.
type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	HistoryURL         string                       `toml:"history_url"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath     string                       `toml:"-"`
}

// ConfigDir returns the directory the config file was loaded from, or ""
// when no config file was found.
func (c *Config) ConfigDir() string {
	if c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// LoadConfig loads phaseline.toml from the current directory or any parent
// directory, stopping at a project boundary. A missing file is not an
// error; an empty config is returned instead.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dir := startDir
	for {
		configPath := filepath.Join(dir, "phaseline.toml")
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", configPath, err)
			}

			config.ConfigFilePath = configPath
			return &config, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// isProjectRoot checks if the directory is a project root based on common markers.
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}

// ResolvedEnvironment is a fully-resolved environment with concrete values.
type ResolvedEnvironment struct {
	Name       string
	HistoryURL string
	DotenvPath string
	FromConfig bool
	FromDotenv bool
}

// ResolveEnvironment resolves a named environment into a concrete history
// URL. Precedence: .env.<name> dotenv file > PHASELINE_HISTORY_URL env var >
// [environments.<name>] in phaseline.toml > top-level history_url.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := name
	if envName == "" && config != nil {
		envName = config.DefaultEnvironment
	}
	if envName == "" {
		envName = "development"
	}

	resolved := &ResolvedEnvironment{Name: envName}

	if config != nil {
		if config.HistoryURL != "" {
			resolved.HistoryURL = config.HistoryURL
		}
		if envConfig, ok := config.Environments[envName]; ok {
			resolved.FromConfig = true
			if envConfig.HistoryURL != "" {
				resolved.HistoryURL = envConfig.HistoryURL
			}
		}
	}

	if value := os.Getenv("PHASELINE_HISTORY_URL"); value != "" {
		resolved.HistoryURL = value
	}

	baseDir := ""
	if config != nil {
		baseDir = config.ConfigDir()
	}
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
		if value := values["PHASELINE_HISTORY_URL"]; value != "" {
			resolved.HistoryURL = value
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing %s: %w", resolved.DotenvPath, err)
	}

	return resolved, nil
}
