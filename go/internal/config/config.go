package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mcdev12/giveaway/go/internal/draw/executor"
	"github.com/mcdev12/giveaway/go/internal/draw/schedule"
	"github.com/mcdev12/giveaway/go/internal/draw/viewer"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when DRAW_CONFIG is unset.
const DefaultPath = "config/draw.yaml"

// Config is the draw engine configuration file.
type Config struct {
	Schedule schedule.Config `yaml:"schedule"`
	Draw     executor.Config `yaml:"draw"`
	Viewer   viewer.Config   `yaml:"viewer"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Schedule: schedule.DefaultConfig(),
		Draw:     executor.DefaultConfig(),
		Viewer:   viewer.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by DRAW_CONFIG.
func LoadFromEnv() (*Config, error) {
	return Load(GetEnv("DRAW_CONFIG", DefaultPath))
}

func (c *Config) applyEnv() error {
	var err error
	if c.Draw.BypassWindow, err = GetEnvAsBool("DRAW_BYPASS_WINDOW", c.Draw.BypassWindow); err != nil {
		return err
	}
	if c.Draw.Amount, err = GetEnvAsInt("DRAW_AMOUNT", c.Draw.Amount); err != nil {
		return err
	}
	if tz := os.Getenv("DRAW_TIMEZONE"); tz != "" {
		c.Schedule.Timezone = tz
	}
	return nil
}

// RequireEnv fails with every missing variable named at once.
func RequireEnv(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
