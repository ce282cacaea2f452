package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads, parses, and validates a YAML configuration file. Values
// absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the default configuration and validates
// the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-field constraints the tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid config: %s", formatValidationErrors(errs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Health.PotionHealthPercent > 0 &&
		cfg.Health.PotionHealthPercent < cfg.Health.ChickenHealthPercent {
		return fmt.Errorf(
			"invalid config: potion_health_percent (%.0f) must not be below chicken_health_percent (%.0f)",
			cfg.Health.PotionHealthPercent, cfg.Health.ChickenHealthPercent)
	}
	if cfg.Pickit.WatchForChanges && cfg.Pickit.Path == "" {
		return fmt.Errorf("invalid config: pickit.watch_for_changes requires pickit.path")
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag())
	}
	return out
}
