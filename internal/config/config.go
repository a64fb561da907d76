// Package config loads the psmcli configuration: a YAML study file with
// environment-variable overrides (prefix PSM), validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"psmcli/internal/dataset"
	"psmcli/internal/effect"
	"psmcli/internal/matching"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Study   StudyConfig   `yaml:"study" envconfig:"STUDY"`
}

// ServerConfig configures the resultsd HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/psmcli.log"`
}

// PathsConfig configures file system locations.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"data/reports"`
}

// StudyConfig describes one observational study run.
type StudyConfig struct {
	Name     string `yaml:"name" validate:"required"`
	LeftCSV  string `yaml:"left_csv" envconfig:"LEFT_CSV" validate:"required"`
	RightCSV string `yaml:"right_csv" envconfig:"RIGHT_CSV" validate:"required"`

	Schema dataset.Schema `yaml:"schema"`

	// Link is the propensity model link function.
	Link string `yaml:"link" default:"logit" validate:"oneof=logit probit"`

	// Policies lists every matching policy to run; PrimaryPolicy selects
	// the one the headline effect estimate is reported for.
	Policies      []string         `yaml:"policies"`
	PrimaryPolicy string           `yaml:"primary_policy" default:"nearest" validate:"oneof=nearest optimal full subclass"`
	Matching      matching.Options `yaml:"matching"`

	// Power, when present, adds the pre-registration sample size
	// computation to the report.
	Power *effect.PowerInput `yaml:"power"`
}

// MatchingPolicies resolves the configured policy list, defaulting to the
// primary policy alone.
func (s StudyConfig) MatchingPolicies() ([]matching.Policy, error) {
	names := s.Policies
	if len(names) == 0 {
		names = []string{s.PrimaryPolicy}
	}
	var policies []matching.Policy
	seen := make(map[matching.Policy]bool)
	for _, name := range names {
		p := matching.Policy(name)
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown matching policy %q", name)
		}
		if !seen[p] {
			seen[p] = true
			policies = append(policies, p)
		}
	}
	if !seen[matching.Policy(s.PrimaryPolicy)] {
		return nil, fmt.Errorf("primary policy %q not in policies list", s.PrimaryPolicy)
	}
	return policies, nil
}

// Load reads configuration from environment variables and an optional
// YAML file; file values override the environment, matching how study
// files are meant to pin down a run exactly.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("PSM", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration with struct tags plus the cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := c.Study.MatchingPolicies(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
