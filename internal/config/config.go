package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/placesimport/config.yaml"

// Config holds all placesimport configuration.
type Config struct {
	Import      ImportConfig      `yaml:"import"`
	Filter      FilterConfig      `yaml:"filter"`
	Destination DestinationConfig `yaml:"destination"`
	Progress    ProgressConfig    `yaml:"progress"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type ImportConfig struct {
	// BatchSize of 0 or less commits once at the end.
	BatchSize     int    `yaml:"batch_size"`
	Mode          string `yaml:"mode" validate:"oneof=buffered stream"`
	VisitIdentity string `yaml:"visit_identity" validate:"oneof=timestamp place"`
	Schema        string `yaml:"schema" validate:"oneof=auto v1 v2"`
	DryRun        bool   `yaml:"dry_run"`
}

type FilterConfig struct {
	ExcludeDomains    []string `yaml:"exclude_domains" validate:"dive,required"`
	ExcludeRegex      []string `yaml:"exclude_regex" validate:"dive,regexp"`
	SensitiveDefaults bool     `yaml:"sensitive_defaults"`
}

type DestinationConfig struct {
	JournalMode   string `yaml:"journal_mode" validate:"oneof=wal delete truncate persist memory off"`
	Synchronous   string `yaml:"synchronous" validate:"oneof=off normal full extra"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" validate:"gte=0"`
}

type ProgressConfig struct {
	// Dir holds the resume database. Empty disables progress tracking.
	Dir    string `yaml:"dir"`
	Resume bool   `yaml:"resume"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Textfile is written after each import when set.
	Textfile string `yaml:"textfile"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML or
// fails validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads the config at DefaultConfigPath, or returns the defaults
// when that file does not exist.
func LoadDefault() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// ExcludedDomains returns the configured domain exclusions, plus the curated
// sensitive list when enabled.
func (c *Config) ExcludedDomains() []string {
	domains := append([]string{}, c.Filter.ExcludeDomains...)
	if c.Filter.SensitiveDefaults {
		domains = append(domains, SensitiveDomains()...)
	}
	return domains
}

// Validate checks every field against its validate tag. Flag overrides are
// applied to the struct first, so the CLI calls this again after merging.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML path rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})

	return v
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.import.mode"; drop the root type.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %q)", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s must not be empty", field)
	case "regexp":
		return fmt.Sprintf("%s is not a valid regular expression: %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
