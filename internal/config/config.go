// Package config resolves chat client settings from defaults, an optional
// YAML file, the environment (including a .env file), command-line flags and
// AWS SSM Parameter Store, in that order of increasing precedence except for
// SSM, which only fills values still unset.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"chat-client/internal/integrations/paramstore"
)

const (
	DefaultBaseURL  = "http://localhost:8000"
	DefaultTimeout  = 30 * time.Second
	DefaultOrdering = "send"
	defaultEnvFile  = ".env"
)

type Config struct {
	BaseURL     string        `yaml:"base_url"`
	CSRFToken   string        `yaml:"csrf_token"`
	Cookie      string        `yaml:"cookie"`
	Project     string        `yaml:"project"`
	Timeout     time.Duration `yaml:"timeout"`
	Ordering    string        `yaml:"ordering"`
	MaxInFlight int           `yaml:"max_in_flight"`
	Bootstrap   bool          `yaml:"bootstrap"`
	ParamPrefix string        `yaml:"param_prefix"`
	LogFile     string        `yaml:"log_file"`
	Debug       bool          `yaml:"debug"`
}

func Default() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		Ordering:  DefaultOrdering,
		Bootstrap: true,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the environment. envFile is loaded into the process
// environment first without overriding variables already set; when empty,
// ./.env is tried and a missing file is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if envFile == "" {
		if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", defaultEnvFile, err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs error
	envString(lookup, "CHAT_BASE_URL", &cfg.BaseURL)
	envString(lookup, "CHAT_CSRF_TOKEN", &cfg.CSRFToken)
	envString(lookup, "CHAT_COOKIE", &cfg.Cookie)
	envString(lookup, "CHAT_PROJECT", &cfg.Project)
	envString(lookup, "CHAT_ORDERING", &cfg.Ordering)
	envString(lookup, "CHAT_PARAM_PREFIX", &cfg.ParamPrefix)
	envString(lookup, "CHAT_LOG_FILE", &cfg.LogFile)
	errs = multierr.Append(errs, envDuration(lookup, "CHAT_TIMEOUT", &cfg.Timeout))
	errs = multierr.Append(errs, envInt(lookup, "CHAT_MAX_IN_FLIGHT", &cfg.MaxInFlight))
	errs = multierr.Append(errs, envBool(lookup, "CHAT_BOOTSTRAP", &cfg.Bootstrap))
	errs = multierr.Append(errs, envBool(lookup, "CHAT_DEBUG", &cfg.Debug))
	return errs
}

func envString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(lookup lookupFunc, key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	u, err := url.Parse(c.BaseURL)
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		errs = multierr.Append(errs, errors.New("config: base_url is required"))
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("config: base_url: %w", err))
	case (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = multierr.Append(errs, fmt.Errorf("config: base_url must be an absolute http(s) URL, got %q", c.BaseURL))
	}
	if c.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("config: timeout must be positive, got %s", c.Timeout))
	}
	if c.Ordering != "send" && c.Ordering != "completion" {
		errs = multierr.Append(errs, fmt.Errorf("config: ordering must be send or completion, got %q", c.Ordering))
	}
	if c.MaxInFlight < 0 {
		errs = multierr.Append(errs, fmt.Errorf("config: max_in_flight must not be negative, got %d", c.MaxInFlight))
	}
	return errs
}

// SettingsLoader is satisfied by *paramstore.Client.
type SettingsLoader interface {
	LoadSettings(ctx context.Context, prefix string) (paramstore.Settings, error)
}

// ResolveParams fills BaseURL, CSRFToken and Project from the parameter
// store when ParamPrefix is set. Values already configured are kept, except
// BaseURL still at its default.
func (c *Config) ResolveParams(ctx context.Context, loader SettingsLoader) error {
	if strings.TrimSpace(c.ParamPrefix) == "" {
		return nil
	}
	if loader == nil {
		return errors.New("config: param_prefix set but no parameter store available")
	}
	s, err := loader.LoadSettings(ctx, c.ParamPrefix)
	if err != nil {
		return fmt.Errorf("config: load parameters: %w", err)
	}
	if s.BaseURL != "" && (c.BaseURL == "" || c.BaseURL == DefaultBaseURL) {
		c.BaseURL = s.BaseURL
	}
	if s.CSRFToken != "" && c.CSRFToken == "" {
		c.CSRFToken = s.CSRFToken
	}
	if s.ProjectName != "" && c.Project == "" {
		c.Project = s.ProjectName
	}
	return nil
}
