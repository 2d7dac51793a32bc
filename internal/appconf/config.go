// Package appconf loads the service configuration from the environment.
package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"oncycle.org/delay-api/internal/featurestore"
	"oncycle.org/delay-api/internal/logging"
	"oncycle.org/delay-api/internal/service"
)

// Environment is the deployment stage the service runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

func (e Environment) Valid() bool {
	switch e {
	case Development, Staging, Production, Test:
		return true
	}
	return false
}

// BuildVersion is the program version. Release builds set it with
// -ldflags "-X oncycle.org/delay-api/internal/appconf.BuildVersion=v1.2.3".
var BuildVersion = "0.1.0"

// Config stores the system configuration. It is read once at startup and not
// modified afterwards.
type Config struct {
	AppName string      `envconfig:"APP_NAME" default:"ONCycle Train Delay Prediction API"`
	Version string      `envconfig:"VERSION"`
	Env     Environment `envconfig:"ENV" default:"development"`

	Server struct {
		Host           string   `envconfig:"HOST" default:"0.0.0.0"`
		Port           int      `envconfig:"PORT" default:"8000"`
		AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
		RateLimit      int      `envconfig:"RATE_LIMIT" default:"100"`
		APIKey         string   `envconfig:"API_KEY"`
	}

	Model struct {
		SingleStationPath string `envconfig:"SINGLE_STATION_MODEL_PATH" required:"true"`
		EncoderPath       string `envconfig:"ENCODER_PATH" required:"true"`
		MetricsPath       string `envconfig:"METRICS_JSON" default:"metrics.json"`
	}

	Logging struct {
		Level  string `envconfig:"LOG_LEVEL" default:"INFO"`
		Format string `envconfig:"LOG_FORMAT" default:"json"`
		File   string `envconfig:"LOG_FILE"`
	}

	FeatureStore struct {
		Backend   string `envconfig:"FEATURE_STORE_BACKEND" default:"postgrest"`
		Table     string `envconfig:"FEATURE_STORE_TABLE" default:"processed_data"`
		URL       string `envconfig:"SUPABASE_URL"`
		Key       string `envconfig:"SUPABASE_KEY"`
		DSN       string `envconfig:"FEATURE_STORE_DSN"`
		RedisURL  string `envconfig:"FEATURE_STORE_REDIS_URL"`
		KeyPrefix string `envconfig:"FEATURE_STORE_KEY_PREFIX" default:"features"`
	}
}

// Load reads envFile, when given and present, into the process environment
// and then builds the configuration from the environment. Variables already
// set take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return FromEnviron()
}

// FromEnviron builds the configuration from the process environment.
func FromEnviron() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Version == "" {
		cfg.Version = BuildVersion
	}
	cfg.Server.AllowedOrigins = cleanList(cfg.Server.AllowedOrigins)
	cfg.FeatureStore.Backend = strings.ToLower(strings.TrimSpace(cfg.FeatureStore.Backend))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	if !c.Env.Valid() {
		errs = append(errs, fmt.Errorf("ENV must be one of development, staging, production, test; got %q", c.Env))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535; got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must not be negative; got %d", c.Server.RateLimit))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.Logging.Format))
	}

	switch c.FeatureStore.Backend {
	case featurestore.BackendPostgREST:
		if c.FeatureStore.URL == "" {
			errs = append(errs, errors.New("SUPABASE_URL is required for the postgrest feature store"))
		}
	case featurestore.BackendPostgres:
		if c.FeatureStore.DSN == "" {
			errs = append(errs, errors.New("FEATURE_STORE_DSN is required for the postgres feature store"))
		}
	case featurestore.BackendRedis:
		if c.FeatureStore.RedisURL == "" {
			errs = append(errs, errors.New("FEATURE_STORE_REDIS_URL is required for the redis feature store"))
		}
	case featurestore.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown FEATURE_STORE_BACKEND %q", c.FeatureStore.Backend))
	}
	if c.FeatureStore.Table == "" {
		errs = append(errs, errors.New("FEATURE_STORE_TABLE must not be empty"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

func (c Config) FeatureStoreConfig() featurestore.Config {
	return featurestore.Config{
		Backend:   c.FeatureStore.Backend,
		URL:       c.FeatureStore.URL,
		Key:       c.FeatureStore.Key,
		DSN:       c.FeatureStore.DSN,
		RedisURL:  c.FeatureStore.RedisURL,
		KeyPrefix: c.FeatureStore.KeyPrefix,
	}
}

func (c Config) ServiceConfig() service.Config {
	return service.Config{
		EncoderPath:            c.Model.EncoderPath,
		SingleStationModelPath: c.Model.SingleStationPath,
		MetricsPath:            c.Model.MetricsPath,
		FeatureTable:           c.FeatureStore.Table,
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
