package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration, bound from the environment.
type Config struct {
	// Storage
	LibraryRoot string `mapstructure:"LIBRARY_ROOT" validate:"required"`
	AppDataDir  string `mapstructure:"APP_DATA_DIR" validate:"required"`

	// Job queue
	WorkerCount     int `mapstructure:"WORKER_COUNT"`
	JobLeaseSeconds int `mapstructure:"JOB_LEASE_SECONDS"`
	JobMaxAttempts  int `mapstructure:"JOB_MAX_ATTEMPTS"`
	JobBackoffBaseS int `mapstructure:"JOB_BACKOFF_BASE_SECONDS"`

	// Derived-asset pipeline
	PipelineVersion int  `mapstructure:"PIPELINE_VERSION"`
	SpriteExtraFine bool `mapstructure:"SPRITE_EXTRA_FINE"`

	// Licensing (stub gate only; see internal/licensing)
	LicenseKey string `mapstructure:"LICENSE_KEY"`
}

// bindEnv walks the struct's mapstructure tags and binds each to the
// environment so viper.AutomaticEnv doesn't need a prefix convention.
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
	slog.Info("environment variables bound", "config", c)
}

// LoadConfig reads configuration from the environment, applies defaults,
// and validates the result.
func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	viper.SetDefault("WORKER_COUNT", 2)
	viper.SetDefault("JOB_LEASE_SECONDS", 300)
	viper.SetDefault("JOB_MAX_ATTEMPTS", 5)
	viper.SetDefault("JOB_BACKOFF_BASE_SECONDS", 10)
	viper.SetDefault("PIPELINE_VERSION", 1)
	viper.SetDefault("SPRITE_EXTRA_FINE", false)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
