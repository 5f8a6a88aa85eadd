// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jcodagnone/addrcheck/cache"
	"github.com/jcodagnone/addrcheck/orchestrator"
	"github.com/jcodagnone/addrcheck/provider"
	"github.com/jcodagnone/addrcheck/server"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Host      string `validate:"required"`
	Port      int    `validate:"min=1,max=65535"`
	APIToken  string
	APIDomain string

	GeoServices []provider.Name `validate:"min=1,dive,oneof=google-maps geocodio azure-maps google-validation"`
	APIKeys     map[provider.Name]string

	ServiceTimeout time.Duration `validate:"gt=0"`
	CacheMaxSize   int           `validate:"min=1"`
	CacheTTL       time.Duration `validate:"gt=0"`

	Debug              bool
	GoogleADC          bool
	GoogleCloudProject string

	RatePerMinute int `validate:"min=0"`
	RatePerSecond int `validate:"min=0"`
}

// keyVariables names the credential variable of each provider.
var keyVariables = map[provider.Name]string{
	provider.GoogleMaps:       "GOOGLE_MAPS_API_KEY",
	provider.Geocodio:         "GEOCODIO_API_KEY",
	provider.AzureMaps:        "AZURE_MAPS_API_KEY",
	provider.GoogleValidation: "GOOGLE_VALIDATION_API_KEY",
}

var errInvalidConfig = errors.New("invalid configuration")

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 3000)
	v.SetDefault("API_DOMAIN", "http://localhost:3000")
	v.SetDefault("GEO_SERVICES", string(provider.GoogleMaps))
	v.SetDefault("ADDRESS_SERVICE_TIMEOUT", provider.DefaultTimeout.Milliseconds())
	v.SetDefault("CACHE_MAX_SIZE", cache.DefaultMaxSize)
	v.SetDefault("CACHE_TTL_MS", cache.DefaultTTL.Milliseconds())
	v.SetDefault("DEBUG", false)
	v.SetDefault("GOOGLE_ADC", false)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 5)

	return v
}

// loadConfig reads and validates the configuration. Provider credentials
// are checked unless a Google ADC lookup may still provide them.
func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:               v.GetString("HOST"),
		Port:               v.GetInt("PORT"),
		APIToken:           v.GetString("API_TOKEN"),
		APIDomain:          v.GetString("API_DOMAIN"),
		ServiceTimeout:     time.Duration(v.GetInt64("ADDRESS_SERVICE_TIMEOUT")) * time.Millisecond,
		CacheMaxSize:       v.GetInt("CACHE_MAX_SIZE"),
		CacheTTL:           time.Duration(v.GetInt64("CACHE_TTL_MS")) * time.Millisecond,
		Debug:              v.GetBool("DEBUG"),
		GoogleADC:          v.GetBool("GOOGLE_ADC"),
		GoogleCloudProject: v.GetString("GOOGLE_CLOUD_PROJECT"),
		RatePerMinute:      v.GetInt("RATE_LIMIT_PER_MINUTE"),
		RatePerSecond:      v.GetInt("RATE_LIMIT_PER_SECOND"),
		APIKeys:            make(map[provider.Name]string, len(keyVariables)),
	}

	for _, s := range strings.Split(v.GetString("GEO_SERVICES"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.GeoServices = append(cfg.GeoServices, provider.Name(s))
		}
	}

	for name, variable := range keyVariables {
		cfg.APIKeys[name] = strings.TrimSpace(v.GetString(variable))
	}

	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidConfig, err)
	}

	if err := cfg.checkCredentials(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isGoogle(name provider.Name) bool {
	return name == provider.GoogleMaps || name == provider.GoogleValidation
}

func (c *Config) checkCredentials() error {
	var errs []error

	for _, name := range c.GeoServices {
		if c.APIKeys[name] != "" || (c.GoogleADC && isGoogle(name)) {
			continue
		}

		errs = append(errs, fmt.Errorf("%s is required when %s is in GEO_SERVICES", keyVariables[name], name))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// resolveADCKeys fills the missing Google credentials through Application
// Default Credentials.
func (c *Config) resolveADCKeys(ctx context.Context, logger *slog.Logger) error {
	if !c.GoogleADC {
		return nil
	}

	for _, name := range c.GeoServices {
		if !isGoogle(name) || c.APIKeys[name] != "" {
			continue
		}

		logger.InfoContext(ctx, "API key not set, retrieving it via ADC", "provider", name)

		key, err := provider.APIKeyFromADC(ctx, c.GoogleCloudProject, provider.DefaultKeyDisplayName)
		if err != nil {
			return fmt.Errorf("retrieving %s via ADC: %w", keyVariables[name], err)
		}

		c.APIKeys[name] = key
	}

	return nil
}

func userAgent() string {
	return fmt.Sprintf("addrcheck/%s (+https://github.com/jcodagnone/addrcheck)", Version)
}

// orchestratorConfig maps the configuration onto the provider set.
func (c *Config) orchestratorConfig(logger *slog.Logger, observer orchestrator.Observer) orchestrator.Config {
	pcfgs := make(map[provider.Name]provider.Config, len(c.GeoServices))

	for _, name := range c.GeoServices {
		pcfgs[name] = provider.Config{
			Timeout:   c.ServiceTimeout,
			APIKey:    c.APIKeys[name],
			UserAgent: userAgent(),
			Logger:    logger.With("provider", name),
			TraceBody: c.Debug,
		}
	}

	return orchestrator.Config{
		Providers:       c.GeoServices,
		ProviderConfigs: pcfgs,
		LogRawResponses: c.Debug,
		Logger:          logger,
		Observer:        observer,
	}
}

func (c *Config) cacheOptions(logger *slog.Logger) cache.Options {
	return cache.Options{
		MaxSize: c.CacheMaxSize,
		TTL:     c.CacheTTL,
		Logger:  logger,
	}
}

// buildPipeline creates the orchestrator and the cache in front of it.
func buildPipeline(ctx context.Context, cfg *Config, logger *slog.Logger, observer orchestrator.Observer) (*orchestrator.Orchestrator, *cache.Cache, error) {
	if err := cfg.resolveADCKeys(ctx, logger); err != nil {
		return nil, nil, err
	}

	orch, err := orchestrator.New(cfg.orchestratorConfig(logger, observer))
	if err != nil {
		return nil, nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return orch, cache.New(cfg.cacheOptions(logger)), nil
}

// frontValidator is what callers of the pipeline validate with. A single
// provider is called directly so that its timeout reaches the caller instead
// of being absorbed as unverifiable.
func frontValidator(orch *orchestrator.Orchestrator) server.Validator {
	if d, ok := orch.Direct(); ok {
		return d
	}

	return orch
}
