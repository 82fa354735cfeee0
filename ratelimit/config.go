/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

// Config represents a set of configuration parameters for rate limiting rules.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Rules contains the list of rules to evaluate for each request.
	// A request is limited if any rule reports it as limited.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {
}

// Set sets rate limiting configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := dp.Unmarshal(c, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	}); err != nil {
		return err
	}
	return c.Validate()
}

// Validate validates configuration.
func (c *Config) Validate() error {
	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("validate rule #%d: %w", i+1, err)
		}
	}
	return nil
}

// RuleList builds the immutable rules from the configuration.
func (c *Config) RuleList() []Rule {
	rules := make([]Rule, 0, len(c.Rules))
	for i := range c.Rules {
		rules = append(rules, c.Rules[i].Rule())
	}
	return rules
}

// RuleConfig represents configuration for a single rate limiting rule.
type RuleConfig struct {
	// RequestsPerWindow is the number of requests allowed within the window.
	RequestsPerWindow int `mapstructure:"requestsPerWindow" yaml:"requestsPerWindow" json:"requestsPerWindow"`

	// Window is the counting window, a whole number of seconds.
	Window config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`

	// Strategy determines how the counting key is derived from a request,
	// "ip", "user" or "combined". Empty means "ip".
	Strategy Strategy `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
}

// Validate validates configuration of the rule.
func (c *RuleConfig) Validate() error {
	if c.RequestsPerWindow < 1 {
		return fmt.Errorf("requests per window should be >= 1, got %d", c.RequestsPerWindow)
	}
	window := time.Duration(c.Window)
	if window < time.Second {
		return fmt.Errorf("window should be >= 1s, got %s", window)
	}
	if window%time.Second != 0 {
		return fmt.Errorf("window should be a whole number of seconds, got %s", window)
	}
	switch c.Strategy {
	case "", StrategyIP, StrategyUser, StrategyCombined:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	return nil
}

// Rule builds the immutable Rule from the configuration.
func (c *RuleConfig) Rule() Rule {
	strategy := c.Strategy
	if strategy == "" {
		strategy = StrategyIP
	}
	return Rule{
		RequestsPerWindow: c.RequestsPerWindow,
		Window:            time.Duration(c.Window),
		Strategy:          strategy,
	}
}
