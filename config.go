/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cachekit

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyMemoryMaxEntries    = "memory.maxEntries"
	cfgKeyMemorySweepInterval = "memory.sweepInterval"
	cfgKeyMemoryDefaultTTL    = "memory.defaultTTL"
	cfgKeyRedisAddr           = "redis.addr"
	cfgKeyRedisPassword       = "redis.password"
	cfgKeyRedisDB             = "redis.db"
	cfgKeyRedisKeyPrefix      = "redis.keyPrefix"
	cfgKeyRedisSerializer     = "redis.serializer"
	cfgKeyRedisDialTimeout    = "redis.dialTimeout"
	cfgKeyRedisInitTimeout    = "redis.initTimeout"
)

// Supported value serializers for the Redis backend.
const (
	SerializerMsgpack = "msgpack"
	SerializerJSON    = "json"
)

// Default configuration values.
const (
	DefaultMemoryMaxEntries    = 10000
	DefaultMemorySweepInterval = time.Minute

	DefaultRedisAddr        = "127.0.0.1:6379"
	DefaultRedisKeyPrefix   = "cache"
	DefaultRedisDialTimeout = time.Second * 10
	DefaultRedisInitTimeout = time.Second * 10
)

// Config represents a set of configuration parameters for cache backends.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Memory is a configuration for the in-process backend (memcache package).
	Memory MemoryConfig `mapstructure:"memory" yaml:"memory" json:"memory"`

	// Redis is a configuration for the Redis backend (rediscache package).
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`

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

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		Memory: MemoryConfig{
			MaxEntries:    DefaultMemoryMaxEntries,
			SweepInterval: config.TimeDuration(DefaultMemorySweepInterval),
		},
		Redis: RedisConfig{
			Addr:        DefaultRedisAddr,
			KeyPrefix:   DefaultRedisKeyPrefix,
			Serializer:  SerializerMsgpack,
			DialTimeout: config.TimeDuration(DefaultRedisDialTimeout),
			InitTimeout: config.TimeDuration(DefaultRedisInitTimeout),
		},
	}
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
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMemoryMaxEntries, DefaultMemoryMaxEntries)
	dp.SetDefault(cfgKeyMemorySweepInterval, DefaultMemorySweepInterval.String())
	dp.SetDefault(cfgKeyRedisAddr, DefaultRedisAddr)
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultRedisKeyPrefix)
	dp.SetDefault(cfgKeyRedisSerializer, SerializerMsgpack)
	dp.SetDefault(cfgKeyRedisDialTimeout, DefaultRedisDialTimeout.String())
	dp.SetDefault(cfgKeyRedisInitTimeout, DefaultRedisInitTimeout.String())
}

// Set sets configuration values from config.DataProvider.
// Values are read per key so that the defaults registered in
// SetProviderDefaults are picked up for keys absent from the source.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Memory.MaxEntries, err = dp.GetInt(cfgKeyMemoryMaxEntries); err != nil {
		return err
	}
	var d time.Duration
	if d, err = dp.GetDuration(cfgKeyMemorySweepInterval); err != nil {
		return err
	}
	c.Memory.SweepInterval = config.TimeDuration(d)
	if d, err = dp.GetDuration(cfgKeyMemoryDefaultTTL); err != nil {
		return err
	}
	c.Memory.DefaultTTL = config.TimeDuration(d)

	if c.Redis.Addr, err = dp.GetString(cfgKeyRedisAddr); err != nil {
		return err
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix); err != nil {
		return err
	}
	if c.Redis.Serializer, err = dp.GetString(cfgKeyRedisSerializer); err != nil {
		return err
	}
	if d, err = dp.GetDuration(cfgKeyRedisDialTimeout); err != nil {
		return err
	}
	c.Redis.DialTimeout = config.TimeDuration(d)
	if d, err = dp.GetDuration(cfgKeyRedisInitTimeout); err != nil {
		return err
	}
	c.Redis.InitTimeout = config.TimeDuration(d)

	return c.Validate()
}

// Validate validates configuration.
func (c *Config) Validate() error {
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("validate memory cache config: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("validate redis cache config: %w", err)
	}
	return nil
}

// MemoryConfig represents a configuration for the in-process cache backend.
type MemoryConfig struct {
	// MaxEntries is the maximum number of entries the backend holds.
	// When the limit is reached, the least recently used entry is evicted.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	// SweepInterval bounds how often expired entries are swept out.
	// The sweep runs opportunistically on writes; zero disables it
	// (expired entries are then removed only lazily on reads).
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`

	// DefaultTTL is applied to entries stored without an explicit TTL.
	// Zero means such entries never expire by time.
	DefaultTTL config.TimeDuration `mapstructure:"defaultTTL" yaml:"defaultTTL" json:"defaultTTL"`
}

// Validate validates configuration of the in-process cache backend.
func (c *MemoryConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max entries should be positive, got %d", c.MaxEntries)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval should be >= 0, got %s", time.Duration(c.SweepInterval))
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("default TTL should be >= 0, got %s", time.Duration(c.DefaultTTL))
	}
	return nil
}

// RedisConfig represents a configuration for the Redis cache backend.
type RedisConfig struct {
	// Addr is a host:port address of the Redis server.
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`

	Password string `mapstructure:"password" yaml:"password" json:"password"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`

	// KeyPrefix namespaces all keys the backend stores.
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`

	// Serializer selects the value encoding, "msgpack" or "json".
	Serializer string `mapstructure:"serializer" yaml:"serializer" json:"serializer"`

	DialTimeout config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`

	// InitTimeout limits the connectivity probe done by Initialize,
	// including retries.
	InitTimeout config.TimeDuration `mapstructure:"initTimeout" yaml:"initTimeout" json:"initTimeout"`
}

// Validate validates configuration of the Redis cache backend.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is missing")
	}
	if c.Serializer != "" && c.Serializer != SerializerMsgpack && c.Serializer != SerializerJSON {
		return fmt.Errorf("unsupported serializer %q", c.Serializer)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial timeout should be >= 0, got %s", time.Duration(c.DialTimeout))
	}
	if c.InitTimeout < 0 {
		return fmt.Errorf("init timeout should be >= 0, got %s", time.Duration(c.InitTimeout))
	}
	return nil
}
