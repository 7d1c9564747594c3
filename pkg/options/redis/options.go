// Package redis provides Redis answer-cache configuration options.
package redis

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/courselab/course-qa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// redactedPassword is the placeholder used when printing passwords.
const redactedPassword = "[REDACTED]"

// Options defines configuration options for the Redis answer cache.
type Options struct {
	// Enabled toggles the answer cache. When false the service runs without
	// Redis entirely.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Password     string        `json:"-" mapstructure:"password"`
	Database     int           `json:"database" mapstructure:"database"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// TTL is how long cached answers stay valid.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Enabled:      false,
		Host:         "127.0.0.1",
		Port:         6379,
		Database:     0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TTL:          time.Hour,
		KeyPrefix:    "courseqa:answer:",
	}
}

// Addr returns the host:port address.
func (o *Options) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	password := ""
	if o.Password != "" {
		password = redactedPassword
	}
	return fmt.Sprintf("Redis{enabled=%t, host=%s, port=%d, password=%s, database=%d}",
		o.Enabled, o.Host, o.Port, password, o.Database)
}

// AddFlags adds flags for Redis options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"redis.enabled", o.Enabled, "Enable the Redis answer cache.")
	fs.StringVar(&o.Host, options.Join(prefixes...)+"redis.host", o.Host, "Redis host.")
	fs.IntVar(&o.Port, options.Join(prefixes...)+"redis.port", o.Port, "Redis port.")
	fs.StringVar(&o.Password, options.Join(prefixes...)+"redis.password", o.Password, "Redis password (DEPRECATED: use REDIS_PASSWORD env var instead).")
	fs.IntVar(&o.Database, options.Join(prefixes...)+"redis.database", o.Database, "Redis database.")
	fs.IntVar(&o.PoolSize, options.Join(prefixes...)+"redis.pool-size", o.PoolSize, "Redis connection pool size.")
	fs.DurationVar(&o.DialTimeout, options.Join(prefixes...)+"redis.dial-timeout", o.DialTimeout, "Redis dial timeout.")
	fs.DurationVar(&o.ReadTimeout, options.Join(prefixes...)+"redis.read-timeout", o.ReadTimeout, "Redis read timeout.")
	fs.DurationVar(&o.WriteTimeout, options.Join(prefixes...)+"redis.write-timeout", o.WriteTimeout, "Redis write timeout.")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"redis.ttl", o.TTL, "Cached answer time-to-live.")
	fs.StringVar(&o.KeyPrefix, options.Join(prefixes...)+"redis.key-prefix", o.KeyPrefix, "Cache key prefix.")
}

// Validate validates the Redis options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("redis.host cannot be empty"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port must be in (0, 65535]"))
	}
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must be positive"))
	}
	return errs
}

// Complete completes the Redis options with defaults.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	return nil
}
