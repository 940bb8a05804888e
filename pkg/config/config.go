package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ModeReject = "reject"
	ModeWait   = "wait"
)

// Bucket configures one token bucket.
type Bucket struct {
	Name         string        `yaml:"name" validate:"required"`
	Capacity     int64         `yaml:"capacity" validate:"gt=0"`
	RefillRate   int64         `yaml:"refill_rate" validate:"gt=0"`
	RefillPeriod time.Duration `yaml:"refill_period" validate:"gte=1ms"`
	Mode         string        `yaml:"mode" default:"reject" validate:"oneof=reject wait"`
	WaitTimeout  time.Duration `yaml:"wait_timeout" default:"30s" validate:"gte=0"` // 0: bounded by the request only
}

// UnmarshalYAML applies defaults before decoding so explicit zero values
// in the document are kept.
func (b *Bucket) UnmarshalYAML(node *yaml.Node) error {
	if err := defaults.Set(b); err != nil {
		return err
	}
	type plain Bucket
	return node.Decode((*plain)(b))
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Limits struct {
		Global Bucket   `yaml:"global"`
		Routes []Bucket `yaml:"routes" validate:"dive"`
	} `yaml:"limits"`
	Upstream struct {
		BaseURL string        `yaml:"base_url" validate:"required,url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"upstream"`
	Cache struct {
		TTL       time.Duration `yaml:"ttl" default:"30s"`
		MemoryTTL time.Duration `yaml:"memory_ttl" default:"5s"` // in-process layer in front of Redis; 0 disables
	} `yaml:"cache"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"rategate"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"rategate.admission"`
		LogsTopic    string   `yaml:"logs_topic" default:"rategate.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		LogCollector struct {
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Limits.Global.Name == "" {
		c.Limits.Global.Name = "global"
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("RATEGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RATEGATE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RATEGATE_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("RATEGATE_UPSTREAM_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("RATEGATE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("RATEGATE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("RATEGATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on '%s'", fe.Namespace(), fe.Tag())
		}
		return err
	}

	seen := map[string]bool{c.Limits.Global.Name: true}
	for _, r := range c.Limits.Routes {
		if seen[r.Name] {
			return fmt.Errorf("limits.routes: duplicate bucket name %q", r.Name)
		}
		seen[r.Name] = true
	}
	if wt := c.Server.WriteTimeout; wt > 0 {
		for _, b := range c.Buckets() {
			if b.Mode != ModeWait {
				continue
			}
			if b.WaitTimeout == 0 || b.WaitTimeout >= wt {
				return fmt.Errorf("limits: bucket %q wait_timeout %s must be set below server.write_timeout %s", b.Name, b.WaitTimeout, wt)
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// Route returns the route bucket config with the given name.
func (c *Config) Route(name string) (Bucket, bool) {
	for _, r := range c.Limits.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return Bucket{}, false
}

// Buckets returns the global bucket followed by the route buckets.
func (c *Config) Buckets() []Bucket {
	out := make([]Bucket, 0, len(c.Limits.Routes)+1)
	out = append(out, c.Limits.Global)
	return append(out, c.Limits.Routes...)
}
