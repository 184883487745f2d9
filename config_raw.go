package fundkrawler

import (
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/go-redis/redis"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// RawConfig defines the structure of a YAML config file.
type RawConfig struct {
	Logger    RawLoggerConfig    `yaml:"logger"`
	Request   RawRequestConfig   `yaml:"request"`
	Scheduler RawSchedulerConfig `yaml:"scheduler"`
	Store     RawStoreConfig     `yaml:"store"`
	Metrics   RawMetricsConfig   `yaml:"metrics"`
}

// RawLoggerConfig defines the structure of LoggerConfig
type RawLoggerConfig struct {
	Level    string `yaml:"level"`
	Console  bool   `yaml:"console"`
	FilePath string `yaml:"filepath"`
}

// RawRequestConfig defines the structure of RequestConfig. Durations are in
// milliseconds.
type RawRequestConfig struct {
	Endpoint            string `yaml:"endpoint"`
	Timeout             int    `yaml:"timeout"`
	RateGap             int    `yaml:"rateGap"`
	Concurrency         int    `yaml:"concurrency"`
	MaxRetryTimes       int    `yaml:"maxRetryTimes"`
	UnwrapJSONP         bool   `yaml:"unwrapJSONP"`
	RetryOnParseFailure bool   `yaml:"retryOnParseFailure"`
}

// RawSchedulerConfig defines the structure of SchedulerConfig
type RawSchedulerConfig struct {
	Variants []string `yaml:"variants"`
}

// RawStoreConfig defines the structure of StoreConfig
type RawStoreConfig struct {
	Driver      string         `yaml:"driver"`
	Root        string         `yaml:"root"`
	Namespace   string         `yaml:"namespace"`
	Redis       RawRedisConfig `yaml:"redis"`
	PostgresDSN string         `yaml:"postgresDSN"`
}

// RawRedisConfig holds the redis connection settings of RedisStore
type RawRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RawMetricsConfig defines the structure of MetricsConfig
type RawMetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DumpYAML will dump raw config into YAML
func (c *RawConfig) DumpYAML(writer io.Writer) error {
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if _, err = writer.Write(content); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// ToConfig converts the raw values into a Config without fixing them.
func (c *RawConfig) ToConfig() (*Config, error) {
	level, err := log.ParseLevel(c.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logger level: %w", err)
	}

	variants := make([]Variant, 0, len(c.Scheduler.Variants))
	for _, variant := range c.Scheduler.Variants {
		variants = append(variants, Variant(variant))
	}

	return &Config{
		Logger: LoggerConfig{
			Level:    level,
			Console:  c.Logger.Console,
			FilePath: c.Logger.FilePath,
		},
		Request: RequestConfig{
			Endpoint:            c.Request.Endpoint,
			Timeout:             time.Duration(c.Request.Timeout) * time.Millisecond,
			RateGap:             time.Duration(c.Request.RateGap) * time.Millisecond,
			Concurrency:         c.Request.Concurrency,
			MaxRetryTimes:       c.Request.MaxRetryTimes,
			UnwrapJSONP:         c.Request.UnwrapJSONP,
			RetryOnParseFailure: c.Request.RetryOnParseFailure,
		},
		Scheduler: SchedulerConfig{
			Variants: variants,
		},
		Store: StoreConfig{
			Driver:    c.Store.Driver,
			Root:      c.Store.Root,
			Namespace: c.Store.Namespace,
			Redis: &redis.Options{
				Addr:     c.Store.Redis.Addr,
				Password: c.Store.Redis.Password,
				DB:       c.Store.Redis.DB,
			},
			PostgresDSN: c.Store.PostgresDSN,
		},
		Metrics: MetricsConfig{
			Listen: c.Metrics.Listen,
		},
	}, nil
}

// LoadConfig reads a YAML config. Keys missing from the file keep their
// default value.
func LoadConfig(reader io.Reader) (*Config, error) {
	content, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	raw := DefaultRawConfig
	raw.Scheduler.Variants = nil
	if err = yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if raw.Scheduler.Variants == nil {
		raw.Scheduler.Variants = append([]string(nil), DefaultRawConfig.Scheduler.Variants...)
	}

	return raw.ToConfig()
}

// DefaultRawConfig defines the default value of RawConfig.
var DefaultRawConfig = RawConfig{
	Logger: RawLoggerConfig{
		Level:    "info",
		Console:  true,
		FilePath: "",
	},
	Request: RawRequestConfig{
		Endpoint:            ThemeURITemplate,
		Timeout:             5000,
		RateGap:             1000,
		Concurrency:         1,
		MaxRetryTimes:       3,
		UnwrapJSONP:         true,
		RetryOnParseFailure: true,
	},
	Scheduler: RawSchedulerConfig{
		Variants: []string{string(VariantWeek)},
	},
	Store: RawStoreConfig{
		Driver:    StoreDriverFile,
		Root:      "data",
		Namespace: "themes",
		Redis: RawRedisConfig{
			Addr: "localhost:6379",
		},
	},
}
