package fundkrawler

import (
	"io/ioutil"
	"time"

	"github.com/go-redis/redis"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
)

// Config is the typed form of RawConfig.
type Config struct {
	Logger    LoggerConfig
	Request   RequestConfig
	Scheduler SchedulerConfig
	Store     StoreConfig
	Metrics   MetricsConfig
}

// LoggerConfig defines the structure of LoggerConfig
type LoggerConfig struct {
	Level    log.Level
	Console  bool
	FilePath string
}

// RequestConfig defines the structure of RequestConfig
type RequestConfig struct {
	Endpoint            string
	Timeout             time.Duration
	RateGap             time.Duration
	Concurrency         int
	MaxRetryTimes       int
	UnwrapJSONP         bool
	RetryOnParseFailure bool
}

// SchedulerConfig lists the variants crawled in one run, in dispatch order.
type SchedulerConfig struct {
	Variants []Variant
}

// StoreConfig selects and configures the store
type StoreConfig struct {
	Driver      string
	Root        string
	Namespace   string
	Redis       *redis.Options
	PostgresDSN string
}

// MetricsConfig configures the prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string
}

// GetDefaultConfig returns the configuration used when no file is given.
func GetDefaultConfig() *Config {
	config, err := DefaultRawConfig.ToConfig()
	if err != nil {
		// DefaultRawConfig is a literal, a failure here is a programming error
		panic(err)
	}
	return config
}

// defaultConfig defines the default value of Config.
var defaultConfig = GetDefaultConfig()

// checkConfig check and fix the config if necessary
func (config *Config) checkConfig() {
	log.SetLevel(config.Logger.Level)

	if !config.Logger.Console {
		log.SetOutput(ioutil.Discard)
	}

	if config.Logger.FilePath != "" {
		fileHook := lfshook.NewHook(config.Logger.FilePath, log.StandardLogger().Formatter)
		log.AddHook(fileHook)
	}

	if config.Request.Endpoint == "" {
		log.Warnf("Empty request endpoint, set to default value %s", defaultConfig.Request.Endpoint)
		config.Request.Endpoint = defaultConfig.Request.Endpoint
	}

	if config.Request.Timeout <= 0 {
		log.Warnf("%v is invalid for request timeout configuration, set to default value %v", config.Request.Timeout, defaultConfig.Request.Timeout)
		config.Request.Timeout = defaultConfig.Request.Timeout
	}

	if config.Request.RateGap < 0 {
		log.Warnf("%v is invalid for request rate gap configuration, set to default value %v", config.Request.RateGap, defaultConfig.Request.RateGap)
		config.Request.RateGap = defaultConfig.Request.RateGap
	}

	if config.Request.Concurrency <= 0 {
		log.Warnf("%v is invalid for request concurrency configuration, set to default value %v", config.Request.Concurrency, defaultConfig.Request.Concurrency)
		config.Request.Concurrency = defaultConfig.Request.Concurrency
	}

	if config.Request.MaxRetryTimes <= 0 {
		log.Warnf("%v is invalid for max retry times configuration, set to default value %v", config.Request.MaxRetryTimes, defaultConfig.Request.MaxRetryTimes)
		config.Request.MaxRetryTimes = defaultConfig.Request.MaxRetryTimes
	}

	if len(config.Scheduler.Variants) == 0 {
		log.Warnf("No variant configured, set to default value %v", defaultConfig.Scheduler.Variants)
		config.Scheduler.Variants = append([]Variant(nil), defaultConfig.Scheduler.Variants...)
	}

	if config.Store.Driver == "" {
		config.Store.Driver = StoreDriverFile
	}
	if config.Store.Redis == nil {
		config.Store.Redis = &redis.Options{Addr: defaultConfig.Store.Redis.Addr}
	}
}

// TaskTemplate returns the default task template pointed at the configured
// endpoint.
func (config *Config) TaskTemplate() *TaskTemplate {
	template := DefaultTaskTemplate()
	if config.Request.Endpoint != "" {
		template.URI = config.Request.Endpoint
	}
	return template
}
