package fundkrawler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/thagki9/fundkrawler/constant"
)

// Engine wires a fetcher, a parser and a store around a scheduler and runs a
// single crawl.
type Engine struct {
	Config *Config

	fetcher  Fetcher
	store    Store
	parser   FuncParser
	registry *prometheus.Registry
	metrics  *Metrics
	now      func() time.Time
	stopped  bool
}

// ErrEngineStopped indicates Run was called on an engine whose fetcher and
// store have already been shut down. An engine runs a single crawl.
var ErrEngineStopped = errors.New("the engine has already run and is shut down")

// NewEngine returns an engine that still needs Initialize
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Initialize the engine with given config
func (e *Engine) Initialize(config *Config) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	e.Config = config
	config.checkConfig()

	e.registry = prometheus.NewRegistry()
	e.metrics = NewMetrics(e.registry)
}

// Registry returns the registry the crawl metrics are registered on
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// InstallFetcher replaces the HTTP fetcher built from the config
func (e *Engine) InstallFetcher(fetcher Fetcher) {
	if e.fetcher != nil {
		log.Fatal("a fetcher has already been added!")
	}

	e.fetcher = fetcher
}

// InstallStore replaces the store built from the config
func (e *Engine) InstallStore(store Store) {
	if e.store != nil {
		log.Fatal("a store has already been added!")
	}

	e.store = store
}

// InstallParser replaces ParseThemeRecords
func (e *Engine) InstallParser(parser FuncParser) {
	e.parser = parser
}

// Start runs one crawl and stops early on Ctrl-C
func (e *Engine) Start() (*Report, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chSigInt := make(chan os.Signal, 1)
	signal.Notify(chSigInt, os.Interrupt)
	defer signal.Reset(os.Interrupt)

	go func() {
		select {
		case <-chSigInt:
			log.Info("Receive Ctrl-C, start to shutdown")
			cancel()
		case <-ctx.Done():
		}
	}()

	return e.Run(ctx)
}

// Run performs one crawl under ctx. Abandoned variants are part of the
// report, not an error. The fetcher and store are shut down afterwards, so a
// second call returns ErrEngineStopped.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.Config == nil {
		return nil, errors.New("engine is not initialized")
	}
	if e.stopped {
		return nil, ErrEngineStopped
	}
	log.Infof("fundkrawler %s starts", constant.FundkrawlerVersion)

	if e.fetcher == nil {
		e.fetcher = NewHTTPFetcher(e.Config).WithMetrics(e.metrics)
	}
	log.Debugf("Use fetcher: %T", e.fetcher)

	if e.store == nil {
		store, err := NewStore(ctx, e.Config)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	log.Debugf("Use store: %T", e.store)

	stopMetrics := e.serveMetrics()
	defer stopMetrics()

	queue := e.Config.TaskTemplate().QueueFrom(e.Config.Scheduler.Variants, e.now())
	scheduler := NewScheduler(e.Config, queue, e.fetcher, e.store)
	scheduler.SetMetrics(e.metrics)
	if e.parser != nil {
		scheduler.SetParser(e.parser)
	}

	report := scheduler.Start(ctx)
	e.shutdownElegantly()

	for _, task := range report.Abandoned {
		log.WithField("run", report.RunID).Warnf("Variant %s was abandoned: %v", task.Variant.Label(), task.LastErr)
	}
	return report, nil
}

func (e *Engine) serveMetrics() func() {
	if e.Config.Metrics.Listen == "" {
		return func() {}
	}

	server := &http.Server{
		Addr:    e.Config.Metrics.Listen,
		Handler: promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server stopped, reason: %v", err)
		}
	}()
	log.Infof("Serve metrics on %s", e.Config.Metrics.Listen)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func (e *Engine) shutdownElegantly() {
	e.stopped = true
	e.fetcher.Shutdown()

	if err := e.store.Close(); err != nil {
		log.Errorf("Fail to close store, reason: %v", err)
	}
}
