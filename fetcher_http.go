package fundkrawler

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPFetcher implements Fetcher over net/http. At most concurrency requests
// run at once and two request starts are at least rateGap apart.
type HTTPFetcher struct {
	client       *http.Client
	timeout      time.Duration
	unwrapJSONP  bool
	concurrency  int
	rateGap      time.Duration
	limiter      *rate.Limiter
	running      chan struct{}
	wg           sync.WaitGroup
	shuttingDown int32
	metrics      *Metrics
}

// NewHTTPFetcher returns a HTTP Fetcher object
func NewHTTPFetcher(config *Config) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      &http.Client{},
		timeout:     config.Request.Timeout,
		unwrapJSONP: config.Request.UnwrapJSONP,
	}
	f.setConcurrency(config.Request.Concurrency)
	f.setRateGap(config.Request.RateGap)
	return f
}

// WithClient replaces the underlying http client.
func (f *HTTPFetcher) WithClient(client *http.Client) *HTTPFetcher {
	f.client = client
	return f
}

// WithMetrics makes the fetcher observe request durations.
func (f *HTTPFetcher) WithMetrics(metrics *Metrics) *HTTPFetcher {
	f.metrics = metrics
	return f
}

func (f *HTTPFetcher) setConcurrency(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	f.running = make(chan struct{}, concurrency)
	f.concurrency = concurrency
}

func (f *HTTPFetcher) setRateGap(gap time.Duration) {
	f.rateGap = gap
	if gap <= 0 {
		f.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	f.limiter = rate.NewLimiter(rate.Every(gap), 1)
}

// Fetch queues the task behind the admission control and sends the result to
// results once the request is done.
func (f *HTTPFetcher) Fetch(ctx context.Context, task *Task, results chan<- *FetchResult) {
	if atomic.LoadInt32(&f.shuttingDown) == 1 {
		go deliver(ctx, results, &FetchResult{Task: task, Err: ErrFetcherShuttingDown})
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		deliver(ctx, results, f.admit(ctx, task))
	}()
}

func deliver(ctx context.Context, results chan<- *FetchResult, result *FetchResult) {
	select {
	case results <- result:
	case <-ctx.Done():
	}
}

func (f *HTTPFetcher) admit(ctx context.Context, task *Task) *FetchResult {
	select {
	case f.running <- struct{}{}:
	case <-ctx.Done():
		return &FetchResult{Task: task, Err: ctx.Err()}
	}
	defer func() { <-f.running }()

	if err := f.limiter.Wait(ctx); err != nil {
		return &FetchResult{Task: task, Err: fmt.Errorf("wait for rate limiter: %w", err)}
	}

	log.Debugf("Fetch task %s", task)
	result := f.doFetch(ctx, task)
	f.metrics.observeFetch(task.Variant, result.Duration)
	return result
}

func (f *HTTPFetcher) doFetch(ctx context.Context, task *Task) *FetchResult {
	startTime := time.Now()
	result := &FetchResult{Task: task}
	defer func() {
		result.Duration = time.Since(startTime)
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(ctx, task.Method, task.URL, nil)
	if err != nil {
		result.Err = fmt.Errorf("create request instance failed: %w", err)
		return result
	}
	request.Header = task.Headers.Clone()
	if request.Header == nil {
		request.Header = make(http.Header)
	}
	if host := request.Header.Get("Host"); host != "" {
		request.Host = host
		request.Header.Del("Host")
	}

	response, err := f.client.Do(request)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Err = ErrFetchTimeout
		} else {
			result.Err = fmt.Errorf("request failed: %w", err)
		}
		return result
	}
	defer response.Body.Close()

	result.StatusCode = response.StatusCode
	result.Headers = response.Header
	if response.StatusCode < 200 || response.StatusCode > 299 {
		result.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
		return result
	}

	body, err := readBody(response)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Err = ErrFetchTimeout
		} else {
			result.Err = fmt.Errorf("read body failed: %w", err)
		}
		return result
	}

	if f.unwrapJSONP {
		body = UnwrapJSONP(body)
	}
	result.Body = body
	return result
}

// readBody decodes the body according to Content-Encoding, which the
// transport leaves alone because Accept-Encoding is set explicitly.
func readBody(response *http.Response) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(response.Header.Get("Content-Encoding"))) {
	case "gzip":
		reader, err := gzip.NewReader(response.Body)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return ioutil.ReadAll(reader)
	case "deflate":
		raw, err := ioutil.ReadAll(response.Body)
		if err != nil {
			return nil, err
		}
		// servers disagree on whether deflate means zlib framed or raw
		var reader io.ReadCloser
		if reader, err = zlib.NewReader(bytes.NewReader(raw)); err != nil {
			reader = flate.NewReader(bytes.NewReader(raw))
		}
		defer reader.Close()
		return ioutil.ReadAll(reader)
	default:
		return ioutil.ReadAll(response.Body)
	}
}

// Shutdown waits for running fetches to return
func (f *HTTPFetcher) Shutdown() {
	atomic.StoreInt32(&f.shuttingDown, 1)
	f.wg.Wait()
}
