package fundkrawler

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// FetchResult defines how a fetch attempt is reported back to the scheduler
type FetchResult struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Duration   time.Duration

	Err  error
	Task *Task
}

// Fetcher performs the network part of a task under its own admission control.
type Fetcher interface {
	// Fetch submits a task and returns immediately. Exactly one result is sent
	// to the channel for every call, unless ctx is cancelled first.
	Fetch(ctx context.Context, task *Task, results chan<- *FetchResult)

	// Shutdown stops admitting new tasks and waits for the running ones.
	Shutdown()
}

var (
	// ErrFetchTimeout indicates the fetch failed because of timeout
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrFetcherShuttingDown indicates the fetcher is currently shutting down
	// and no new task is allowed to be submitted
	ErrFetcherShuttingDown = errors.New("the fetcher is currently shutting down")

	// ErrUnexpectedStatus indicates the server answered with a non-2xx status
	ErrUnexpectedStatus = errors.New("unexpected status code")
)
