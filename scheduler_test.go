package fundkrawler

import (
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestMain(m *testing.M) {
	log.SetOutput(ioutil.Discard)
	os.Exit(m.Run())
}

// stubFetcher answers synchronously; the scheduler's result buffer makes that
// safe.
type stubFetcher struct {
	mu      sync.Mutex
	calls   map[Variant]int
	order   []Variant
	respond func(task *Task, call int) *FetchResult
}

func newStubFetcher(respond func(task *Task, call int) *FetchResult) *stubFetcher {
	return &stubFetcher{calls: make(map[Variant]int), respond: respond}
}

func (f *stubFetcher) Fetch(_ context.Context, task *Task, results chan<- *FetchResult) {
	f.mu.Lock()
	f.calls[task.Variant]++
	f.order = append(f.order, task.Variant)
	call := f.calls[task.Variant]
	f.mu.Unlock()

	result := f.respond(task, call)
	result.Task = task
	results <- result
}

func (f *stubFetcher) Shutdown() {}

func (f *stubFetcher) callsOf(variant Variant) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[variant]
}

type memoryStore struct {
	mu     sync.Mutex
	writes map[string][][]*ThemeRecord
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{writes: make(map[string][][]*ThemeRecord)}
}

func (s *memoryStore) Write(_ context.Context, path string, records []*ThemeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes[path] = append(s.writes[path], records)
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, writes := range s.writes {
		count += len(writes)
	}
	return count
}

var errBoom = errors.New("connection reset")

func alwaysFail(*Task, int) *FetchResult {
	return &FetchResult{Err: errBoom}
}

func alwaysSucceed(*Task, int) *FetchResult {
	return &FetchResult{StatusCode: 200, Body: []byte(themeFixture)}
}

func newTestScheduler(variants []Variant, fetcher Fetcher, store Store) (*Scheduler, *TaskQueue) {
	queue := TaskQueueFrom(variants, fixtureNow)
	return NewScheduler(GetDefaultConfig(), queue, fetcher, store), queue
}

func TestSchedulerAbandonsAfterMaxRetryTimes(t *testing.T) {
	fetcher := newStubFetcher(alwaysFail)
	store := newMemoryStore()
	scheduler, queue := newTestScheduler([]Variant{VariantWeek}, fetcher, store)

	report := scheduler.Start(context.Background())

	task := queue.List()[0]
	if got := fetcher.callsOf(VariantWeek); got != 3 {
		t.Errorf("expected 3 dispatches, got %d", got)
	}
	if task.Attempts != 3 || task.State != TaskAbandoned {
		t.Errorf("expected abandoned after 3 attempts, got %s after %d", task.State, task.Attempts)
	}
	if !errors.Is(task.LastErr, errBoom) {
		t.Errorf("expected last error to be kept, got %v", task.LastErr)
	}
	if store.writeCount() != 0 {
		t.Errorf("abandoned task must not be stored")
	}
	if len(report.Abandoned) != 1 || len(report.Done) != 0 || len(report.Unfinished) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestSchedulerSucceedsOnSecondAttempt(t *testing.T) {
	fetcher := newStubFetcher(func(task *Task, call int) *FetchResult {
		if call == 1 {
			return &FetchResult{Err: ErrFetchTimeout}
		}
		return alwaysSucceed(task, call)
	})
	store := newMemoryStore()
	scheduler, queue := newTestScheduler([]Variant{VariantWeek}, fetcher, store)

	report := scheduler.Start(context.Background())

	task := queue.List()[0]
	if got := fetcher.callsOf(VariantWeek); got != 2 {
		t.Errorf("expected 2 dispatches, got %d", got)
	}
	if !task.Succeeded() || task.Attempts != 2 {
		t.Errorf("expected done after 2 attempts, got %s after %d", task.State, task.Attempts)
	}

	want, _ := ParseThemeRecords([]byte(themeFixture))
	writes := store.writes[task.StorePath]
	if len(writes) != 1 {
		t.Fatalf("expected one write to %s, got %d", task.StorePath, len(writes))
	}
	if !reflect.DeepEqual(writes[0], want) {
		t.Errorf("stored records differ from parser output")
	}
	if len(report.Done) != 1 || report.Done[0] != task {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestScheduleIsNoopAtCeiling(t *testing.T) {
	fetcher := newStubFetcher(alwaysFail)
	scheduler, queue := newTestScheduler([]Variant{VariantWeek}, fetcher, newMemoryStore())
	scheduler.Start(context.Background())

	task := queue.List()[0]
	task.State = TaskPending
	if scheduler.schedule(context.Background(), task) {
		t.Errorf("schedule dispatched a task that reached the ceiling")
	}
	if task.Attempts != 3 {
		t.Errorf("attempts changed to %d", task.Attempts)
	}
	if got := fetcher.callsOf(VariantWeek); got != 3 {
		t.Errorf("fetcher called %d times", got)
	}
}

func TestScheduleIgnoresFinishedAndInFlightTasks(t *testing.T) {
	fetcher := newStubFetcher(alwaysSucceed)
	scheduler, _ := newTestScheduler(nil, fetcher, newMemoryStore())

	for _, state := range []TaskState{TaskInFlight, TaskDone, TaskAbandoned} {
		task := DefaultTaskTemplate().NewTask(VariantWeek, fixtureNow)
		task.State = state
		if scheduler.schedule(context.Background(), task) {
			t.Errorf("schedule dispatched a %s task", state)
		}
		if task.Attempts != 0 {
			t.Errorf("%s task attempts changed to %d", state, task.Attempts)
		}
	}
	if got := fetcher.callsOf(VariantWeek); got != 0 {
		t.Errorf("fetcher called %d times", got)
	}
}

func TestSchedulerAttemptsIncreaseByOne(t *testing.T) {
	var seen []int
	fetcher := newStubFetcher(func(task *Task, call int) *FetchResult {
		seen = append(seen, task.Attempts)
		if task.State != TaskInFlight {
			t.Errorf("task dispatched while %s", task.State)
		}
		return &FetchResult{Err: errBoom}
	})
	scheduler, _ := newTestScheduler([]Variant{VariantWeek}, fetcher, newMemoryStore())

	scheduler.Start(context.Background())

	if !reflect.DeepEqual(seen, []int{1, 2, 3}) {
		t.Errorf("unexpected attempt sequence %v", seen)
	}
}

func TestSchedulerSeedsTasksInConfiguredOrder(t *testing.T) {
	fetcher := newStubFetcher(alwaysSucceed)
	variants := []Variant{VariantMonth, VariantWeek, VariantYear}
	scheduler, _ := newTestScheduler(variants, fetcher, newMemoryStore())

	report := scheduler.Start(context.Background())

	if !reflect.DeepEqual(fetcher.order, variants) {
		t.Errorf("expected dispatch order %v, got %v", variants, fetcher.order)
	}
	if len(report.Done) != 3 {
		t.Errorf("expected 3 done tasks, got %d", len(report.Done))
	}
}

func TestSchedulerParseFailurePolicy(t *testing.T) {
	badBody := func(*Task, int) *FetchResult {
		return &FetchResult{StatusCode: 200, Body: []byte("<html>rate limited</html>")}
	}

	t.Run("retry", func(t *testing.T) {
		fetcher := newStubFetcher(badBody)
		scheduler, queue := newTestScheduler([]Variant{VariantWeek}, fetcher, newMemoryStore())

		scheduler.Start(context.Background())

		task := queue.List()[0]
		if fetcher.callsOf(VariantWeek) != 3 || task.State != TaskAbandoned {
			t.Errorf("expected 3 attempts then abandonment, got %d and %s", fetcher.callsOf(VariantWeek), task.State)
		}
		if !errors.Is(task.LastErr, ErrMalformedPayload) {
			t.Errorf("unexpected last error %v", task.LastErr)
		}
	})

	t.Run("abandon", func(t *testing.T) {
		fetcher := newStubFetcher(badBody)
		config := GetDefaultConfig()
		config.Request.RetryOnParseFailure = false
		queue := TaskQueueFrom([]Variant{VariantWeek}, fixtureNow)
		scheduler := NewScheduler(config, queue, fetcher, newMemoryStore())

		scheduler.Start(context.Background())

		if fetcher.callsOf(VariantWeek) != 1 || queue.List()[0].State != TaskAbandoned {
			t.Errorf("expected a single attempt then abandonment")
		}
	})
}

func TestSchedulerLogsContentTypeOnParseFailure(t *testing.T) {
	level := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(level)
	hooks := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	defer log.StandardLogger().ReplaceHooks(hooks)
	hook := test.NewLocal(log.StandardLogger())

	fetcher := newStubFetcher(func(*Task, int) *FetchResult {
		return &FetchResult{
			StatusCode: 200,
			Headers:    http.Header{"Content-Type": {"text/html"}},
			Body:       []byte("<html>busy</html>"),
		}
	})
	config := GetDefaultConfig()
	config.Request.RetryOnParseFailure = false
	scheduler := NewScheduler(config, TaskQueueFrom([]Variant{VariantWeek}, fixtureNow), fetcher, newMemoryStore())

	scheduler.Start(context.Background())

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel && entry.Data["content_type"] == "text/html" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the parse failure to be logged with its content type")
	}
}

func TestSchedulerSizesResultsWhenStarted(t *testing.T) {
	fetcher := newStubFetcher(alwaysSucceed)
	queue := TaskQueueFrom([]Variant{VariantWeek}, fixtureNow)
	scheduler := NewScheduler(GetDefaultConfig(), queue, fetcher, newMemoryStore())

	template := DefaultTaskTemplate()
	queue.AddTask(template.NewTask(VariantMonth, fixtureNow))
	queue.AddTask(template.NewTask(VariantYear, fixtureNow))

	done := make(chan *Report, 1)
	go func() {
		done <- scheduler.Start(context.Background())
	}()

	select {
	case report := <-done:
		if len(report.Done) != 3 {
			t.Errorf("expected 3 done tasks, got %d", len(report.Done))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler blocked on tasks added after construction")
	}
}

func TestSchedulerStoreFailureAbandons(t *testing.T) {
	fetcher := newStubFetcher(alwaysSucceed)
	store := newMemoryStore()
	store.err = errors.New("disk full")
	scheduler, queue := newTestScheduler([]Variant{VariantWeek, VariantMonth}, fetcher, store)

	report := scheduler.Start(context.Background())

	for _, task := range queue.List() {
		if task.State != TaskAbandoned || task.Attempts != 1 {
			t.Errorf("%s: expected abandonment after 1 attempt, got %s after %d", task.Variant, task.State, task.Attempts)
		}
	}
	if len(report.Abandoned) != 2 {
		t.Errorf("expected 2 abandoned tasks, got %d", len(report.Abandoned))
	}
}

func TestSchedulerPartialCompletion(t *testing.T) {
	fetcher := newStubFetcher(func(task *Task, call int) *FetchResult {
		if task.Variant == VariantMonth {
			return &FetchResult{Err: errBoom}
		}
		return alwaysSucceed(task, call)
	})
	store := newMemoryStore()
	scheduler, _ := newTestScheduler([]Variant{VariantWeek, VariantMonth, VariantYear}, fetcher, store)

	report := scheduler.Start(context.Background())

	if len(report.Done) != 2 || len(report.Abandoned) != 1 || report.Abandoned[0].Variant != VariantMonth {
		t.Errorf("unexpected report: %d done, %d abandoned", len(report.Done), len(report.Abandoned))
	}
	if store.writeCount() != 2 {
		t.Errorf("expected 2 writes, got %d", store.writeCount())
	}
	if report.Interrupted {
		t.Errorf("run should not be interrupted")
	}
}

// silentFetcher never answers
type silentFetcher struct{}

func (silentFetcher) Fetch(context.Context, *Task, chan<- *FetchResult) {
}

func (silentFetcher) Shutdown() {
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	scheduler, _ := newTestScheduler([]Variant{VariantWeek}, silentFetcher{}, newMemoryStore())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report := scheduler.Start(ctx)

	if !report.Interrupted || len(report.Unfinished) != 1 {
		t.Errorf("expected an interrupted run with one unfinished task, got %+v", report)
	}
}

func TestSchedulerMetrics(t *testing.T) {
	fetcher := newStubFetcher(func(task *Task, call int) *FetchResult {
		if call == 1 {
			return &FetchResult{Err: errBoom}
		}
		return alwaysSucceed(task, call)
	})
	scheduler, _ := newTestScheduler([]Variant{VariantWeek}, fetcher, newMemoryStore())
	metrics := NewMetrics(prometheus.NewRegistry())
	scheduler.SetMetrics(metrics)

	scheduler.Start(context.Background())

	if got := testutil.ToFloat64(metrics.attempts.WithLabelValues("SYL_W")); got != 2 {
		t.Errorf("expected 2 attempts, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.outcomes.WithLabelValues("SYL_W", OutcomeRetry)); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.outcomes.WithLabelValues("SYL_W", OutcomeDone)); got != 1 {
		t.Errorf("expected 1 done, got %v", got)
	}
}
