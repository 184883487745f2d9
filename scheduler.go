package fundkrawler

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Scheduler drives the tasks of one run through the fetcher, the parser and
// the store. A task is dispatched at most maxRetryTimes times; a task that
// keeps failing is abandoned and reported, never escalated.
//
// Every state change happens on the goroutine running Start, so the
// scheduler needs no lock. Fetch results come back over a single channel.
type Scheduler struct {
	runID               uuid.UUID
	queue               *TaskQueue
	fetcher             Fetcher
	parser              FuncParser
	store               Store
	metrics             *Metrics
	maxRetryTimes       int
	retryOnParseFailure bool

	results  chan *FetchResult
	inFlight int
}

// Report summarises a finished run.
type Report struct {
	RunID       uuid.UUID
	Done        []*Task
	Abandoned   []*Task
	Unfinished  []*Task
	Interrupted bool
}

// NewScheduler creates a scheduler for the tasks of queue
func NewScheduler(config *Config, queue *TaskQueue, fetcher Fetcher, store Store) *Scheduler {
	return &Scheduler{
		runID:               uuid.New(),
		queue:               queue,
		fetcher:             fetcher,
		parser:              ParseThemeRecords,
		store:               store,
		maxRetryTimes:       config.Request.MaxRetryTimes,
		retryOnParseFailure: config.Request.RetryOnParseFailure,
	}
}

// SetParser replaces ParseThemeRecords
func (s *Scheduler) SetParser(parser FuncParser) {
	s.parser = parser
}

// SetMetrics makes the scheduler count attempts and outcomes
func (s *Scheduler) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

// RunID returns the identifier attached to every log entry of the run
func (s *Scheduler) RunID() uuid.UUID {
	return s.runID
}

// Start schedules every queued task once, then handles fetch results until
// no attempt is in flight or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) *Report {
	tasks := s.queue.List()
	log.WithField("run", s.runID).Infof("Scheduler starts with %d tasks", len(tasks))

	// a task has at most one attempt in flight, so fetchers never block on
	// sending a result
	capacity := len(tasks)
	if capacity == 0 {
		capacity = 1
	}
	s.results = make(chan *FetchResult, capacity)

	for _, task := range tasks {
		s.schedule(ctx, task)
	}

	interrupted := false
	for s.inFlight > 0 && !interrupted {
		select {
		case result := <-s.results:
			s.inFlight--
			s.handleResult(ctx, result)
		case <-ctx.Done():
			log.WithField("run", s.runID).Warnf("Scheduler interrupted with %d attempts in flight", s.inFlight)
			interrupted = true
		}
	}

	report := s.report(interrupted)
	log.WithField("run", s.runID).Infof("Scheduler stops: %d done, %d abandoned, %d unfinished",
		len(report.Done), len(report.Abandoned), len(report.Unfinished))
	return report
}

// schedule dispatches task if it is still pending and has attempts left.
// It returns whether the task was handed to the fetcher.
func (s *Scheduler) schedule(ctx context.Context, task *Task) bool {
	if task.State != TaskPending {
		return false
	}
	if task.Attempts >= s.maxRetryTimes {
		return false
	}

	task.Attempts++
	task.State = TaskInFlight
	s.inFlight++
	s.metrics.observeAttempt(task.Variant)

	s.taskLogger(task).Infof("Schedule task %s, try times = %d", task, task.Attempts)
	s.fetcher.Fetch(ctx, task, s.results)
	return true
}

func (s *Scheduler) handleResult(ctx context.Context, result *FetchResult) {
	task := result.Task
	logger := s.taskLogger(task)

	if result.Err != nil {
		logger.Errorf("Fetch task %s failed, reason: %v", task, result.Err)
		s.retry(ctx, task, result.Err)
		return
	}
	logger.WithField("result", "success").Infof("Succeed to crawl %s", task.URL)

	records, err := s.parser(result.Body)
	if err != nil {
		logger.WithField("content_type", result.Headers.Get("Content-Type")).
			Errorf("Parse task %s failed, reason: %v", task, err)
		if s.retryOnParseFailure {
			s.retry(ctx, task, err)
		} else {
			s.abandon(task, err)
		}
		return
	}

	if err = s.store.Write(ctx, task.StorePath, records); err != nil {
		logger.Errorf("Store %d records to %s failed, reason: %v", len(records), task.StorePath, err)
		s.abandon(task, err)
		return
	}

	task.State = TaskDone
	task.LastErr = nil
	s.metrics.observeOutcome(task.Variant, OutcomeDone)
	logger.Infof("Stored %d records to %s", len(records), task.StorePath)
}

// retry puts task back to pending and schedules it again, abandoning it when
// the ceiling has been reached.
func (s *Scheduler) retry(ctx context.Context, task *Task, reason error) {
	task.State = TaskPending
	task.LastErr = reason
	if s.schedule(ctx, task) {
		s.metrics.observeOutcome(task.Variant, OutcomeRetry)
		return
	}
	s.abandon(task, reason)
}

func (s *Scheduler) abandon(task *Task, reason error) {
	task.State = TaskAbandoned
	task.LastErr = reason
	s.metrics.observeOutcome(task.Variant, OutcomeAbandoned)
	s.taskLogger(task).Errorf("Task %s is abandoned after %d attempts, last error: %v", task, task.Attempts, reason)
}

func (s *Scheduler) report(interrupted bool) *Report {
	report := &Report{RunID: s.runID, Interrupted: interrupted}
	for _, task := range s.queue.List() {
		switch task.State {
		case TaskDone:
			report.Done = append(report.Done, task)
		case TaskAbandoned:
			report.Abandoned = append(report.Abandoned, task)
		default:
			report.Unfinished = append(report.Unfinished, task)
		}
	}
	return report
}

func (s *Scheduler) taskLogger(task *Task) *log.Entry {
	return log.WithFields(log.Fields{
		"run":     s.runID,
		"variant": task.Variant.Label(),
		"attempt": task.Attempts,
	})
}
