package fundkrawler

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// TaskQueue holds the tasks of one run in the order they were configured.
// AddTask and PopTask work on the same end of the queue. It is not safe for
// concurrent mutation.
type TaskQueue struct {
	tasks []*Task
}

// NewTaskQueue creates an empty queue
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// TaskQueueFrom builds one task per variant with the default template.
func TaskQueueFrom(variants []Variant, now time.Time) *TaskQueue {
	return DefaultTaskTemplate().QueueFrom(variants, now)
}

// QueueFrom builds one task per variant, keeping the order of variants. A
// variant listed twice only produces its first task.
func (tpl *TaskTemplate) QueueFrom(variants []Variant, now time.Time) *TaskQueue {
	queue := NewTaskQueue()
	visited := make(map[string]bool, len(variants))
	for _, variant := range variants {
		task := tpl.NewTask(variant, now)
		hashCode := task.HashCode()
		if visited[hashCode] {
			log.Warnf("Ignore duplicated task %s", task)
			continue
		}
		visited[hashCode] = true
		queue.AddTask(task)
	}
	return queue
}

// List returns the queued tasks in insertion order. The returned slice is a
// copy; the tasks themselves are shared.
func (q *TaskQueue) List() []*Task {
	tasks := make([]*Task, len(q.tasks))
	copy(tasks, q.tasks)
	return tasks
}

// AddTask pushes a task onto the queue
func (q *TaskQueue) AddTask(task *Task) {
	q.tasks = append(q.tasks, task)
}

// PopTask removes and returns the most recently added task, nil when empty.
func (q *TaskQueue) PopTask() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	last := len(q.tasks) - 1
	task := q.tasks[last]
	q.tasks[last] = nil
	q.tasks = q.tasks[:last]
	return task
}

// HasNext reports whether any task remains
func (q *TaskQueue) HasNext() bool {
	return len(q.tasks) > 0
}

// Len returns the amount of tasks in the queue.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}
