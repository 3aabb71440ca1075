// Package dispatcher runs independent tasks on a bounded worker pool and collects a tagged
// result per task. A failing or panicking task never affects the others.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/queue/memory"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Task is one unit of work identified by Key.
type Task[T any] struct {
	Key string
	Do  func(ctx context.Context) (T, error)
}

// Result is the tagged outcome of a Task: Err is nil on success.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

type job[T any] struct {
	index int
	task  Task[T]
}

// Dispatcher fans tasks out to a fixed number of workers.
type Dispatcher[T any] struct {
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given pool size.
func New[T any](workers int, logger *zap.Logger) *Dispatcher[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[T]{workers: workers, logger: logger}
}

// Run executes every task and blocks until all have finished. Results are returned in
// task order.
func (d *Dispatcher[T]) Run(ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	queue := memory.NewQueue[job[T]](len(tasks))
	for i, task := range tasks {
		// Capacity equals len(tasks), so this never blocks.
		if err := queue.Enqueue(context.Background(), job[T]{index: i, task: task}); err != nil {
			results[i] = Result[T]{Key: task.Key, Err: fmt.Errorf("enqueue: %w", err)}
		}
	}
	queue.Close()

	workers := min(d.workers, len(tasks))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, queue, results)
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher[T]) work(ctx context.Context, queue *memory.Queue[job[T]], results []Result[T]) {
	for {
		// Draining ignores ctx so every task gets a result; tasks observe ctx themselves.
		j, err := queue.Dequeue(context.Background())
		if errors.Is(err, memory.ErrClosed) {
			return
		}
		if err != nil {
			d.logger.Error("dequeue failed", zap.Error(err))
			return
		}
		results[j.index] = d.execute(ctx, j.task)
	}
}

func (d *Dispatcher[T]) execute(ctx context.Context, task Task[T]) (result Result[T]) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	result.Key = task.Key
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", zap.String("task", task.Key), zap.Any("panic", r))
			result.Err = fmt.Errorf("task %s panicked: %v", task.Key, r)
		}
	}()
	value, err := task.Do(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	result.Value = value
	return result
}
