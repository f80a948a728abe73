// Package startup implements the batch container-startup optimizer:
// when many containers must start together, a fixed-size worker pool
// drains a priority queue of tasks, honoring inter-task dependency
// edges, until every task is COMPLETED or FAILED. Workers share a mutex
// plus two condition variables (work_available, work_completed).
package startup

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Priority orders ready tasks within the queue; higher values are
// drained first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Service-name substrings driving [DerivePriority].
var (
	criticalSubstrings = []string{"db", "database", "postgres", "mysql", "redis"}
	highSubstrings     = []string{"api", "gateway", "auth", "core"}
	lowSubstrings      = []string{"monitor", "log", "metric", "debug"}
)

// DerivePriority classifies name by service-name heuristics: CRITICAL
// for database-like names, HIGH for api/gateway/auth/core, LOW for
// monitor/log/metric/debug, else NORMAL.
func DerivePriority(name string) Priority {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, criticalSubstrings):
		return PriorityCritical
	case containsAny(lower, highSubstrings):
		return PriorityHigh
	case containsAny(lower, lowSubstrings):
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// State is one task's position in the startup state machine.
type State int

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateCompleted
	StateFailed
)

// Task is one container-startup unit.
type Task struct {
	Name      string
	Priority  Priority
	DependsOn []string
	Run       func(ctx context.Context) error

	state  State
	err    error
	seq    int // insertion order, for stable ordering within a priority
}

// Result reports one task's terminal outcome.
type Result struct {
	Name  string
	State State
	Err   error
}

// Optimizer drains a fixed-size worker pool over a batch of tasks,
// respecting dependency edges and priority ordering.
type Optimizer struct {
	parallelLimit int

	mu            sync.Mutex
	workAvailable *sync.Cond
	workCompleted *sync.Cond

	tasks   map[string]*Task
	pending int
	order   []string // insertion order, to drive DerivePriority ties deterministically.
}

// DefaultParallelLimit is the default worker count.
const DefaultParallelLimit = 4

// New returns an Optimizer with parallelLimit workers. A limit <= 0 uses
// [DefaultParallelLimit].
func New(parallelLimit int) *Optimizer {
	if parallelLimit <= 0 {
		parallelLimit = DefaultParallelLimit
	}
	o := &Optimizer{parallelLimit: parallelLimit, tasks: map[string]*Task{}}
	o.workAvailable = sync.NewCond(&o.mu)
	o.workCompleted = sync.NewCond(&o.mu)
	return o
}

// Run executes every task in tasks to completion (or failure),
// respecting each task's DependsOn edges, and returns one [Result] per
// task in the order they finished. Run blocks until every task reaches a
// terminal state or ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context, tasks []*Task) ([]Result, error) {
	o.mu.Lock()
	for i, t := range tasks {
		t.state = StatePending
		t.seq = i
		o.tasks[t.Name] = t
		o.order = append(o.order, t.Name)
	}
	o.pending = len(tasks)
	o.mu.Unlock()

	var (
		resultsMu sync.Mutex
		results   []Result
	)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		o.mu.Lock()
		o.workAvailable.Broadcast()
		o.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.parallelLimit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, depFailed := o.nextReadyTask(ctx)
				if task == nil {
					return
				}

				var err error
				if depFailed {
					err = cheferr.Wrapf(cheferr.ErrInternal, "dependency of %s failed", task.Name)
				} else {
					err = task.Run(ctx)
				}

				o.mu.Lock()
				if err != nil {
					task.state = StateFailed
					task.err = err
				} else {
					task.state = StateCompleted
				}
				o.pending--
				o.workCompleted.Broadcast()
				o.workAvailable.Broadcast()
				o.mu.Unlock()

				resultsMu.Lock()
				results = append(results, Result{Name: task.Name, State: task.state, Err: task.err})
				resultsMu.Unlock()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	<-done

	if ctx.Err() != nil {
		return results, cheferr.Wrap(cheferr.ErrInternal, ctx.Err())
	}
	return results, nil
}

// nextReadyTask blocks until a READY task is available, the batch is
// exhausted, or ctx is cancelled: the "workers block on work_available"
// suspension point. depFailed reports that the returned task cannot run
// because one of its dependencies failed; the worker marks it failed
// without invoking Run.
func (o *Optimizer) nextReadyTask(ctx context.Context) (task *Task, depFailed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for {
		if o.pending == 0 {
			return nil, false
		}
		if ctx.Err() != nil {
			return nil, false
		}

		if task, depFailed := o.pickReady(); task != nil {
			task.state = StateRunning
			return task, depFailed
		}

		o.workAvailable.Wait()
	}
}

// pickReady scans for a task whose dependencies are all COMPLETED,
// preferring the highest priority and, among ties, earliest insertion
// order. A pending task with a failed dependency is returned immediately
// with depFailed set, so failure propagates instead of deadlocking the
// pool. Must be called with o.mu held.
func (o *Optimizer) pickReady() (*Task, bool) {
	var candidates []*Task
	for _, name := range o.order {
		t := o.tasks[name]
		if t.state != StatePending {
			continue
		}
		switch o.dependencyState(t) {
		case depStateFailed:
			return t, true
		case depStateMet:
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].seq < candidates[j].seq
	})
	return candidates[0], false
}

type depState int

const (
	depStateMet depState = iota
	depStateWaiting
	depStateFailed
)

func (o *Optimizer) dependencyState(t *Task) depState {
	state := depStateMet
	for _, dep := range t.DependsOn {
		d, ok := o.tasks[dep]
		if !ok || d.state == StateFailed {
			return depStateFailed
		}
		if d.state != StateCompleted {
			state = depStateWaiting
		}
	}
	return state
}
