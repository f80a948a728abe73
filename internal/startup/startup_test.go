package startup

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDerivePriority(t *testing.T) {
	cases := map[string]Priority{
		"primary-db":    PriorityCritical,
		"postgres-main": PriorityCritical,
		"api-gateway":   PriorityHigh,
		"auth-service":  PriorityHigh,
		"log-shipper":   PriorityLow,
		"metrics-agent": PriorityLow,
		"worker":        PriorityNormal,
	}
	for name, want := range cases {
		if got := DerivePriority(name); got != want {
			t.Errorf("DerivePriority(%q) = %v, want %v", name, got, want)
		}
	}
}

// With parallel_limit=1, db/api/worker/monitor complete in priority
// order.
func TestRunSingleWorkerCompletesInPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	tasks := []*Task{
		{Name: "db", Priority: DerivePriority("db"), Run: record("db")},
		{Name: "api", Priority: DerivePriority("api"), Run: record("api")},
		{Name: "worker", Priority: DerivePriority("worker"), Run: record("worker")},
		{Name: "monitor", Priority: DerivePriority("monitor"), Run: record("monitor")},
	}

	o := New(1)
	if _, err := o.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"db", "api", "worker", "monitor"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunRespectsDependencies(t *testing.T) {
	var mu sync.Mutex
	var dbDone time.Time
	var apiStart time.Time

	tasks := []*Task{
		{Name: "db", Priority: PriorityCritical, Run: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			dbDone = time.Now()
			mu.Unlock()
			return nil
		}},
		{Name: "api", Priority: PriorityHigh, DependsOn: []string{"db"}, Run: func(context.Context) error {
			mu.Lock()
			apiStart = time.Now()
			mu.Unlock()
			return nil
		}},
	}

	o := New(4)
	if _, err := o.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if apiStart.Before(dbDone) {
		t.Fatalf("api started at %v before db completed at %v", apiStart, dbDone)
	}
}

// A failed dependency fails its dependents instead of leaving them
// pending forever.
func TestRunPropagatesDependencyFailure(t *testing.T) {
	ran := false
	tasks := []*Task{
		{Name: "db", Priority: PriorityCritical, Run: func(context.Context) error {
			return context.DeadlineExceeded
		}},
		{Name: "api", Priority: PriorityHigh, DependsOn: []string{"db"}, Run: func(context.Context) error {
			ran = true
			return nil
		}},
	}

	o := New(2)
	results, err := o.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Fatal("api ran despite db failing")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	for _, r := range results {
		if r.State != StateFailed {
			t.Errorf("task %s state = %v, want StateFailed", r.Name, r.State)
		}
	}
}

func TestRunReportsTaskFailure(t *testing.T) {
	boom := func(context.Context) error { return context.DeadlineExceeded }
	tasks := []*Task{{Name: "flaky", Run: boom}}

	o := New(2)
	results, err := o.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].State != StateFailed {
		t.Fatalf("expected one failed result, got %+v", results)
	}
}
