package taskruntime

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingTask struct {
	priority   int64
	cancelled  bool
	ran        atomic.Bool
	applied    atomic.Bool
	applyOrder *int64
	mu         *sync.Mutex
	order      *[]int
	id         int
}

func (t *countingTask) Run()            { t.ran.Store(true) }
func (t *countingTask) GetPriority() int64 { return t.priority }
func (t *countingTask) IsCancelled() bool  { return t.cancelled }
func (t *countingTask) ApplyResult() {
	t.applied.Store(true)
	if t.mu != nil {
		t.mu.Lock()
		*t.order = append(*t.order, t.id)
		t.mu.Unlock()
	}
}

func TestRuntimeRunsAndAppliesTask(t *testing.T) {
	rt := New(2, nil)
	defer rt.Close()

	task := &countingTask{priority: 1}
	rt.PushAsyncTask(task)

	deadline := time.Now().Add(2 * time.Second)
	for !task.applied.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !task.ran.Load() {
		t.Fatalf("expected task to run")
	}
	if !task.applied.Load() {
		t.Fatalf("expected task result to be applied")
	}
}

func TestRuntimeSkipsCancelledTask(t *testing.T) {
	rt := New(2, nil)
	defer rt.Close()

	task := &countingTask{priority: 1, cancelled: true}
	rt.PushAsyncTask(task)

	time.Sleep(50 * time.Millisecond)
	if task.ran.Load() {
		t.Fatalf("expected cancelled task to be skipped before Run")
	}
}

func TestRuntimeAppliesResultsOneAtATime(t *testing.T) {
	rt := New(4, nil)
	defer rt.Close()

	var mu sync.Mutex
	var order []int
	const n = 20
	tasks := make([]*countingTask, n)
	for i := 0; i < n; i++ {
		tasks[i] = &countingTask{priority: int64(n - i), mu: &mu, order: &order, id: i}
		rt.PushAsyncTask(tasks[i])
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		done := len(order) == n
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	got := len(order)
	mu.Unlock()
	if got != n {
		t.Fatalf("expected all %d tasks applied, got %d", n, got)
	}
}
