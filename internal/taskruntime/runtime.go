// Package taskruntime runs tasks through the run/get_priority/
// is_cancelled/apply_result lifecycle on a fixed pool of worker
// goroutines, with a single consumer goroutine draining results so
// per-volume callbacks never race against each other.
package taskruntime

import (
	"container/heap"
	"log"
	"runtime"
	"sync"

	"voxelcraft.ai/voxelblock/internal/streamdep"
)

// Task is the lifecycle every runnable task implements.
type Task = streamdep.Task

// Runtime is a process-wide worker pool. Construct with New, push tasks
// with PushAsyncTask, and call Close when shutting down; Close waits for
// in-flight work to drain.
type Runtime struct {
	log *log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskHeap
	closed   bool
	running  int64

	applyCh chan Task
	wg      sync.WaitGroup
}

// New starts nWorkers worker goroutines (nWorkers <= 0 defaults to
// runtime.GOMAXPROCS(0)) plus one apply goroutine.
func New(nWorkers int, logger *log.Logger) *Runtime {
	if nWorkers <= 0 {
		nWorkers = runtime.GOMAXPROCS(0)
	}
	rt := &Runtime{
		log:     logger,
		applyCh: make(chan Task, 256),
	}
	rt.cond = sync.NewCond(&rt.mu)

	rt.wg.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go rt.workerLoop()
	}

	rt.wg.Add(1)
	go rt.applyLoop()

	return rt
}

// PushAsyncTask enqueues a task for execution. The task's priority is
// computed immediately (matching the upstream scheduler's "compute
// priority at enqueue time" behavior) and used to order the queue.
func (rt *Runtime) PushAsyncTask(t Task) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return
	}
	heap.Push(&rt.queue, taskItem{task: t, priority: t.GetPriority()})
	rt.cond.Signal()
}

// RunningCount reports how many tasks are currently executing, for
// observability only.
func (rt *Runtime) RunningCount() int64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.running
}

func (rt *Runtime) workerLoop() {
	defer rt.wg.Done()
	for {
		t, ok := rt.dequeue()
		if !ok {
			return
		}
		if t.IsCancelled() {
			continue
		}

		rt.mu.Lock()
		rt.running++
		rt.mu.Unlock()

		t.Run()

		rt.mu.Lock()
		rt.running--
		rt.mu.Unlock()

		if d, ok := t.(streamdep.Delegator); ok {
			if next := d.Delegate(); next != nil {
				rt.PushAsyncTask(next)
				continue
			}
		}

		rt.applyCh <- t
	}
}

func (rt *Runtime) dequeue() (Task, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for len(rt.queue) == 0 && !rt.closed {
		rt.cond.Wait()
	}
	if len(rt.queue) == 0 {
		return nil, false
	}
	item := heap.Pop(&rt.queue).(taskItem)
	return item.task, true
}

func (rt *Runtime) applyLoop() {
	defer rt.wg.Done()
	for t := range rt.applyCh {
		t.ApplyResult()
	}
}

// Close stops accepting new tasks, wakes every blocked worker, waits for
// in-flight tasks to finish, then stops the apply goroutine.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	rt.closed = true
	rt.mu.Unlock()
	rt.cond.Broadcast()

	// Workers exit once the queue drains and closed is observed; wait for
	// them before closing applyCh so no in-flight Run() tries to send on
	// a closed channel.
	rt.waitWorkers()
	close(rt.applyCh)
}

func (rt *Runtime) waitWorkers() {
	// wg covers both workers and the apply goroutine; drain workers by
	// waiting for the queue to empty and closed to be set, which every
	// worker already checks in dequeue. We can't call rt.wg.Wait() here
	// directly because that would also block on the apply goroutine,
	// which we only close after this returns. So: spin a tiny handoff.
	done := make(chan struct{})
	go func() {
		// Each worker returns once dequeue reports !ok; logging any panic
		// recovery is out of scope here, tasks are expected not to panic.
		rt.wg.Wait()
		close(done)
	}()
	// Workers will return promptly since closed=true and queue is likely
	// empty; if tasks are still running, this simply waits for them.
	<-waitOrApplyDrain(done, rt.applyCh)
}

// waitOrApplyDrain drains applyCh concurrently with waiting for done, so
// a worker blocked trying to send its result to a full applyCh can still
// make progress while Close is waiting.
func waitOrApplyDrain(done chan struct{}, applyCh chan Task) chan struct{} {
	out := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				close(out)
				return
			case t, ok := <-applyCh:
				if !ok {
					close(out)
					return
				}
				t.ApplyResult()
			}
		}
	}()
	return out
}

type taskItem struct {
	task     Task
	priority int64
}

type taskHeap []taskItem

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(taskItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
