package timer

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when scheduling on a stopped Scheduler
var ErrStopped = errors.New("scheduler is stopped")

// deadline is a callback due at a point in time
type deadline struct {
	key   string
	due   time.Time
	fire  func()
	index int // position in the heap, -1 once removed
}

// deadlineHeap is a min-heap of deadlines ordered by due time
type deadlineHeap []*deadline

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].due.Before(h[j].due)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x interface{}) {
	d := x.(*deadline)
	d.index = len(*h)
	*h = append(*h, d)
}

func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[:n-1]
	return d
}

// Scheduler runs keyed callbacks once their deadline passes. Scheduling a
// key that is already pending replaces it. Due callbacks are executed by a
// fixed pool of workers so a slow callback cannot stall the clock.
type Scheduler struct {
	mu      sync.Mutex
	heap    deadlineHeap
	byKey   map[string]*deadline
	wakeup  chan struct{}
	due     chan *deadline
	workers int
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewScheduler creates a scheduler with the given number of workers
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		heap:    make(deadlineHeap, 0),
		byKey:   make(map[string]*deadline),
		wakeup:  make(chan struct{}, 1),
		due:     make(chan *deadline, workers),
		workers: workers,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the clock loop and the workers
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.run()
}

// Stop halts the scheduler. Pending deadlines are discarded and Stop waits
// for running callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule arranges for fire to run at due
func (s *Scheduler) Schedule(key string, due time.Time, fire func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	if existing, ok := s.byKey[key]; ok {
		heap.Remove(&s.heap, existing.index)
	}

	d := &deadline{key: key, due: due, fire: fire}
	heap.Push(&s.heap, d)
	s.byKey[key] = d

	if s.heap[0] == d {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel drops a pending deadline. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, d.index)
	delete(s.byKey, key)
	return true
}

// Pending returns the number of deadlines not yet fired
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		wait := time.Hour
		if s.heap.Len() > 0 {
			next := s.heap[0]
			wait = next.due.Sub(s.now())
			if wait <= 0 {
				heap.Pop(&s.heap)
				delete(s.byKey, next.key)
				s.mu.Unlock()

				select {
				case s.due <- next:
				case <-s.stopCh:
					return
				}
				continue
			}
		}
		s.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-s.wakeup:
			t.Stop()
		case <-s.stopCh:
			t.Stop()
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case d := <-s.due:
			d.fire()
		case <-s.stopCh:
			return
		}
	}
}
