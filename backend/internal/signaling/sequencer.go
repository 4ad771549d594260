package signaling

import (
	"hash/fnv"
	"sync"
)

// Sequencer runs tasks on a fixed set of worker goroutines. Tasks submitted
// with the same key always land on the same worker and run in submission
// order, which makes every room a single-writer queue.
type Sequencer struct {
	queues []chan func()
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSequencer creates a sequencer with the given number of workers, each
// buffering up to queueSize pending tasks.
func NewSequencer(workers, queueSize int) *Sequencer {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	s := &Sequencer{queues: make([]chan func(), workers)}
	for i := range s.queues {
		s.queues[i] = make(chan func(), queueSize)
	}
	return s
}

// Start launches the workers.
func (s *Sequencer) Start() {
	for _, q := range s.queues {
		s.wg.Add(1)
		go func(q chan func()) {
			defer s.wg.Done()
			for task := range q {
				task()
			}
		}(q)
	}
}

// Do queues task behind every earlier task with the same key. It blocks
// while that worker's queue is full. Do must not be called after Stop.
func (s *Sequencer) Do(key string, task func()) {
	s.queues[s.shard(key)] <- task
}

// Stop drains the queued tasks and waits for the workers to exit.
func (s *Sequencer) Stop() {
	s.once.Do(func() {
		for _, q := range s.queues {
			close(q)
		}
	})
	s.wg.Wait()
}

func (s *Sequencer) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.queues)))
}
