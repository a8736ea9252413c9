// Package executor provides single-threaded FIFO task queues. The collector
// runs two of them: a write queue serializing submission-pipeline work and
// an upload queue serializing the upload engine. Queues never share a call
// stack; they communicate only through messages and the durable store.
package executor

import (
	"log"
	"sync"
)

// Queue is an unbounded FIFO task executor backed by a single goroutine.
// Tasks submitted from any goroutine run one at a time in submission order.
type Queue struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	done chan struct{}
}

// NewQueue creates a queue and starts its worker goroutine.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Do enqueues a task. Returns false if the queue is closed, in which case
// the task is dropped.
func (q *Queue) Do(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Printf("executor: %s queue closed, dropping task", q.name)
		return false
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return true
}

// DoSync enqueues a task and blocks until it has run. Must not be called
// from a task already running on this queue.
func (q *Queue) DoSync(task func()) bool {
	ran := make(chan struct{})
	ok := q.Do(func() {
		defer close(ran)
		task()
	})
	if !ok {
		return false
	}
	<-ran
	return true
}

// Close stops accepting tasks, drains the queue, and waits for the worker
// to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}
