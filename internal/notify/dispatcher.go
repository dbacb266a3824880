package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrQueueFull is returned when a notice cannot be queued in time.
var ErrQueueFull = errors.New("notification queue full")

type dispatchJob struct {
	ownerID string
	notice  Notice
}

// Dispatcher hands notices to a slow Notifier (push) from a worker pool so
// callers never wait on the network.
type Dispatcher struct {
	next      Notifier
	workers   int
	jobQueue  chan dispatchJob
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	queueWait time.Duration
}

func NewDispatcher(next Notifier, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 5
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &Dispatcher{
		next:      next,
		workers:   workers,
		jobQueue:  make(chan dispatchJob, queueSize),
		stopChan:  make(chan struct{}),
		queueWait: 100 * time.Millisecond,
	}
	d.startWorkers()
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func (d *Dispatcher) processJob(job dispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.next.Notify(ctx, job.ownerID, job.notice); err != nil {
		log.Printf("Dispatcher: push failed for %s: %v", job.ownerID, err)
	}
}

// Notify queues the notice. It fails only when the queue stays full.
func (d *Dispatcher) Notify(_ context.Context, ownerID string, n Notice) error {
	select {
	case <-d.stopChan:
		return errors.New("dispatcher stopped")
	default:
	}

	select {
	case d.jobQueue <- dispatchJob{ownerID: ownerID, notice: n}:
		return nil
	case <-time.After(d.queueWait):
		log.Printf("Dispatcher: failed to queue notice for %s: queue full", ownerID)
		return ErrQueueFull
	}
}

// Stop ends the workers after their current job. Queued notices are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	d.wg.Wait()
}
