package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/helpdesk-relay/internal/store/rabbitmq"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second
)

// RetryPublisher parks a job on the retry queue; it comes back to the main
// queue once delay has passed.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, jobID string, attempt int, delay time.Duration) error
}

// Worker consumes job ids from RabbitMQ and processes them with a fixed-size
// goroutine pool.
type Worker struct {
	svc         *Service
	ch          *amqp.Channel
	retry       RetryPublisher
	queue       string
	concurrency int
}

func NewWorker(svc *Service, ch *amqp.Channel, retry RetryPublisher, queue string, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Worker{svc: svc, ch: ch, retry: retry, queue: queue, concurrency: concurrency}
}

// Run blocks until ctx is cancelled or the delivery channel closes. Cancelling
// ctx stops intake only; jobs already taken off the queue run to completion.
func (w *Worker) Run(ctx context.Context) error {
	if err := rabbitmq.DeclareTopology(w.ch, w.queue); err != nil {
		return err
	}

	// strict concurrency control
	if err := w.ch.Qos(w.concurrency, 0, false); err != nil {
		return err
	}

	msgs, err := w.ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("worker started, queue=%s concurrency=%d", w.queue, w.concurrency)
	return w.serve(ctx, msgs)
}

func (w *Worker) serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
	jobs := make(chan amqp.Delivery, w.concurrency*2)
	procCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				w.handle(procCtx, workerID, d)
			}
		}(i)
	}

	drain := func() {
		close(jobs)
		wg.Wait()
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			drain()
			return nil

		case d, ok := <-msgs:
			if !ok {
				drain()
				return errors.New("delivery channel closed")
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				// not started; hand it back to the broker
				_ = d.Nack(false, true)
				log.Printf("worker shutting down")
				drain()
				return nil
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := w.svc.Process(ctx, m.JobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
		}
		return
	}

	attempt := retryCount(d.Headers)
	log.Printf("worker=%d job %s failed attempt=%d cost=%s err=%v", workerID, m.JobID, attempt, time.Since(start), err)

	if attempt < maxRetries && w.retry != nil {
		perr := w.retry.PublishRetry(ctx, m.JobID, attempt+1, retryDelay)
		if perr == nil {
			_ = d.Ack(false)
			return
		}
		log.Printf("worker=%d retry publish failed job=%s err=%v", workerID, m.JobID, perr)
	}

	// out of retries: dead-letter and settle the row so polling resolves
	if ferr := w.svc.Fail(ctx, m.JobID, err.Error()); ferr != nil {
		log.Printf("worker=%d mark failed job=%s err=%v", workerID, m.JobID, ferr)
	}
	_ = d.Nack(false, false)
}

func retryCount(h amqp.Table) int {
	switch v := h[rabbitmq.RetryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}
