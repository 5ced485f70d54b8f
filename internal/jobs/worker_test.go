package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/store/rabbitmq"
)

type recordingAck struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool // tag -> requeue
}

func newRecordingAck() *recordingAck {
	return &recordingAck{nacked: map[uint64]bool{}}
}

func (a *recordingAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *recordingAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *recordingAck) snapshot() ([]uint64, map[uint64]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	nacked := make(map[uint64]bool, len(a.nacked))
	for k, v := range a.nacked {
		nacked[k] = v
	}
	return append([]uint64(nil), a.acked...), nacked
}

type recordingRetry struct {
	mu       sync.Mutex
	attempts []int
	err      error
}

func (r *recordingRetry) PublishRetry(_ context.Context, _ string, attempt int, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.attempts = append(r.attempts, attempt)
	return nil
}

// gatedChat blocks every turn until release is closed.
type gatedChat struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedChat) Handle(ctx context.Context, _ chat.Request) chat.Outcome {
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return chat.Outcome{Status: http.StatusInternalServerError, Body: chat.ErrorBody{Error: err.Error()}}
	}
	reply := "late reply"
	return chat.Outcome{Status: http.StatusOK, Body: chat.ReplyBody{Reply: &reply}}
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, jobID string, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(rabbitmq.JobMessage{JobID: jobID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body, Headers: headers}
}

func TestWorker_ShutdownFinishesTakenJobs(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	handler := &gatedChat{entered: make(chan struct{}, 4), release: make(chan struct{})}
	svc := NewService(repo, &fakePublisher{}, nil, 0, handler)

	first, _, err := svc.Submit(context.Background(), "s1", "one", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, _, err := svc.Submit(context.Background(), "s2", "two", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ack := newRecordingAck()
	msgs := make(chan amqp.Delivery, 2)
	msgs <- delivery(t, ack, 1, first.ID, nil)
	msgs <- delivery(t, ack, 2, second.ID, nil)

	w := NewWorker(svc, nil, &recordingRetry{}, "chat_jobs", 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.serve(ctx, msgs) }()

	for i := 0; i < 2; i++ {
		select {
		case <-handler.entered:
		case <-time.After(5 * time.Second):
			t.Fatalf("jobs never reached the orchestrator")
		}
	}

	cancel()
	close(handler.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}

	acked, nacked := ack.snapshot()
	if len(acked) != 2 || len(nacked) != 0 {
		t.Fatalf("expected both deliveries acked, got acked=%v nacked=%v", acked, nacked)
	}
	for _, id := range []string{first.ID, second.ID} {
		j, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if j.Status != StatusSucceeded {
			t.Fatalf("job %s left in %s after shutdown", id, j.Status)
		}
	}
}

func TestWorker_FailedJobIsRetried(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), &fakePublisher{}, nil, 0, &fakeChat{})
	retry := &recordingRetry{}
	w := NewWorker(svc, nil, retry, "chat_jobs", 1)

	ack := newRecordingAck()
	w.handle(context.Background(), 0, delivery(t, ack, 7, "missing-job", amqp.Table{rabbitmq.RetryCountHeader: int32(1)}))

	acked, nacked := ack.snapshot()
	if len(acked) != 1 || len(nacked) != 0 {
		t.Fatalf("expected the original delivery acked after retry, got acked=%v nacked=%v", acked, nacked)
	}
	if len(retry.attempts) != 1 || retry.attempts[0] != 2 {
		t.Fatalf("expected retry attempt 2, got %v", retry.attempts)
	}
}

func TestWorker_ExhaustedRetriesDeadLetterAndFailJob(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	// an unencodable body makes Process return an error
	handler := &fakeChat{out: chat.Outcome{Status: http.StatusOK, Body: make(chan int)}}
	svc := NewService(repo, &fakePublisher{}, nil, 0, handler)

	job, _, err := svc.Submit(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	retry := &recordingRetry{}
	w := NewWorker(svc, nil, retry, "chat_jobs", 1)
	ack := newRecordingAck()
	w.handle(context.Background(), 0, delivery(t, ack, 9, job.ID, amqp.Table{rabbitmq.RetryCountHeader: int32(maxRetries)}))

	_, nacked := ack.snapshot()
	if requeue, ok := nacked[9]; !ok || requeue {
		t.Fatalf("expected dead-letter nack, got %v", nacked)
	}
	if len(retry.attempts) != 0 {
		t.Fatalf("expected no further retries, got %v", retry.attempts)
	}
	j, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Status != StatusFailed || j.Error == nil {
		t.Fatalf("expected a settled failed job, got %+v", j)
	}
}

func TestWorker_RetryPublishFailureDeadLetters(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), &fakePublisher{}, nil, 0, &fakeChat{})
	w := NewWorker(svc, nil, &recordingRetry{err: errors.New("broker down")}, "chat_jobs", 1)

	ack := newRecordingAck()
	w.handle(context.Background(), 0, delivery(t, ack, 3, "missing-job", nil))

	_, nacked := ack.snapshot()
	if requeue, ok := nacked[3]; !ok || requeue {
		t.Fatalf("expected dead-letter nack, got %v", nacked)
	}
}

func TestWorker_BadMessageIsDeadLettered(t *testing.T) {
	w := NewWorker(NewService(NewRepo(openTestDB(t)), &fakePublisher{}, nil, 0, &fakeChat{}), nil, &recordingRetry{}, "chat_jobs", 1)
	ack := newRecordingAck()
	w.handle(context.Background(), 0, amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte("not json")})

	_, nacked := ack.snapshot()
	if requeue, ok := nacked[4]; !ok || requeue {
		t.Fatalf("expected dead-letter nack, got %v", nacked)
	}
}

func TestWorker_DeliveryChannelClosed(t *testing.T) {
	w := NewWorker(NewService(NewRepo(openTestDB(t)), &fakePublisher{}, nil, 0, &fakeChat{}), nil, nil, "chat_jobs", 1)
	msgs := make(chan amqp.Delivery)
	close(msgs)
	if err := w.serve(context.Background(), msgs); err == nil {
		t.Fatalf("expected an error when deliveries stop")
	}
}

func TestProcess_SkipsFinishedJob(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	reply := "once"
	handler := &fakeChat{out: chat.Outcome{Status: http.StatusOK, Body: chat.ReplyBody{Reply: &reply}}}
	svc := NewService(repo, &fakePublisher{}, nil, 0, handler)

	job, _, err := svc.Submit(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	handler.last = chat.Request{}
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("redelivered process: %v", err)
	}
	if handler.last.Message != nil {
		t.Fatalf("finished job ran again: %+v", handler.last)
	}
}
