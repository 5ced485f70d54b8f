package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/suPer8Hu/helpdesk-relay/internal/chat"
	"github.com/suPer8Hu/helpdesk-relay/internal/common"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("job not found")

type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key, jobID string, ttl time.Duration) (string, bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// ChatHandler runs one chat turn; *chat.Service implements it.
type ChatHandler interface {
	Handle(ctx context.Context, req chat.Request) chat.Outcome
}

type Service struct {
	repo    *Repo
	pub     Publisher
	idem    IdempotencyStore
	idemTTL time.Duration
	chat    ChatHandler
}

// NewService wires the job pipeline. idem may be nil, in which case the
// unique index on the idempotency key is the only dedup.
func NewService(repo *Repo, pub Publisher, idem IdempotencyStore, idemTTL time.Duration, handler ChatHandler) *Service {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Service{repo: repo, pub: pub, idem: idem, idemTTL: idemTTL, chat: handler}
}

// Submit creates and enqueues a job. A repeated idempotency key returns the
// original job with created=false and publishes nothing.
func (s *Service) Submit(ctx context.Context, sessionID, message, idempoKey string) (*Job, bool, error) {
	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	var keyPtr *string
	if idempoKey != "" {
		keyPtr = &idempoKey
	}

	claimed := false
	if keyPtr != nil && s.idem != nil {
		existing, ok, err := s.idem.ClaimIdempotencyKey(ctx, idempoKey, jobID, s.idemTTL)
		switch {
		case err != nil:
			// redis is only a fast path; the unique index still dedups
			log.Printf("[jobs] idempotency claim failed key=%s err=%v", idempoKey, err)
		case !ok:
			if j, err := s.repo.GetJobByID(ctx, existing); err == nil {
				return j, false, nil
			}
		default:
			claimed = true
		}
	}

	j := &Job{
		ID:             jobID,
		SessionID:      sessionID,
		Prompt:         message,
		IdempotencyKey: keyPtr,
		Status:         StatusQueued,
	}

	job, created, err := s.repo.CreateJobOrGetExisting(ctx, j)
	if err != nil {
		if claimed {
			_ = s.idem.ReleaseIdempotencyKey(ctx, idempoKey)
		}
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	if err := s.pub.PublishJob(ctx, job.ID); err != nil {
		_ = s.repo.MarkFailed(ctx, job.ID, "enqueue failed: "+err.Error())
		return nil, false, err
	}
	return job, true, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// Process runs a queued job through the chat orchestrator and stores the
// outcome on the job row. Redelivered jobs that already finished are skipped.
func (s *Service) Process(ctx context.Context, jobID string) error {
	jobStart := time.Now()

	if err := s.repo.MarkRunning(ctx, jobID); err != nil {
		return err
	}

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == StatusSucceeded || j.Status == StatusFailed {
		return nil
	}

	t0 := time.Now()
	out := s.chat.Handle(ctx, chat.Request{SessionID: j.SessionID, Message: j.Prompt})
	handleCost := time.Since(t0)

	b, err := json.Marshal(out.Body)
	if err != nil {
		_ = s.repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}

	var errMsg string
	if eb, ok := out.Body.(chat.ErrorBody); ok {
		errMsg = eb.Error
	}

	if err := s.repo.MarkFinished(ctx, jobID, out.Status, string(b), errMsg); err != nil {
		log.Printf("job_timing_failed job=%s handle=%s total=%s err=%v", jobID, handleCost, time.Since(jobStart), err)
		return err
	}

	if total := time.Since(jobStart); total > 2*time.Second {
		log.Printf("job_timing job=%s status=%d handle=%s total=%s", jobID, out.Status, handleCost, total)
	}
	return nil
}

// Fail settles a job that could not be processed.
func (s *Service) Fail(ctx context.Context, jobID, reason string) error {
	return s.repo.MarkFailed(ctx, jobID, reason)
}
