package jobs

import "time"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one queued chat turn.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	SessionID string `gorm:"type:varchar(128);index;not null" json:"session_id"`
	Prompt    string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_chat_job_idempo" json:"-"`

	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when the turn has run, whatever the outcome
	ResultStatus *int    `json:"result_status,omitempty"`
	ResultBody   *string `gorm:"type:text" json:"-"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "chat_jobs" }
