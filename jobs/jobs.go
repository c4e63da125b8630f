// Package jobs tracks the status of long running generation requests so
// clients can poll for the result.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Done() bool { return s == StatusCompleted || s == StatusFailed }

type Job struct {
	ID        string    `json:"request_id"`
	OwnerID   uint      `json:"-"`
	Status    Status    `json:"status"`
	VideoURL  string    `json:"video_url,omitempty"`
	AssetID   uint      `json:"asset_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewJob(ownerID uint) Job {
	now := time.Now().UTC()
	return Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store keeps jobs for a limited time. Get returns apperr NotFound for unknown
// or expired ids.
type Store interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
}
