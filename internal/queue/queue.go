// Package queue carries background jobs from the HTTP path to the workers.
// Delivery is at-least-once: consumers must tolerate replays.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Queue is the durable job pipe. Dequeue blocks up to the implementation's
// poll interval and returns (nil, nil) when nothing is pending. A job stays
// in flight until it is Acked or Requeued; implementations redeliver
// in-flight jobs after a crash.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job Job) error
	Requeue(ctx context.Context, job Job) error
}

// Kind tags the job variants the workers know how to run.
type Kind string

const (
	KindThumbnail Kind = "thumbnail"
	KindWelcome   Kind = "welcome"
)

// Job is a queued work item. Thumbnail jobs carry UserID and FileID,
// welcome jobs only UserID. Attempts counts deliveries so a poison job
// cannot circulate forever.
type Job struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	UserID   string `json:"userId,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	Attempts int    `json:"attempts"`

	// raw is the payload exactly as it sits in the backing store, kept so
	// acks can remove the right list entry.
	raw string
}

// NewThumbnailJob builds a job asking for derivatives of one stored image.
func NewThumbnailJob(userID, fileID string) Job {
	return Job{ID: uuid.New().String(), Kind: KindThumbnail, UserID: userID, FileID: fileID}
}

// NewWelcomeJob builds a job greeting a freshly registered user.
func NewWelcomeJob(userID string) Job {
	return Job{ID: uuid.New().String(), Kind: KindWelcome, UserID: userID}
}
