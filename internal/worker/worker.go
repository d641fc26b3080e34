// Package worker drains the job queue and produces image derivatives.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/storage"
)

var tracer = otel.Tracer("filevault-worker")

const (
	maxAttempts  = 3
	idleInterval = 200 * time.Millisecond
)

// ThumbnailWidths lists the derivative widths generated for every image,
// largest first.
var ThumbnailWidths = []int{500, 250, 100}

// MetadataStore is the slice of the document store the pipeline needs.
type MetadataStore interface {
	FileByIDForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.File, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Resizer is the pure scaling primitive: image bytes plus a target width
// in, resized bytes out.
type Resizer func(data []byte, width int) ([]byte, error)

// fatalError marks a job that must not be retried: its payload is
// malformed or names records that do not exist.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatalf(format string, args ...any) error {
	return &fatalError{err: fmt.Errorf(format, args...)}
}

// Pipeline consumes thumbnail and welcome jobs. Multiple pipelines may
// drain the same queue; jobs carry no ordering guarantees.
type Pipeline struct {
	queue  queue.Queue
	store  MetadataStore
	blobs  storage.BlobStore
	resize Resizer
	widths []int
}

// NewPipeline wires a pipeline with its collaborators.
func NewPipeline(q queue.Queue, store MetadataStore, blobs storage.BlobStore, resize Resizer) *Pipeline {
	return &Pipeline{
		queue:  q,
		store:  store,
		blobs:  blobs,
		resize: resize,
		widths: ThumbnailWidths,
	}
}

// Run drains the queue with the given number of workers until ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Worker %d: dequeue failed: %v", id, err)
			time.Sleep(idleInterval)
			continue
		}
		if job == nil {
			time.Sleep(idleInterval)
			continue
		}

		p.Process(ctx, *job)
	}
}

// Process runs one job to completion and settles it with the queue.
// Fatal job errors and exhausted retries drop the job; transient failures
// put it back on the queue.
func (p *Pipeline) Process(ctx context.Context, job queue.Job) {
	ctx, span := tracer.Start(ctx, "worker.process",
		trace.WithAttributes(
			attribute.String("job_id", job.ID),
			attribute.String("job_kind", string(job.Kind)),
			attribute.Int("attempts", job.Attempts),
		),
	)
	defer span.End()

	var err error
	switch job.Kind {
	case queue.KindThumbnail:
		err = p.processThumbnail(ctx, job)
	case queue.KindWelcome:
		err = p.processWelcome(ctx, job)
	default:
		err = fatalf("unknown job kind %q", job.Kind)
	}

	if err == nil {
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			log.Printf("Failed to ack job %s: %v", job.ID, ackErr)
		}
		return
	}

	span.RecordError(err)

	var fatal *fatalError
	if errors.As(err, &fatal) {
		log.Printf("Dropping job %s: %v", job.ID, err)
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			log.Printf("Failed to ack job %s: %v", job.ID, ackErr)
		}
		return
	}

	if job.Attempts+1 >= maxAttempts {
		log.Printf("Dropping job %s after %d attempts: %v", job.ID, job.Attempts+1, err)
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			log.Printf("Failed to ack job %s: %v", job.ID, ackErr)
		}
		return
	}

	log.Printf("Requeueing job %s: %v", job.ID, err)
	if reqErr := p.queue.Requeue(ctx, job); reqErr != nil {
		log.Printf("Failed to requeue job %s: %v", job.ID, reqErr)
	}
}

// processThumbnail generates the resized variants for one stored image.
// Each width is best-effort; the job only fails outright when no variant
// could be produced.
func (p *Pipeline) processThumbnail(ctx context.Context, job queue.Job) error {
	if job.FileID == "" {
		return fatalf("Missing fileId")
	}
	if job.UserID == "" {
		return fatalf("Missing userId")
	}

	fileID, err := primitive.ObjectIDFromHex(job.FileID)
	if err != nil {
		return fatalf("Missing fileId")
	}
	userID, err := primitive.ObjectIDFromHex(job.UserID)
	if err != nil {
		return fatalf("Missing userId")
	}

	file, err := p.store.FileByIDForOwner(ctx, fileID, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch file record: %w", err)
	}
	if file == nil {
		return fatalf("File not found")
	}

	original, err := p.blobs.Read(ctx, file.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to read original blob: %w", err)
	}

	// Widths run concurrently and independently. Regenerating an existing
	// variant just overwrites it with identical content.
	var wg sync.WaitGroup
	successes := make(chan int, len(p.widths))
	for _, width := range p.widths {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()

			_, span := tracer.Start(ctx, "worker.generate_thumbnail",
				trace.WithAttributes(
					attribute.String("file_id", job.FileID),
					attribute.Int("width", width),
				),
			)
			defer span.End()

			resized, err := p.resize(original, width)
			if err != nil {
				span.RecordError(err)
				log.Printf("Error generating thumbnail %s width %d: %v", job.FileID, width, err)
				return
			}
			if err := p.blobs.Put(ctx, storage.DerivedPath(file.LocalPath, width), resized); err != nil {
				span.RecordError(err)
				log.Printf("Error storing thumbnail %s width %d: %v", job.FileID, width, err)
				return
			}
			successes <- width
		}(width)
	}
	wg.Wait()
	close(successes)

	if len(successes) == 0 {
		return fmt.Errorf("all thumbnail widths failed for file %s", job.FileID)
	}
	return nil
}

// processWelcome greets a freshly registered user.
func (p *Pipeline) processWelcome(ctx context.Context, job queue.Job) error {
	if job.UserID == "" {
		return fatalf("Missing userId")
	}

	userID, err := primitive.ObjectIDFromHex(job.UserID)
	if err != nil {
		return fatalf("Missing userId")
	}

	user, err := p.store.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch user record: %w", err)
	}
	if user == nil {
		return fatalf("User not found")
	}

	log.Printf("Welcome %s!", user.Email)
	return nil
}
