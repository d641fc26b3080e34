package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("filevault-storage")

// BlobStore persists raw file content. Write picks a fresh random location
// for new content; Put writes at a known location (used for derivatives, so
// the naming convention from DerivedPath round-trips through the read path).
type BlobStore interface {
	Write(ctx context.Context, data []byte) (string, error)
	Put(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// DerivedPath returns the location of the resized variant of an original
// blob. The thumbnail pipeline writes to it and the content endpoint reads
// from it, so both sides must agree on this exact convention.
func DerivedPath(path string, width int) string {
	return fmt.Sprintf("%s_%d", path, width)
}

// LocalStore keeps blobs as flat files under a root directory, one random
// uuid filename per upload. Identical content uploaded twice lands at two
// distinct paths; there is no deduplication.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed and returns the store.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Write stores data under a fresh uuid filename and returns the full path.
func (ls *LocalStore) Write(ctx context.Context, data []byte) (string, error) {
	_, span := tracer.Start(ctx, "blob.write",
		trace.WithAttributes(attribute.Int("size_bytes", len(data))),
	)
	defer span.End()

	path := filepath.Join(ls.root, uuid.New().String())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	span.SetAttributes(attribute.String("blob_path", path))
	return path, nil
}

// Put writes data at an exact path, overwriting any previous content.
// Overwrites are harmless here: derivative regeneration is idempotent.
func (ls *LocalStore) Put(ctx context.Context, path string, data []byte) error {
	_, span := tracer.Start(ctx, "blob.put",
		trace.WithAttributes(
			attribute.String("blob_path", path),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write blob at %s: %w", path, err)
	}
	return nil
}

// Read returns the full content stored at path.
func (ls *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	_, span := tracer.Start(ctx, "blob.read",
		trace.WithAttributes(attribute.String("blob_path", path)),
	)
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read blob at %s: %w", path, err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

// Open returns a reader over the content stored at path.
func (ls *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob at %s: %w", path, err)
	}
	return f, nil
}

// Exists reports whether a blob is present at path.
func (ls *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob at %s: %w", path, err)
}
