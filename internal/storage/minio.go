package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// S3Store is the object-store implementation of BlobStore. Paths are plain
// object keys inside a single bucket; the derivative naming convention is
// identical to the local backend.
type S3Store struct {
	client     *minio.Client
	bucketName string
}

// NewS3Store initializes a new MinIO-backed blob store
func NewS3Store(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*S3Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ss := &S3Store{
		client:     client,
		bucketName: bucketName,
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Printf("Creating bucket: %s", bucketName)
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Bucket %s created successfully", bucketName)
	}

	return ss, nil
}

// Write stores data under a fresh uuid object key and returns the key.
func (ss *S3Store) Write(ctx context.Context, data []byte) (string, error) {
	key := uuid.New().String()
	if err := ss.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Put uploads data at an exact object key with tracing
func (ss *S3Store) Put(ctx context.Context, path string, data []byte) error {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", path),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	reader := bytes.NewReader(data)
	_, err := ss.client.PutObject(ctx, ss.bucketName, path, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// Read downloads the full object at path with tracing
func (ss *S3Store) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(attribute.String("object_key", path)),
	)
	defer span.End()

	object, err := ss.client.GetObject(ctx, ss.bucketName, path, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

// Open returns a streaming reader over the object at path.
func (ss *S3Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	object, err := ss.client.GetObject(ctx, ss.bucketName, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return object, nil
}

// Exists reports whether an object is present at path.
func (ss *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := ss.client.StatObject(ctx, ss.bucketName, path, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}
