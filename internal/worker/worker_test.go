package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kmadaan/filevault/internal/imaging"
	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/storage"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{G: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type env struct {
	pipeline *Pipeline
	store    *storage.MemoryStore
	blobs    *storage.LocalStore
	queue    *queue.MemoryQueue
}

func newEnv(t *testing.T, resize Resizer) *env {
	t.Helper()

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	q := queue.NewMemoryQueue()
	if resize == nil {
		resize = imaging.Resize
	}
	return &env{
		pipeline: NewPipeline(q, store, blobs, resize),
		store:    store,
		blobs:    blobs,
		queue:    q,
	}
}

// storeImage persists an original blob plus its metadata record and
// returns the matching thumbnail job.
func storeImage(t *testing.T, e *env) (queue.Job, *models.File) {
	t.Helper()
	ctx := context.Background()

	path, err := e.blobs.Write(ctx, pngBytes(t, 640, 480))
	require.NoError(t, err)

	file := &models.File{
		UserID:    primitive.NewObjectID(),
		Name:      "cat.png",
		Type:      models.FileTypeImage,
		LocalPath: path,
	}
	require.NoError(t, e.store.CreateFile(ctx, file))

	return queue.NewThumbnailJob(file.UserID.Hex(), file.ID.Hex()), file
}

func TestThumbnailJobProducesAllWidths(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	job, file := storeImage(t, e)

	require.NoError(t, e.queue.Enqueue(ctx, job))
	dequeued, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)

	e.pipeline.Process(ctx, *dequeued)

	for _, width := range ThumbnailWidths {
		derived := storage.DerivedPath(file.LocalPath, width)
		ok, err := e.blobs.Exists(ctx, derived)
		require.NoError(t, err)
		assert.True(t, ok, "derivative for width %d must exist", width)

		data, err := e.blobs.Read(ctx, derived)
		require.NoError(t, err)
		decoded, _, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, width, decoded.Bounds().Dx())
	}

	assert.Equal(t, 0, e.queue.InFlight(), "completed job is acked")
	assert.Equal(t, 0, e.queue.Len())
}

func TestThumbnailJobIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	job, file := storeImage(t, e)

	e.pipeline.Process(ctx, job)
	e.pipeline.Process(ctx, job)

	for _, width := range ThumbnailWidths {
		data, err := e.blobs.Read(ctx, storage.DerivedPath(file.LocalPath, width))
		require.NoError(t, err)
		decoded, _, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, width, decoded.Bounds().Dx(), "replayed job leaves a valid derivative")
	}
}

func TestMalformedJobsAreDropped(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for _, job := range []queue.Job{
		{ID: "j1", Kind: queue.KindThumbnail, UserID: "u"},               // missing fileId
		{ID: "j2", Kind: queue.KindThumbnail, FileID: "f"},               // missing userId
		{ID: "j3", Kind: queue.KindThumbnail, UserID: "bad", FileID: "bad"},
		{ID: "j4", Kind: "mystery"},
	} {
		require.NoError(t, e.queue.Enqueue(ctx, job))
		dequeued, err := e.queue.Dequeue(ctx)
		require.NoError(t, err)
		e.pipeline.Process(ctx, *dequeued)
	}

	assert.Equal(t, 0, e.queue.Len(), "malformed jobs are never retried")
	assert.Equal(t, 0, e.queue.InFlight())
}

func TestUnknownFileIsDropped(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	job := queue.NewThumbnailJob(primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())
	require.NoError(t, e.queue.Enqueue(ctx, job))
	dequeued, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)

	e.pipeline.Process(ctx, *dequeued)

	assert.Equal(t, 0, e.queue.Len())
	assert.Equal(t, 0, e.queue.InFlight())
}

func TestTotalThumbnailFailureIsRequeued(t *testing.T) {
	failing := func(data []byte, width int) ([]byte, error) {
		return nil, errors.New("scaler down")
	}
	e := newEnv(t, failing)
	ctx := context.Background()
	job, _ := storeImage(t, e)

	require.NoError(t, e.queue.Enqueue(ctx, job))
	dequeued, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)

	e.pipeline.Process(ctx, *dequeued)

	require.Equal(t, 1, e.queue.Len(), "zero successes means the job goes back")
	redelivered, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, redelivered.ID)
	assert.Equal(t, 1, redelivered.Attempts)
}

func TestPoisonJobIsDroppedAfterMaxAttempts(t *testing.T) {
	failing := func(data []byte, width int) ([]byte, error) {
		return nil, errors.New("scaler down")
	}
	e := newEnv(t, failing)
	ctx := context.Background()
	job, _ := storeImage(t, e)

	require.NoError(t, e.queue.Enqueue(ctx, job))
	for i := 0; i < maxAttempts; i++ {
		dequeued, err := e.queue.Dequeue(ctx)
		require.NoError(t, err)
		if dequeued == nil {
			break
		}
		e.pipeline.Process(ctx, *dequeued)
	}

	assert.Equal(t, 0, e.queue.Len(), "a job failing every attempt is eventually dropped")
	assert.Equal(t, 0, e.queue.InFlight())
}

func TestPartialFailureStillCompletes(t *testing.T) {
	// Fail exactly one width; the job must still be acked with the other
	// two derivatives in place.
	flaky := func(data []byte, width int) ([]byte, error) {
		if width == 250 {
			return nil, errors.New("one width broke")
		}
		return imaging.Resize(data, width)
	}
	e := newEnv(t, flaky)
	ctx := context.Background()
	job, file := storeImage(t, e)

	require.NoError(t, e.queue.Enqueue(ctx, job))
	dequeued, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)

	e.pipeline.Process(ctx, *dequeued)

	assert.Equal(t, 0, e.queue.Len(), "partial success is still completion")

	ok, err := e.blobs.Exists(ctx, storage.DerivedPath(file.LocalPath, 500))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.blobs.Exists(ctx, storage.DerivedPath(file.LocalPath, 250))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = e.blobs.Exists(ctx, storage.DerivedPath(file.LocalPath, 100))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWelcomeJob(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	user := &models.User{Email: "a@b.c"}
	require.NoError(t, e.store.CreateUser(ctx, user))

	job := queue.NewWelcomeJob(user.ID.Hex())
	require.NoError(t, e.queue.Enqueue(ctx, job))
	dequeued, err := e.queue.Dequeue(ctx)
	require.NoError(t, err)

	e.pipeline.Process(ctx, *dequeued)

	assert.Equal(t, 0, e.queue.Len())
	assert.Equal(t, 0, e.queue.InFlight())

	// An unknown user is a malformed job: dropped, not retried.
	unknown := queue.NewWelcomeJob(primitive.NewObjectID().Hex())
	require.NoError(t, e.queue.Enqueue(ctx, unknown))
	dequeued, err = e.queue.Dequeue(ctx)
	require.NoError(t, err)
	e.pipeline.Process(ctx, *dequeued)
	assert.Equal(t, 0, e.queue.Len())
}
