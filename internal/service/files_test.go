package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/storage"
)

type fixture struct {
	files *FileService
	store *storage.MemoryStore
	blobs *storage.LocalStore
	queue *queue.MemoryQueue
	gate  *auth.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	q := queue.NewMemoryQueue()
	gate := auth.NewGate(storage.NewMemorySessions(), time.Hour)

	return &fixture{
		files: NewFileService(store, blobs, q, gate),
		store: store,
		blobs: blobs,
		queue: q,
		gate:  gate,
	}
}

func newCaller() string {
	return primitive.NewObjectID().Hex()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	caller := newCaller()

	_, err := fx.files.Create(ctx, caller, CreateInput{Type: models.FileTypeFolder})
	assert.EqualError(t, err, "Missing name")

	_, err = fx.files.Create(ctx, caller, CreateInput{Name: "x"})
	assert.EqualError(t, err, "Missing type")

	_, err = fx.files.Create(ctx, caller, CreateInput{Name: "x", Type: "symlink"})
	assert.EqualError(t, err, "Missing type")

	_, err = fx.files.Create(ctx, caller, CreateInput{Name: "x", Type: models.FileTypeFile})
	assert.EqualError(t, err, "Missing data")

	_, err = fx.files.Create(ctx, "not-an-id", CreateInput{Name: "x", Type: models.FileTypeFolder})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateFolderHasNoLocalPath(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	folder, err := fx.files.Create(ctx, newCaller(), CreateInput{
		Name: "docs",
		Type: models.FileTypeFolder,
	})
	require.NoError(t, err)

	assert.Empty(t, folder.LocalPath)
	assert.True(t, folder.IsRoot())
	assert.False(t, folder.IsPublic)
	assert.Equal(t, 0, fx.queue.Len(), "folders never enqueue jobs")
}

func TestCreateFileStoresContent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	content := []byte("file body")

	file, err := fx.files.Create(ctx, newCaller(), CreateInput{
		Name: "notes.txt",
		Type: models.FileTypeFile,
		Data: content,
	})
	require.NoError(t, err)
	require.NotEmpty(t, file.LocalPath)

	stored, err := fx.blobs.Read(ctx, file.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, content, stored, "blob round-trips byte-exact")

	assert.Equal(t, 0, fx.queue.Len(), "plain files never enqueue thumbnail jobs")
}

func TestCreateImageEnqueuesThumbnailJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	caller := newCaller()

	file, err := fx.files.Create(ctx, caller, CreateInput{
		Name: "cat.png",
		Type: models.FileTypeImage,
		Data: pngBytes(t),
	})
	require.NoError(t, err)

	require.Equal(t, 1, fx.queue.Len())
	job, err := fx.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.KindThumbnail, job.Kind)
	assert.Equal(t, caller, job.UserID)
	assert.Equal(t, file.ID.Hex(), job.FileID)
}

func TestCreateParentChecks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	caller := newCaller()

	_, err := fx.files.Create(ctx, caller, CreateInput{
		Name:     "orphan",
		Type:     models.FileTypeFolder,
		ParentID: primitive.NewObjectID().Hex(),
	})
	assert.EqualError(t, err, "Parent not found")

	_, err = fx.files.Create(ctx, caller, CreateInput{
		Name:     "orphan",
		Type:     models.FileTypeFolder,
		ParentID: "not-hex",
	})
	assert.EqualError(t, err, "Parent not found")

	// A non-folder parent is rejected.
	leaf, err := fx.files.Create(ctx, caller, CreateInput{
		Name: "leaf.txt",
		Type: models.FileTypeFile,
		Data: []byte("x"),
	})
	require.NoError(t, err)

	_, err = fx.files.Create(ctx, caller, CreateInput{
		Name:     "child",
		Type:     models.FileTypeFolder,
		ParentID: leaf.ID.Hex(),
	})
	assert.EqualError(t, err, "Parent is not a folder")

	// A real folder parent works.
	folder, err := fx.files.Create(ctx, caller, CreateInput{
		Name: "docs",
		Type: models.FileTypeFolder,
	})
	require.NoError(t, err)

	child, err := fx.files.Create(ctx, caller, CreateInput{
		Name:     "inside.txt",
		Type:     models.FileTypeFile,
		ParentID: folder.ID.Hex(),
		Data:     []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, folder.ID, child.ParentID)
}

func TestGetIsOwnerScoped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name: "mine.txt",
		Type: models.FileTypeFile,
		Data: []byte("x"),
	})
	require.NoError(t, err)

	got, err := fx.files.Get(ctx, owner, file.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)

	// Someone else's lookup and a bogus id are the same error.
	_, errStranger := fx.files.Get(ctx, newCaller(), file.ID.Hex())
	_, errMissing := fx.files.Get(ctx, owner, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, errStranger, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)
	assert.Equal(t, errMissing, errStranger)

	_, err = fx.files.Get(ctx, owner, "junk")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPagination(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()
	other := newCaller()

	for i := 0; i < 25; i++ {
		_, err := fx.files.Create(ctx, owner, CreateInput{
			Name: fmt.Sprintf("f-%02d", i),
			Type: models.FileTypeFolder,
		})
		require.NoError(t, err)
	}
	// Another user's files must never surface.
	_, err := fx.files.Create(ctx, other, CreateInput{Name: "theirs", Type: models.FileTypeFolder})
	require.NoError(t, err)

	page0, err := fx.files.List(ctx, owner, "", 0)
	require.NoError(t, err)
	require.Len(t, page0, PageSize)
	assert.Equal(t, "f-00", page0[0].Name)

	page1, err := fx.files.List(ctx, owner, "", 1)
	require.NoError(t, err)
	require.Len(t, page1, 5)
	assert.Equal(t, "f-20", page1[0].Name)

	page2, err := fx.files.List(ctx, owner, "", 2)
	require.NoError(t, err)
	assert.Empty(t, page2)

	for _, f := range append(page0, page1...) {
		assert.Equal(t, owner, f.UserID.Hex())
	}
}

func TestListScopedToParent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	folder, err := fx.files.Create(ctx, owner, CreateInput{Name: "docs", Type: models.FileTypeFolder})
	require.NoError(t, err)
	_, err = fx.files.Create(ctx, owner, CreateInput{
		Name: "inside.txt", Type: models.FileTypeFile, ParentID: folder.ID.Hex(), Data: []byte("x"),
	})
	require.NoError(t, err)

	root, err := fx.files.List(ctx, owner, "0", 0)
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "docs", root[0].Name)

	inside, err := fx.files.List(ctx, owner, folder.ID.Hex(), 0)
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, "inside.txt", inside[0].Name)
}

func TestPublishUnpublishRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name: "share.txt",
		Type: models.FileTypeFile,
		Data: []byte("x"),
	})
	require.NoError(t, err)
	require.False(t, file.IsPublic)

	published, err := fx.files.SetPublic(ctx, owner, file.ID.Hex(), true)
	require.NoError(t, err)
	assert.True(t, published.IsPublic)

	unpublished, err := fx.files.SetPublic(ctx, owner, file.ID.Hex(), false)
	require.NoError(t, err)
	assert.False(t, unpublished.IsPublic)

	// Everything except the flag is untouched.
	assert.Equal(t, file.ID, unpublished.ID)
	assert.Equal(t, file.Name, unpublished.Name)
	assert.Equal(t, file.Type, unpublished.Type)
	assert.Equal(t, file.ParentID, unpublished.ParentID)
	assert.Equal(t, file.LocalPath, unpublished.LocalPath)

	// Strangers cannot publish what they cannot see.
	_, err = fx.files.SetPublic(ctx, newCaller(), file.ID.Hex(), true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadContent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()
	content := []byte("private body")

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name: "doc.txt",
		Type: models.FileTypeFile,
		Data: content,
	})
	require.NoError(t, err)

	got, err := fx.files.ReadContent(ctx, owner, file.ID.Hex(), 0)
	require.NoError(t, err)
	defer got.Reader.Close()

	body, err := io.ReadAll(got.Reader)
	require.NoError(t, err)
	assert.Equal(t, content, body)
	assert.Contains(t, got.ContentType, "text/plain")
}

func TestReadContentDenialLooksLikeAbsence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name: "secret.txt",
		Type: models.FileTypeFile,
		Data: []byte("x"),
	})
	require.NoError(t, err)

	_, errStranger := fx.files.ReadContent(ctx, newCaller(), file.ID.Hex(), 0)
	_, errAnon := fx.files.ReadContent(ctx, "", file.ID.Hex(), 0)
	_, errMissing := fx.files.ReadContent(ctx, owner, primitive.NewObjectID().Hex(), 0)

	assert.ErrorIs(t, errStranger, ErrNotFound)
	assert.ErrorIs(t, errAnon, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)
	assert.Equal(t, errMissing, errStranger, "denial is indistinguishable from absence")
}

func TestReadContentPublicFileIsOpenToAnyone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name:     "open.txt",
		Type:     models.FileTypeFile,
		IsPublic: true,
		Data:     []byte("anyone"),
	})
	require.NoError(t, err)

	got, err := fx.files.ReadContent(ctx, "", file.ID.Hex(), 0)
	require.NoError(t, err)
	got.Reader.Close()
}

func TestReadContentFolderIsInvalid(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	folder, err := fx.files.Create(ctx, owner, CreateInput{Name: "docs", Type: models.FileTypeFolder})
	require.NoError(t, err)

	_, err = fx.files.ReadContent(ctx, owner, folder.ID.Hex(), 0)
	assert.EqualError(t, err, "A folder doesn't have content")
}

func TestReadContentMissingDerivative(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := newCaller()

	file, err := fx.files.Create(ctx, owner, CreateInput{
		Name: "cat.png",
		Type: models.FileTypeImage,
		Data: pngBytes(t),
	})
	require.NoError(t, err)

	// No worker has run: the 100px variant does not exist yet.
	_, err = fx.files.ReadContent(ctx, owner, file.ID.Hex(), 100)
	assert.ErrorIs(t, err, ErrNotFound)

	// The original is still readable.
	got, err := fx.files.ReadContent(ctx, owner, file.ID.Hex(), 0)
	require.NoError(t, err)
	got.Reader.Close()
}
