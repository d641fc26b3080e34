package service

import (
	"context"
	"io"
	"log"
	"mime"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/queue"
	"github.com/kmadaan/filevault/internal/storage"
)

var tracer = otel.Tracer("filevault-service")

// PageSize is the fixed number of records per listing page.
const PageSize = 20

// MetadataStore is the document store the services run against.
// MongoStore implements it in production, MemoryStore in tests.
type MetadataStore interface {
	CreateFile(ctx context.Context, file *models.File) error
	FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error)
	FileByIDForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.File, error)
	ListFiles(ctx context.Context, owner, parent primitive.ObjectID, page, pageSize int) ([]models.File, error)
	SetFilePublic(ctx context.Context, id primitive.ObjectID, public bool) error
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// FileService orchestrates file creation, lookup, listing, publishing and
// content reads against the metadata store and the blob backend.
type FileService struct {
	store MetadataStore
	blobs storage.BlobStore
	queue queue.Queue
	gate  *auth.Gate
}

// NewFileService wires a FileService with its collaborators.
func NewFileService(store MetadataStore, blobs storage.BlobStore, q queue.Queue, gate *auth.Gate) *FileService {
	return &FileService{store: store, blobs: blobs, queue: q, gate: gate}
}

// CreateInput is the validated upload request. Data holds the decoded
// content bytes and must be empty for folders.
type CreateInput struct {
	Name     string
	Type     models.FileType
	ParentID string
	IsPublic bool
	Data     []byte
}

// Create validates the input, persists content for non-folder types and
// stores the metadata record. Image uploads additionally enqueue a
// thumbnail job; the caller never waits for derivatives.
func (s *FileService) Create(ctx context.Context, callerID string, in CreateInput) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "files.create",
		trace.WithAttributes(
			attribute.String("file_name", in.Name),
			attribute.String("file_type", string(in.Type)),
		),
	)
	defer span.End()

	owner, err := primitive.ObjectIDFromHex(callerID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if in.Name == "" {
		return nil, &MissingFieldError{Field: "name"}
	}
	if !models.ValidFileType(in.Type) {
		return nil, &MissingFieldError{Field: "type"}
	}
	if len(in.Data) == 0 && in.Type != models.FileTypeFolder {
		return nil, &MissingFieldError{Field: "data"}
	}

	parent, err := s.resolveParent(ctx, in.ParentID)
	if err != nil {
		return nil, err
	}

	file := &models.File{
		UserID:   owner,
		Name:     in.Name,
		Type:     in.Type,
		ParentID: parent,
		IsPublic: in.IsPublic,
	}

	if in.Type == models.FileTypeFolder {
		if err := s.store.CreateFile(ctx, file); err != nil {
			span.RecordError(err)
			return nil, err
		}
		return file, nil
	}

	// Blob first, metadata second: a failed blob write leaves no record
	// behind.
	localPath, err := s.blobs.Write(ctx, in.Data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	file.LocalPath = localPath

	if err := s.store.CreateFile(ctx, file); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if in.Type == models.FileTypeImage {
		job := queue.NewThumbnailJob(owner.Hex(), file.ID.Hex())
		if err := s.queue.Enqueue(ctx, job); err != nil {
			// Fire-and-forget: the upload already succeeded, derivatives
			// just won't appear until the job is resubmitted.
			log.Printf("Warning: failed to enqueue thumbnail job for file %s: %v", file.ID.Hex(), err)
		}
	}

	span.SetAttributes(attribute.String("file_id", file.ID.Hex()))
	return file, nil
}

// resolveParent maps the external parent id to the stored sentinel and
// enforces the parent-must-be-a-folder invariant.
func (s *FileService) resolveParent(ctx context.Context, parentID string) (primitive.ObjectID, error) {
	if parentID == "" || parentID == "0" {
		return primitive.NilObjectID, nil
	}

	id, err := primitive.ObjectIDFromHex(parentID)
	if err != nil {
		return primitive.NilObjectID, &InvalidStateError{Msg: "Parent not found"}
	}

	parent, err := s.store.FileByID(ctx, id)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if parent == nil {
		return primitive.NilObjectID, &InvalidStateError{Msg: "Parent not found"}
	}
	if parent.Type != models.FileTypeFolder {
		return primitive.NilObjectID, &InvalidStateError{Msg: "Parent is not a folder"}
	}
	return parent.ID, nil
}

// Get fetches one of the caller's files by id.
func (s *FileService) Get(ctx context.Context, callerID, fileID string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "files.get",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	file, err := s.ownedFile(ctx, callerID, fileID)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// List returns one page of the caller's files under the given parent.
// Page is zero-based; the page size is fixed at PageSize.
func (s *FileService) List(ctx context.Context, callerID, parentID string, page int) ([]models.File, error) {
	ctx, span := tracer.Start(ctx, "files.list",
		trace.WithAttributes(
			attribute.String("parent_id", parentID),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	owner, err := primitive.ObjectIDFromHex(callerID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	parent := primitive.NilObjectID
	if parentID != "" && parentID != "0" {
		parent, err = primitive.ObjectIDFromHex(parentID)
		if err != nil {
			// An unparseable parent matches nothing.
			return []models.File{}, nil
		}
	}

	if page < 0 {
		page = 0
	}
	return s.store.ListFiles(ctx, owner, parent, page, PageSize)
}

// SetPublic toggles the isPublic flag on one of the caller's files and
// returns the updated record. Nothing else about the record changes.
func (s *FileService) SetPublic(ctx context.Context, callerID, fileID string, public bool) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "files.set_public",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
			attribute.Bool("is_public", public),
		),
	)
	defer span.End()

	file, err := s.ownedFile(ctx, callerID, fileID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetFilePublic(ctx, file.ID, public); err != nil {
		span.RecordError(err)
		return nil, err
	}
	file.IsPublic = public
	return file, nil
}

// ownedFile fetches a file scoped to the caller. Files owned by anyone
// else come back as ErrNotFound, never as a permission error.
func (s *FileService) ownedFile(ctx context.Context, callerID, fileID string) (*models.File, error) {
	owner, err := primitive.ObjectIDFromHex(callerID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	id, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, ErrNotFound
	}

	file, err := s.store.FileByIDForOwner(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNotFound
	}
	return file, nil
}

// Content is an open stream over stored file content plus the content
// type derived from the file name.
type Content struct {
	Reader      io.ReadCloser
	ContentType string
}

// ReadContent opens the content of a file, or of its resized variant when
// width is non-zero. callerID may be empty: public files are readable by
// anyone, private ones only by their owner, and a denial reads exactly
// like a missing file. A variant the pipeline has not produced yet is
// also ErrNotFound.
func (s *FileService) ReadContent(ctx context.Context, callerID, fileID string, width int) (*Content, error) {
	ctx, span := tracer.Start(ctx, "files.read_content",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
			attribute.Int("width", width),
		),
	)
	defer span.End()

	id, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, ErrNotFound
	}

	file, err := s.store.FileByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNotFound
	}

	if !s.gate.CanRead(file, callerID) {
		return nil, ErrNotFound
	}

	if file.Type == models.FileTypeFolder {
		return nil, &InvalidStateError{Msg: "A folder doesn't have content"}
	}

	path := file.LocalPath
	if width > 0 {
		path = storage.DerivedPath(path, width)
	}

	ok, err := s.blobs.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	reader, err := s.blobs.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(file.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Content{Reader: reader, ContentType: contentType}, nil
}
