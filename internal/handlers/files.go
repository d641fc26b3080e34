package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/service"
)

// FilesHandler serves the file CRUD and content endpoints.
type FilesHandler struct {
	files *service.FileService
	gate  *auth.Gate
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(files *service.FileService, gate *auth.Gate) *FilesHandler {
	return &FilesHandler{files: files, gate: gate}
}

// flexibleID accepts both a JSON string and the bare 0 many clients send
// for the root parent.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(strconv.FormatInt(n, 10))
	return nil
}

type uploadRequest struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	ParentID flexibleID `json:"parentId"`
	IsPublic bool       `json:"isPublic"`
	Data     string     `json:"data"`
}

// fileResponse is the wire shape of a file record. The root parent is
// rendered as "0".
type fileResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsPublic  bool   `json:"isPublic"`
	ParentID  string `json:"parentId"`
	LocalPath string `json:"localPath,omitempty"`
}

func toFileResponse(f *models.File) fileResponse {
	parent := "0"
	if !f.IsRoot() {
		parent = f.ParentID.Hex()
	}
	return fileResponse{
		ID:        f.ID.Hex(),
		UserID:    f.UserID.Hex(),
		Name:      f.Name,
		Type:      string(f.Type),
		IsPublic:  f.IsPublic,
		ParentID:  parent,
		LocalPath: f.LocalPath,
	}
}

// Upload handles POST /files
func (fh *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "files.upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, err := fh.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing name")
		return
	}

	var data []byte
	if req.Data != "" {
		data, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing data")
			return
		}
	}

	file, err := fh.files.Create(ctx, userID, service.CreateInput{
		Name:     req.Name,
		Type:     models.FileType(req.Type),
		ParentID: string(req.ParentID),
		IsPublic: req.IsPublic,
		Data:     data,
	})
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	span.SetAttributes(
		attribute.String("file_id", file.ID.Hex()),
		attribute.String("file_type", string(file.Type)),
	)
	writeJSON(w, http.StatusCreated, toFileResponse(file))
}

// Show handles GET /files/{id}
func (fh *FilesHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "files.show")
	defer span.End()

	userID, err := fh.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	file, err := fh.files.Get(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(file))
}

// Index handles GET /files?parentId=&page=
func (fh *FilesHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "files.index")
	defer span.End()

	userID, err := fh.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			page = parsed
		}
	}

	files, err := fh.files.List(ctx, userID, r.URL.Query().Get("parentId"), page)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	out := make([]fileResponse, 0, len(files))
	for i := range files {
		out = append(out, toFileResponse(&files[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Publish handles PUT /files/{id}/publish
func (fh *FilesHandler) Publish(w http.ResponseWriter, r *http.Request) {
	fh.setPublic(w, r, true)
}

// Unpublish handles PUT /files/{id}/unpublish
func (fh *FilesHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	fh.setPublic(w, r, false)
}

func (fh *FilesHandler) setPublic(w http.ResponseWriter, r *http.Request, value bool) {
	ctx, span := tracer.Start(r.Context(), "files.set_public",
		trace.WithAttributes(attribute.Bool("is_public", value)),
	)
	defer span.End()

	userID, err := fh.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	file, err := fh.files.SetPublic(ctx, userID, mux.Vars(r)["id"], value)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(file))
}

// Data handles GET /files/{id}/data?size=. A token is optional here:
// public files stream for anyone.
func (fh *FilesHandler) Data(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "files.data")
	defer span.End()

	// An invalid token is the same as no token; visibility is settled by
	// the read rules, not by authentication.
	userID, err := fh.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
		writeServiceError(w, err)
		return
	}

	width := 0
	if s := r.URL.Query().Get("size"); s != "" {
		width, err = strconv.Atoi(s)
		if err != nil || width <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid size")
			return
		}
	}

	content, err := fh.files.ReadContent(ctx, userID, mux.Vars(r)["id"], width)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}
	defer content.Reader.Close()

	w.Header().Set("Content-Type", content.ContentType)
	if _, err := io.Copy(w, content.Reader); err != nil {
		log.Printf("Failed to stream file content: %v", err)
	}
}
