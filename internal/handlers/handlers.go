// Package handlers exposes the HTTP surface of the service.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/service"
)

var tracer = otel.Tracer("filevault-handlers")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Validation and state errors keep their exact message; everything else
// is a generic 500 so internals do not leak.
func writeServiceError(w http.ResponseWriter, err error) {
	var missing *service.MissingFieldError
	var invalid *service.InvalidStateError

	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, missing.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
