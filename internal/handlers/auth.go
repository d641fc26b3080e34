package handlers

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/service"
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	users *service.UserService
	gate  *auth.Gate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *service.UserService, gate *auth.Gate) *AuthHandler {
	return &AuthHandler{users: users, gate: gate}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /users
func (ah *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "auth.register",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing email")
		return
	}

	user, err := ah.users.Register(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID.Hex(),
		"email": user.Email,
	})
}

// Connect handles GET /connect with Basic credentials and issues a token.
func (ah *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "auth.connect",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	email, password, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := ah.users.Authenticate(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	token, err := ah.gate.NewSession(ctx, user.ID.Hex())
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Disconnect handles GET /disconnect and destroys the caller's session.
func (ah *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "auth.disconnect")
	defer span.End()

	token := r.Header.Get("X-Token")
	if _, err := ah.gate.Resolve(ctx, token); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := ah.gate.Revoke(ctx, token); err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me
func (ah *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "auth.me")
	defer span.End()

	userID, err := ah.gate.Resolve(ctx, r.Header.Get("X-Token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	user, err := ah.users.UserByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.ID.Hex(),
		"email": user.Email,
	})
}
