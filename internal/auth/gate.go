// Package auth decides who a request belongs to and what it may touch.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kmadaan/filevault/internal/models"
)

// ErrUnauthenticated means no valid session backs the presented token.
// Callers must treat this as "not authenticated", not as a failure.
var ErrUnauthenticated = errors.New("unauthenticated")

// SessionStore maps opaque tokens to user ids with expiry.
type SessionStore interface {
	Session(ctx context.Context, token string) (string, error)
	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	DeleteSession(ctx context.Context, token string) error
}

// Gate resolves tokens and answers read/write authorization questions.
type Gate struct {
	sessions SessionStore
	ttl      time.Duration
}

// NewGate creates a gate over the given session store. New sessions live
// for ttl.
func NewGate(sessions SessionStore, ttl time.Duration) *Gate {
	return &Gate{sessions: sessions, ttl: ttl}
}

// Resolve looks up the session behind token and returns the user id.
// Missing tokens and missing or expired sessions return ErrUnauthenticated.
func (g *Gate) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	userID, err := g.sessions.Session(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// NewSession issues a fresh random token for userID.
func (g *Gate) NewSession(ctx context.Context, userID string) (string, error) {
	token := uuid.New().String()
	if err := g.sessions.SaveSession(ctx, token, userID, g.ttl); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return token, nil
}

// Revoke destroys the session behind token.
func (g *Gate) Revoke(ctx context.Context, token string) error {
	return g.sessions.DeleteSession(ctx, token)
}

// CanRead reports whether the caller may see the file: public files are
// readable by anyone, private files only by their owner. Callers must
// surface a denial as "not found" so existence does not leak.
func (g *Gate) CanRead(file *models.File, callerID string) bool {
	if file.IsPublic {
		return true
	}
	return callerID != "" && file.UserID.Hex() == callerID
}

// CanWrite reports whether the caller may mutate the file. Only the owner
// may; unauthenticated callers never can.
func (g *Gate) CanWrite(file *models.File, callerID string) bool {
	return callerID != "" && file.UserID.Hex() == callerID
}

// HashPassword returns the bcrypt hash of a clear-text password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the clear-text password matches the hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
