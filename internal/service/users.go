package service

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/auth"
	"github.com/kmadaan/filevault/internal/models"
	"github.com/kmadaan/filevault/internal/queue"
)

// UserService handles registration and account lookups.
type UserService struct {
	store MetadataStore
	queue queue.Queue
}

// NewUserService wires a UserService with its collaborators.
func NewUserService(store MetadataStore, q queue.Queue) *UserService {
	return &UserService{store: store, queue: q}
}

// Register creates an account and enqueues a welcome job for it.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "users.register",
		trace.WithAttributes(attribute.String("email", email)),
	)
	defer span.End()

	if email == "" {
		return nil, &MissingFieldError{Field: "email"}
	}
	if password == "" {
		return nil, &MissingFieldError{Field: "password"}
	}

	existing, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &InvalidStateError{Msg: "Already exist"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	user := &models.User{Email: email, Password: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, queue.NewWelcomeJob(user.ID.Hex())); err != nil {
		log.Printf("Warning: failed to enqueue welcome job for user %s: %v", user.ID.Hex(), err)
	}

	return user, nil
}

// Authenticate checks an email/password pair and returns the account.
// Any mismatch is ErrUnauthorized; which half was wrong is not revealed.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.Password, password) {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// UserByID fetches an account by its hex id.
func (s *UserService) UserByID(ctx context.Context, userID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}
