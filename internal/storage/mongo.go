package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmadaan/filevault/internal/models"
)

const (
	filesCollection = "files"
	usersCollection = "users"
)

// MongoStore is the document store holding file and user records.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Close disconnects the underlying client.
func (ms *MongoStore) Close(ctx context.Context) error {
	return ms.client.Disconnect(ctx)
}

// Ping verifies the database is reachable.
func (ms *MongoStore) Ping(ctx context.Context) error {
	return ms.client.Ping(ctx, nil)
}

// CreateFile inserts a file record and fills in its generated id.
func (ms *MongoStore) CreateFile(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "mongo.create_file",
		trace.WithAttributes(
			attribute.String("file_name", file.Name),
			attribute.String("file_type", string(file.Type)),
		),
	)
	defer span.End()

	if file.ID.IsZero() {
		file.ID = primitive.NewObjectID()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	_, err := ms.db.Collection(filesCollection).InsertOne(ctx, file)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file record: %w", err)
	}

	span.SetAttributes(attribute.String("file_id", file.ID.Hex()))
	return nil
}

// FileByID fetches a file record by id. A missing record is (nil, nil),
// not an error.
func (ms *MongoStore) FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "mongo.file_by_id",
		trace.WithAttributes(attribute.String("file_id", id.Hex())),
	)
	defer span.End()

	return ms.findFile(ctx, bson.M{"_id": id})
}

// FileByIDForOwner fetches a file record matching both id and owner.
// A record owned by someone else is indistinguishable from a missing one.
func (ms *MongoStore) FileByIDForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "mongo.file_by_id_for_owner",
		trace.WithAttributes(
			attribute.String("file_id", id.Hex()),
			attribute.String("owner_id", owner.Hex()),
		),
	)
	defer span.End()

	return ms.findFile(ctx, bson.M{"_id": id, "userId": owner})
}

func (ms *MongoStore) findFile(ctx context.Context, filter bson.M) (*models.File, error) {
	var file models.File
	err := ms.db.Collection(filesCollection).FindOne(ctx, filter).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file record: %w", err)
	}
	return &file, nil
}

// ListFiles returns one page of the owner's files under the given parent,
// in insertion order. The zero parent id selects top-level files.
func (ms *MongoStore) ListFiles(ctx context.Context, owner, parent primitive.ObjectID, page, pageSize int) ([]models.File, error) {
	ctx, span := tracer.Start(ctx, "mongo.list_files",
		trace.WithAttributes(
			attribute.String("owner_id", owner.Hex()),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	filter := bson.M{"userId": owner, "parentId": parent}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := ms.db.Collection(filesCollection).Find(ctx, filter, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer cursor.Close(ctx)

	files := []models.File{}
	if err := cursor.All(ctx, &files); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode file records: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(files)))
	return files, nil
}

// SetFilePublic flips the isPublic flag on a file record.
func (ms *MongoStore) SetFilePublic(ctx context.Context, id primitive.ObjectID, public bool) error {
	ctx, span := tracer.Start(ctx, "mongo.set_file_public",
		trace.WithAttributes(
			attribute.String("file_id", id.Hex()),
			attribute.Bool("is_public", public),
		),
	)
	defer span.End()

	_, err := ms.db.Collection(filesCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isPublic": public}},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update file record: %w", err)
	}
	return nil
}

// CountFiles returns the number of file records.
func (ms *MongoStore) CountFiles(ctx context.Context) (int64, error) {
	n, err := ms.db.Collection(filesCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// CreateUser inserts a user record and fills in its generated id.
func (ms *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mongo.create_user",
		trace.WithAttributes(attribute.String("email", user.Email)),
	)
	defer span.End()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := ms.db.Collection(usersCollection).InsertOne(ctx, user)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert user record: %w", err)
	}
	return nil
}

// UserByEmail fetches a user by email. A missing user is (nil, nil).
func (ms *MongoStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return ms.findUser(ctx, bson.M{"email": email})
}

// UserByID fetches a user by id. A missing user is (nil, nil).
func (ms *MongoStore) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return ms.findUser(ctx, bson.M{"_id": id})
}

func (ms *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := ms.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user record: %w", err)
	}
	return &user, nil
}

// CountUsers returns the number of user records.
func (ms *MongoStore) CountUsers(ctx context.Context) (int64, error) {
	n, err := ms.db.Collection(usersCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
