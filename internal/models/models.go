package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FileType enumerates the kinds of entries the service stores.
type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeFile   FileType = "file"
	FileTypeImage  FileType = "image"
)

// ValidFileType reports whether t is one of the accepted upload types.
func ValidFileType(t FileType) bool {
	switch t {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return true
	}
	return false
}

// File represents a stored entry: a folder, a regular file, or an image.
// ParentID is the zero ObjectID for top-level entries. LocalPath is set
// only for file and image entries and points at the blob backend location.
type File struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Name      string             `bson:"name" json:"name"`
	Type      FileType           `bson:"type" json:"type"`
	ParentID  primitive.ObjectID `bson:"parentId" json:"parentId"`
	IsPublic  bool               `bson:"isPublic" json:"isPublic"`
	LocalPath string             `bson:"localPath,omitempty" json:"localPath,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// IsRoot reports whether the file sits at the top level.
func (f *File) IsRoot() bool {
	return f.ParentID.IsZero()
}

// User is an account able to own files. Password holds the bcrypt hash,
// never the clear text, and is excluded from JSON output.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password" json:"-"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
