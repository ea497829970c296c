package service

import (
	"context"
	"io"

	"github.com/noah-isme/classdesk-api/pkg/cloudinary"
	"github.com/noah-isme/classdesk-api/pkg/sendgrid"
)

// BlobStorage abstracts the external storage gateway holding submission
// artifacts and per-assignment folders.
type BlobStorage interface {
	EnsureFolder(ctx context.Context, name, parent string) (string, error)
	Upload(ctx context.Context, reader io.Reader, name, folder string) (cloudinary.StoredFile, error)
	Download(ctx context.Context, fileURL string) (io.ReadCloser, error)
	Delete(ctx context.Context, fileID string) error
}

// Mailer abstracts the outbound email gateway.
type Mailer interface {
	Send(ctx context.Context, msg sendgrid.Message) error
}

// assignmentFolderParent is the storage folder that groups all
// per-assignment folders.
const assignmentFolderParent = "assignments"
