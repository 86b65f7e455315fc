// Package imagestore persists the image library catalog and export
// jobs. Pixel data never passes through here; it lives in object
// storage and the records carry only keys and metadata.
package imagestore

import (
	"context"
	"errors"

	"github.com/easelhq/easel/internal/domain"
)

var (
	ErrImageNotFound  = errors.New("image not found")
	ErrExportNotFound = errors.New("export not found")
)

// ImageStore is the catalog of uploaded images.
type ImageStore interface {
	SaveImage(ctx context.Context, rec domain.ImageRecord) error
	GetImage(ctx context.Context, id string) (domain.ImageRecord, bool, error)
	ListImages(ctx context.Context) ([]domain.ImageRecord, error)
	DeleteImage(ctx context.Context, id string) error
}

// ExportStore tracks export jobs across the API/worker boundary.
type ExportStore interface {
	CreateExport(ctx context.Context, job domain.ExportJob) error
	GetExport(ctx context.Context, id string) (domain.ExportJob, bool, error)
	UpdateExportStatus(ctx context.Context, id, status string) (domain.ExportJob, error)
	// CompleteExport records the terminal state of a job: the output
	// object key on success, the failure message otherwise.
	CompleteExport(ctx context.Context, id, status, outputKey, message string) (domain.ExportJob, error)
}

// Store is the combined persistence surface both binaries wire.
type Store interface {
	ImageStore
	ExportStore
}
