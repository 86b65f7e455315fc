package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ExportStatusCreated    = "created"
	ExportStatusQueued     = "queued"
	ExportStatusProcessing = "processing"
	ExportStatusSucceeded  = "succeeded"
	ExportStatusFailed     = "failed"
)

// ExportJob is one queued render: composite an image with a frozen set
// of edit options and write the encoded result to object storage.
type ExportJob struct {
	ID        string      `json:"id"`
	ImageID   string      `json:"image_id"`
	Status    string      `json:"status"`
	Options   EditOptions `json:"options"`
	Template  string      `json:"template,omitempty"`
	OutputKey string      `json:"output_key,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type ExportItem struct {
	ImageID  string      `json:"image_id"`
	Options  EditOptions `json:"options"`
	Template string      `json:"template,omitempty"`
}

type CreateExportRequest struct {
	Items []ExportItem `json:"items"`
}

func (r CreateExportRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("items must contain at least one export")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.ImageID) == "" {
			return fmt.Errorf("items[%d].image_id is required", i)
		}
		if err := item.Options.Validate(); err != nil {
			return fmt.Errorf("items[%d].options: %w", i, err)
		}
	}
	return nil
}
