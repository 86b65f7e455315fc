package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ImageRecord is one row in the image library. Pixel data lives in
// object storage under ObjectKey; the record carries only metadata.
type ImageRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ObjectKey string    `json:"object_key"`
	MIMEType  string    `json:"mime_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateUploadRequest struct {
	Name string `json:"name"`
}

func (r CreateUploadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

type CreateSessionRequest struct {
	ImageID string `json:"image_id"`
}

func (r CreateSessionRequest) Validate() error {
	if strings.TrimSpace(r.ImageID) == "" {
		return errors.New("image_id is required")
	}
	return nil
}

var allowedSourceMIMETypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

func ValidateSourceMIMEType(mimeType string) error {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if normalized == "" {
		return errors.New("mime_type is required")
	}
	if _, ok := allowedSourceMIMETypes[normalized]; !ok {
		return fmt.Errorf("unsupported source mime_type: %s", mimeType)
	}
	return nil
}
