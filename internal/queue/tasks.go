package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/easelhq/easel/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeExportRender = "export:render"

// ExportRenderPayload carries everything the worker needs to render
// one export without consulting the session that produced it.
type ExportRenderPayload struct {
	ExportID    string             `json:"export_id"`
	ImageID     string             `json:"image_id"`
	Options     domain.EditOptions `json:"options"`
	Template    string             `json:"template,omitempty"`
	RequestedAt time.Time          `json:"requested_at"`
}

func NewExportRenderTask(payload ExportRenderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal export payload: %w", err)
	}
	return asynq.NewTask(TypeExportRender, body), nil
}

func ParseExportRenderPayload(task *asynq.Task) (ExportRenderPayload, error) {
	var payload ExportRenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExportRenderPayload{}, fmt.Errorf("unmarshal export payload: %w", err)
	}
	return payload, nil
}
