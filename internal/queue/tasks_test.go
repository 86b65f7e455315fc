package queue

import (
	"testing"
	"time"

	"github.com/easelhq/easel/internal/domain"
)

func TestExportRenderTaskRoundTrip(t *testing.T) {
	opts := domain.DefaultOptions()
	opts.TargetWidth = 800
	opts.TargetHeight = 600
	opts.Format = domain.FormatJPEG

	payload := ExportRenderPayload{
		ExportID:    "exp_123",
		ImageID:     "img_456",
		Options:     opts,
		Template:    "{name}-{width}x{height}",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewExportRenderTask(payload)
	if err != nil {
		t.Fatalf("NewExportRenderTask returned error: %v", err)
	}
	if task.Type() != TypeExportRender {
		t.Fatalf("expected task type %q, got %q", TypeExportRender, task.Type())
	}

	parsed, err := ParseExportRenderPayload(task)
	if err != nil {
		t.Fatalf("ParseExportRenderPayload returned error: %v", err)
	}

	if parsed.ExportID != payload.ExportID {
		t.Fatalf("expected export_id %q, got %q", payload.ExportID, parsed.ExportID)
	}
	if parsed.Options != opts {
		t.Fatalf("expected options round-trip, got %+v", parsed.Options)
	}
}
