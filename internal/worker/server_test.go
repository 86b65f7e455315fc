package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/imagestore"
	"github.com/easelhq/easel/internal/queue"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) ReadObject(_ context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", objectKey)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStorage) WriteObject(_ context.Context, objectKey string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStorage) get(objectKey string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey]
	return data, ok
}

func newTestWorker(store imagestore.Store, objects *fakeStorage) *Server {
	return &Server{
		logger:  log.New(io.Discard, "", 0),
		sem:     make(chan struct{}, 1),
		storage: objects,
		store:   store,
		metrics: newMetrics(),
		tracer:  otel.Tracer("easel/worker-test"),
	}
}

func workerPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 3), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func seedImage(t *testing.T, store imagestore.Store, objects *fakeStorage, id, name string, width, height int) domain.ImageRecord {
	t.Helper()
	now := time.Now().UTC()
	rec := domain.ImageRecord{
		ID:        id,
		Name:      name,
		ObjectKey: "sources/" + id,
		MIMEType:  "image/png",
		Width:     width,
		Height:    height,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SaveImage(context.Background(), rec); err != nil {
		t.Fatalf("seed image: %v", err)
	}
	if err := objects.WriteObject(context.Background(), rec.ObjectKey, workerPNG(t, width, height), "image/png"); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	return rec
}

func seedExport(t *testing.T, store imagestore.Store, exportID, imageID string, opts domain.EditOptions, template string) queue.ExportRenderPayload {
	t.Helper()
	now := time.Now().UTC()
	if err := store.CreateExport(context.Background(), domain.ExportJob{
		ID:        exportID,
		ImageID:   imageID,
		Status:    domain.ExportStatusQueued,
		Options:   opts,
		Template:  template,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed export: %v", err)
	}
	return queue.ExportRenderPayload{
		ExportID:    exportID,
		ImageID:     imageID,
		Options:     opts,
		Template:    template,
		RequestedAt: now,
	}
}

func TestHandleExportRenderSucceeds(t *testing.T) {
	store := imagestore.NewMemoryStore()
	objects := newFakeStorage()
	s := newTestWorker(store, objects)

	seedImage(t, store, objects, "img_1", "sunset", 64, 48)
	opts := domain.DefaultOptions()
	opts.Format = domain.FormatJPEG
	opts.TargetWidth = 32
	opts.TargetHeight = 24
	payload := seedExport(t, store, "exp_1", "img_1", opts, "")

	task, err := queue.NewExportRenderTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleExportRender(context.Background(), task); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, ok, err := store.GetExport(context.Background(), "exp_1")
	if err != nil || !ok {
		t.Fatalf("load export: ok=%v err=%v", ok, err)
	}
	if job.Status != domain.ExportStatusSucceeded {
		t.Fatalf("expected succeeded, got %q error=%q", job.Status, job.Error)
	}
	if job.OutputKey != "outputs/sunset-32x24.jpg" {
		t.Fatalf("unexpected output key: %q", job.OutputKey)
	}

	data, found := objects.get(job.OutputKey)
	if !found {
		t.Fatal("expected encoded output in object storage")
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid jpeg: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("expected 32x24 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestHandleExportRenderSkipsUnparseablePayload(t *testing.T) {
	s := newTestWorker(imagestore.NewMemoryStore(), newFakeStorage())

	task := asynq.NewTask(queue.TypeExportRender, []byte("not json"))
	err := s.handleExportRender(context.Background(), task)
	if err == nil {
		t.Fatal("expected an error for a bad payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleExportRenderMissingImageSkipsRetry(t *testing.T) {
	store := imagestore.NewMemoryStore()
	s := newTestWorker(store, newFakeStorage())

	payload := seedExport(t, store, "exp_gone", "img_missing", domain.DefaultOptions(), "")
	task, err := queue.NewExportRenderTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	err = s.handleExportRender(context.Background(), task)
	if err == nil {
		t.Fatal("expected an error for a missing image")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a deleted image, got %v", err)
	}

	job, ok, _ := store.GetExport(context.Background(), "exp_gone")
	if !ok || job.Status != domain.ExportStatusFailed {
		t.Fatalf("expected failed export, got %+v", job)
	}
	if job.Error == "" {
		t.Fatal("expected the failure message to be recorded")
	}
}

func TestHandleExportRenderRetriesMissingSource(t *testing.T) {
	store := imagestore.NewMemoryStore()
	objects := newFakeStorage()
	s := newTestWorker(store, objects)

	now := time.Now().UTC()
	if err := store.SaveImage(context.Background(), domain.ImageRecord{
		ID:        "img_2",
		Name:      "harbor",
		ObjectKey: "sources/img_2",
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed image: %v", err)
	}
	payload := seedExport(t, store, "exp_2", "img_2", domain.DefaultOptions(), "")

	task, err := queue.NewExportRenderTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	err = s.handleExportRender(context.Background(), task)
	if err == nil {
		t.Fatal("expected an error for a missing source object")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("a missing source object should stay retryable")
	}

	job, ok, _ := store.GetExport(context.Background(), "exp_2")
	if !ok || job.Status != domain.ExportStatusFailed {
		t.Fatalf("expected failed export, got %+v", job)
	}
}

func TestHandleExportRenderAppliesTemplate(t *testing.T) {
	store := imagestore.NewMemoryStore()
	objects := newFakeStorage()
	s := newTestWorker(store, objects)

	seedImage(t, store, objects, "img_3", "beach day", 40, 40)
	opts := domain.DefaultOptions()
	payload := seedExport(t, store, "exp_3", "img_3", opts, "{name}-q{q}")

	task, err := queue.NewExportRenderTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleExportRender(context.Background(), task); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, ok, _ := store.GetExport(context.Background(), "exp_3")
	if !ok {
		t.Fatal("expected export record")
	}
	if job.OutputKey != "outputs/beach_day-q85.png" {
		t.Fatalf("unexpected output key: %q", job.OutputKey)
	}
}
