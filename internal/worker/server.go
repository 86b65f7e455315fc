// Package worker consumes export render jobs from the queue: it loads
// the stored source image, composites it under the frozen edit options
// and writes the encoded output back to object storage.
package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/easelhq/easel/internal/codec"
	"github.com/easelhq/easel/internal/compose"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/filename"
	"github.com/easelhq/easel/internal/imagestore"
	"github.com/easelhq/easel/internal/queue"
	"github.com/easelhq/easel/internal/storage"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger  *log.Logger
	server  *asynq.Server
	sem     chan struct{}
	storage objectStorage
	store   imagestore.Store
	metrics *metrics
	tracer  trace.Tracer
}

type objectStorage interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient objectStorage,
	store imagestore.Store,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("image store is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:     make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		storage: storageClient,
		store:   store,
		metrics: newMetrics(),
		tracer:  otel.Tracer("easel/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeExportRender, s.handleExportRender)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleExportRender(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.ExportStatusFailed

	payload, err := queue.ParseExportRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.export_render", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("export.id", payload.ExportID),
		attribute.String("export.image_id", payload.ImageID),
		attribute.String("export.format", payload.Options.Format),
	)
	defer span.End()
	defer func() {
		s.metrics.exportDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.exportsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeExports.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeExports.Dec()
	}()

	s.logger.Printf(
		"Rendering... export_id=%s image_id=%s format=%s",
		payload.ExportID,
		payload.ImageID,
		payload.Options.Format,
	)

	s.updateExportStatus(ctx, payload.ExportID, domain.ExportStatusProcessing)

	outputKey, outputBytes, err := s.renderExport(ctx, payload)
	if err != nil {
		s.completeExport(ctx, payload.ExportID, domain.ExportStatusFailed, "", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return fmt.Errorf("render export: %w", err)
	}

	s.logger.Printf("Rendered export_id=%s output_key=%s bytes=%d", payload.ExportID, outputKey, outputBytes)
	s.completeExport(ctx, payload.ExportID, domain.ExportStatusSucceeded, outputKey, "")
	s.metrics.outputBytesTotal.Add(float64(outputBytes))

	outcome = domain.ExportStatusSucceeded
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) renderExport(ctx context.Context, payload queue.ExportRenderPayload) (string, int, error) {
	rec, ok, err := s.store.GetImage(ctx, payload.ImageID)
	if err != nil {
		return "", 0, fmt.Errorf("load image record: %w", err)
	}
	if !ok {
		// The image was deleted after the export was queued.
		return "", 0, fmt.Errorf("image %s not found: %w", payload.ImageID, asynq.SkipRetry)
	}

	data, err := s.storage.ReadObject(ctx, rec.ObjectKey)
	if err != nil {
		return "", 0, fmt.Errorf("fetch source object %s: %w", rec.ObjectKey, err)
	}

	src, err := compose.DecodeSource(data)
	if err != nil {
		return "", 0, fmt.Errorf("decode source: %v: %w", err, asynq.SkipRetry)
	}

	img, err := compose.Composite(src, payload.Options)
	if err != nil {
		return "", 0, fmt.Errorf("composite: %w", err)
	}

	encoded, err := codec.Encode(img, payload.Options.Format, payload.Options.Quality)
	if err != nil {
		return "", 0, fmt.Errorf("encode %s: %w", payload.Options.Format, err)
	}

	bounds := img.Bounds()
	outName := filename.Render(payload.Template, filename.Values{
		Name:    rec.Name,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Quality: payload.Options.Quality,
		Format:  payload.Options.Format,
		Date:    payload.RequestedAt,
	})
	outputKey := storage.OutputKey(outName)
	if err := s.storage.WriteObject(ctx, outputKey, encoded, domain.MIMEType(payload.Options.Format)); err != nil {
		return "", 0, fmt.Errorf("store output %s: %w", outputKey, err)
	}

	return outputKey, len(encoded), nil
}

func (s *Server) updateExportStatus(ctx context.Context, exportID, status string) {
	if _, err := s.store.UpdateExportStatus(ctx, exportID, status); err != nil {
		s.logger.Printf("export status update failed export_id=%s status=%s err=%v", exportID, status, err)
	}
}

func (s *Server) completeExport(ctx context.Context, exportID, status, outputKey, message string) {
	if _, err := s.store.CompleteExport(ctx, exportID, status, outputKey, message); err != nil {
		s.logger.Printf("export completion update failed export_id=%s status=%s err=%v", exportID, status, err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
