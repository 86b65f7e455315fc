// Package api exposes the editing service over HTTP: the image
// library, interactive edit sessions with live previews, background
// removal and export delivery.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/easelhq/easel/internal/bgremove"
	"github.com/easelhq/easel/internal/compose"
	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/editor"
	"github.com/easelhq/easel/internal/filename"
	"github.com/easelhq/easel/internal/id"
	"github.com/easelhq/easel/internal/imagestore"
	"github.com/easelhq/easel/internal/preview"
	"github.com/easelhq/easel/internal/queue"
	"github.com/easelhq/easel/internal/storage"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxImageBytes = 64 << 20

type Server struct {
	logger                *log.Logger
	store                 imagestore.Store
	storage               objectStorage
	queueClient           queueEnqueuer
	removal               backgroundRemover
	sessions              *editor.Manager
	executor              preview.Executor
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	dragDebounce          time.Duration
	editDebounce          time.Duration
	presignTTL            time.Duration
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueExportRender(ctx context.Context, payload queue.ExportRenderPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
}

type backgroundRemover interface {
	Configured() bool
	Remove(ctx context.Context, image []byte) ([]byte, error)
}

func NewServer(
	logger *log.Logger,
	sessionCfg config.SessionConfig,
	store imagestore.Store,
	objStorage objectStorage,
	queueClient queueEnqueuer,
	removal backgroundRemover,
	rateLimiter RateLimiter,
	rateLimitUserIDHeader string,
	presignTTL time.Duration,
) *Server {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if objStorage == nil {
		objStorage = unavailableObjectStorage{}
	}

	sessions := editor.NewManager(sessionCfg.TTL, logger)
	s := &Server{
		logger:                logger,
		store:                 store,
		storage:               objStorage,
		queueClient:           queueClient,
		removal:               removal,
		sessions:              sessions,
		executor:              preview.NewPool(sessionCfg.RenderWorkers),
		rateLimiter:           rateLimiter,
		rateLimitUserIDHeader: rateLimitUserIDHeader,
		dragDebounce:          sessionCfg.DragDebounce,
		editDebounce:          sessionCfg.EditDebounce,
		presignTTL:            presignTTL,
		metrics:               newMetrics(func() float64 { return float64(sessions.Len()) }),
		tracer:                otel.Tracer("easel/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ReadObject(context.Context, string) ([]byte, error) {
	return nil, errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) WriteObject(context.Context, string, []byte, string) error {
	return errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) RemoveObject(context.Context, string) error {
	return errors.New("object storage is unavailable")
}

// Handler wraps the route mux in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

// Sessions exposes the session registry so the binary can run the
// idle-expiry sweeper.
func (s *Server) Sessions() *editor.Manager {
	return s.sessions
}

// Close shuts every live session down.
func (s *Server) Close() {
	s.sessions.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("GET /v1/presets", s.handleListPresets)

	s.mux.HandleFunc("POST /v1/images", s.handleUploadImage)
	s.mux.HandleFunc("GET /v1/images", s.handleListImages)
	s.mux.HandleFunc("DELETE /v1/images/{id}", s.handleDeleteImage)
	s.mux.HandleFunc("POST /v1/uploads", s.handleCreateUpload)
	s.mux.HandleFunc("POST /v1/images/{id}/finalize", s.handleFinalizeUpload)

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/actions", s.handleSessionAction)
	s.mux.HandleFunc("POST /v1/sessions/{id}/tool", s.handleSessionTool)
	s.mux.HandleFunc("POST /v1/sessions/{id}/pointer", s.handleSessionPointer)
	s.mux.HandleFunc("PUT /v1/sessions/{id}/viewport", s.handleSessionViewport)
	s.mux.HandleFunc("POST /v1/sessions/{id}/undo", s.handleSessionUndo)
	s.mux.HandleFunc("POST /v1/sessions/{id}/redo", s.handleSessionRedo)
	s.mux.HandleFunc("POST /v1/sessions/{id}/history/jump", s.handleSessionJump)
	s.mux.HandleFunc("GET /v1/sessions/{id}/preview", s.handleSessionPreview)
	s.mux.HandleFunc("POST /v1/sessions/{id}/background/remove", s.handleRemoveBackground)
	s.mux.HandleFunc("POST /v1/sessions/{id}/export", s.handleSessionExport)

	s.mux.HandleFunc("POST /v1/exports", s.handleCreateExports)
	s.mux.HandleFunc("GET /v1/exports/{id}", s.handleGetExport)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": domain.ListPresets()})
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	mimeType := strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0])
	if err := domain.ValidateSourceMIMEType(mimeType); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is empty"})
		return
	}
	if len(data) > maxImageBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image exceeds the upload size limit"})
		return
	}

	src, err := compose.DecodeSource(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "source image cannot be decoded"})
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "image"
	}

	now := time.Now().UTC()
	imageID := id.New("img")
	objectKey := storage.SourceKey(imageID)
	if err := s.storage.WriteObject(r.Context(), objectKey, data, mimeType); err != nil {
		s.logger.Printf("store upload failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store image"})
		return
	}

	rec := domain.ImageRecord{
		ID:        imageID,
		Name:      name,
		ObjectKey: objectKey,
		MIMEType:  mimeType,
		Width:     src.Width,
		Height:    src.Height,
		SizeBytes: int64(len(data)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveImage(r.Context(), rec); err != nil {
		s.logger.Printf("save image record failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save image"})
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListImages(r.Context())
	if err != nil {
		s.logger.Printf("list images failed err=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list images"})
		return
	}
	if records == nil {
		records = []domain.ImageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": records})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := r.PathValue("id")

	rec, ok, err := s.store.GetImage(r.Context(), imageID)
	if err != nil {
		s.logger.Printf("fetch image failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}

	if err := s.store.DeleteImage(r.Context(), imageID); err != nil {
		if errors.Is(err, imagestore.ErrImageNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
			return
		}
		s.logger.Printf("delete image failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete image"})
		return
	}

	// The record is gone; an orphaned blob is the worst case.
	if err := s.storage.RemoveObject(r.Context(), rec.ObjectKey); err != nil {
		s.logger.Printf("source object cleanup failed image_id=%s err=%v", imageID, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	imageID := id.New("img")
	objectKey := storage.SourceKey(imageID)

	url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
	if err != nil {
		s.logger.Printf("generate presigned url failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
		return
	}

	// Dimensions and size are filled in at finalize, once the client
	// has pushed the bytes.
	rec := domain.ImageRecord{
		ID:        imageID,
		Name:      req.Name,
		ObjectKey: objectKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveImage(r.Context(), rec); err != nil {
		s.logger.Printf("save image record failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save image"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"image_id":          imageID,
		"object_key":        objectKey,
		"presigned_put_url": url,
		"finalize_url":      fmt.Sprintf("/v1/images/%s/finalize", imageID),
	})
}

func (s *Server) handleFinalizeUpload(w http.ResponseWriter, r *http.Request) {
	imageID := r.PathValue("id")

	rec, ok, err := s.store.GetImage(r.Context(), imageID)
	if err != nil {
		s.logger.Printf("fetch image failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}

	exists, err := s.storage.ObjectExists(r.Context(), rec.ObjectKey)
	if err != nil {
		s.logger.Printf("source object check failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "source object check failed"})
		return
	}
	if !exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("source object is missing: %s", rec.ObjectKey)})
		return
	}

	data, err := s.storage.ReadObject(r.Context(), rec.ObjectKey)
	if err != nil {
		s.logger.Printf("read source object failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read source object"})
		return
	}

	src, err := compose.DecodeSource(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "source image cannot be decoded"})
		return
	}

	rec.MIMEType = "image/" + src.Format
	rec.Width = src.Width
	rec.Height = src.Height
	rec.SizeBytes = int64(len(data))
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveImage(r.Context(), rec); err != nil {
		s.logger.Printf("save image record failed image_id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save image"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rec, ok, err := s.store.GetImage(r.Context(), req.ImageID)
	if err != nil {
		s.logger.Printf("fetch image failed image_id=%s err=%v", req.ImageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}

	data, err := s.storage.ReadObject(r.Context(), rec.ObjectKey)
	if err != nil {
		s.logger.Printf("read source object failed image_id=%s err=%v", rec.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load source image"})
		return
	}

	src, err := compose.DecodeSource(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "source image cannot be decoded"})
		return
	}

	sess := editor.NewSession(id.New("sess"), rec.ID, src, s.executor, previewObserver{metrics: s.metrics}, s.dragDebounce, s.editDebounce)
	s.sessions.Put(sess)

	writeJSON(w, http.StatusCreated, sess.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var action domain.EditAction
	if err := decodeJSON(r, &action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := sess.ApplyAction(action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sess.State())
}

type setToolRequest struct {
	Tool string `json:"tool"`
}

func (s *Server) handleSessionTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req setToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := sess.SetTool(req.Tool); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleSessionPointer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var ev editor.PointerEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := sess.HandlePointer(ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleSessionViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var vp editor.Viewport
	if err := decodeJSON(r, &vp); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"viewport": sess.SetViewport(vp)})
}

func (s *Server) handleSessionUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	applied := sess.Undo()
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "state": sess.State()})
}

func (s *Server) handleSessionRedo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	applied := sess.Redo()
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "state": sess.State()})
}

type jumpRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSessionJump(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req jumpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	applied := sess.JumpTo(req.Index)
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "state": sess.State()})
}

func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	render, err := sess.EnsureRender(r.Context())
	if render == nil {
		if err == nil {
			err = errors.New("no preview available")
		}
		s.logger.Printf("preview render failed session_id=%s err=%v", sess.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "preview render failed"})
		return
	}

	w.Header().Set("Content-Type", domain.MIMEType(render.Format))
	w.Header().Set("X-Easel-Render-Seq", strconv.FormatUint(render.Seq, 10))
	if err != nil {
		// Serving the last good preview while the newest recompute sits
		// in the error slot.
		w.Header().Set("X-Easel-Render-Stale", "1")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(render.Data)
}

func (s *Server) handleRemoveBackground(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if s.removal == nil || !s.removal.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "background removal is not configured"})
		return
	}

	source, err := sess.SourcePNG()
	if err != nil {
		s.logger.Printf("encode source failed session_id=%s err=%v", sess.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode source image"})
		return
	}

	matted, err := s.removal.Remove(r.Context(), source)
	if err != nil {
		if errors.Is(err, bgremove.ErrNotConfigured) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "background removal is not configured"})
			return
		}
		s.logger.Printf("background removal failed session_id=%s err=%v", sess.ID, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "background removal failed"})
		return
	}

	src, err := compose.DecodeSource(matted)
	if err != nil {
		s.logger.Printf("background removal returned undecodable image session_id=%s err=%v", sess.ID, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "background removal returned an invalid image"})
		return
	}

	sess.ReplaceSource(src, "Remove Background")
	writeJSON(w, http.StatusOK, sess.State())
}

type exportRequest struct {
	Template string `json:"template"`
}

func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	deliver := r.URL.Query().Get("deliver")
	if deliver == "" {
		deliver = "download"
	}
	if deliver != "download" && deliver != "store" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deliver must be download or store"})
		return
	}

	var req exportRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	render, err := sess.RenderExport(r.Context())
	if err != nil {
		s.logger.Printf("export render failed session_id=%s err=%v", sess.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export render failed"})
		return
	}

	name := "image"
	if rec, found, err := s.store.GetImage(r.Context(), sess.ImageID); err == nil && found {
		name = rec.Name
	}

	outName := filename.Render(req.Template, filename.Values{
		Name:    name,
		Width:   render.Width,
		Height:  render.Height,
		Quality: sess.Options().Quality,
		Format:  render.Format,
	})

	if deliver == "store" {
		key := storage.OutputKey(outName)
		if err := s.storage.WriteObject(r.Context(), key, render.Data, domain.MIMEType(render.Format)); err != nil {
			s.logger.Printf("store export failed session_id=%s err=%v", sess.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store export"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"object_key": key,
			"format":     render.Format,
			"width":      render.Width,
			"height":     render.Height,
			"bytes":      len(render.Data),
		})
		return
	}

	w.Header().Set("Content-Type", domain.MIMEType(render.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(render.Data)
}

func (s *Server) handleCreateExports(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateExportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Verify the whole batch before enqueuing any of it.
	for i, item := range req.Items {
		_, ok, err := s.store.GetImage(r.Context(), item.ImageID)
		if err != nil {
			s.logger.Printf("fetch image failed image_id=%s err=%v", item.ImageID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("items[%d]: image %s not found", i, item.ImageID)})
			return
		}
	}

	now := time.Now().UTC()
	results := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		exportID := id.New("exp")
		job := domain.ExportJob{
			ID:        exportID,
			ImageID:   item.ImageID,
			Status:    domain.ExportStatusCreated,
			Options:   item.Options,
			Template:  item.Template,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateExport(r.Context(), job); err != nil {
			s.logger.Printf("create export failed image_id=%s err=%v", item.ImageID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create export"})
			return
		}

		taskInfo, err := s.queueClient.EnqueueExportRender(r.Context(), queue.ExportRenderPayload{
			ExportID:    exportID,
			ImageID:     item.ImageID,
			Options:     item.Options,
			Template:    item.Template,
			RequestedAt: now,
		})
		if err != nil {
			s.logger.Printf("enqueue export failed export_id=%s err=%v", exportID, err)
			if _, recordErr := s.store.CompleteExport(r.Context(), exportID, domain.ExportStatusFailed, "", "enqueue failed"); recordErr != nil {
				s.logger.Printf("record enqueue failure failed export_id=%s err=%v", exportID, recordErr)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue export"})
			return
		}

		s.metrics.exportsEnqueued.WithLabelValues(taskInfo.Queue).Inc()
		if _, err := s.store.UpdateExportStatus(r.Context(), exportID, domain.ExportStatusQueued); err != nil {
			s.logger.Printf("update export status failed export_id=%s err=%v", exportID, err)
		}

		results = append(results, map[string]any{
			"export_id": exportID,
			"image_id":  item.ImageID,
			"status":    domain.ExportStatusQueued,
			"task_id":   taskInfo.ID,
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"exports": results})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	exportID := r.PathValue("id")

	job, ok, err := s.store.GetExport(r.Context(), exportID)
	if err != nil {
		s.logger.Printf("fetch export failed export_id=%s err=%v", exportID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load export"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "export not found"})
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
