package imagestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/easelhq/easel/internal/domain"
)

// MemoryStore is the in-process Store used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	images  map[string]domain.ImageRecord
	exports map[string]domain.ExportJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		images:  make(map[string]domain.ImageRecord),
		exports: make(map[string]domain.ExportJob),
	}
}

func (s *MemoryStore) SaveImage(_ context.Context, rec domain.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[rec.ID] = rec
	return nil
}

func (s *MemoryStore) GetImage(_ context.Context, id string) (domain.ImageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.images[id]
	return rec, ok, nil
}

func (s *MemoryStore) ListImages(_ context.Context) ([]domain.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ImageRecord, 0, len(s.images))
	for _, rec := range s.images {
		records = append(records, rec)
	}
	// Newest first, ties broken by ID so the order is stable.
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *MemoryStore) DeleteImage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return ErrImageNotFound
	}
	delete(s.images, id)
	return nil
}

func (s *MemoryStore) CreateExport(_ context.Context, job domain.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[job.ID] = job
	return nil
}

func (s *MemoryStore) GetExport(_ context.Context, id string) (domain.ExportJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.exports[id]
	return job, ok, nil
}

func (s *MemoryStore) UpdateExportStatus(_ context.Context, id, status string) (domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.exports[id]
	if !ok {
		return domain.ExportJob{}, ErrExportNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.exports[id] = job
	return job, nil
}

func (s *MemoryStore) CompleteExport(_ context.Context, id, status, outputKey, message string) (domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.exports[id]
	if !ok {
		return domain.ExportJob{}, ErrExportNotFound
	}

	job.Status = status
	job.OutputKey = outputKey
	job.Error = message
	job.UpdatedAt = time.Now().UTC()
	s.exports[id] = job
	return job, nil
}
