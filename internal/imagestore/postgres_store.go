package imagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easelhq/easel/internal/domain"
	_ "github.com/lib/pq"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	object_key TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	size_bytes BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exports (
	id TEXT PRIMARY KEY,
	image_id TEXT NOT NULL,
	status TEXT NOT NULL,
	options JSONB NOT NULL,
	template TEXT NOT NULL DEFAULT '',
	output_key TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the durable Store backing deployed instances.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure imagestore schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveImage(ctx context.Context, rec domain.ImageRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO images (id, name, object_key, mime_type, width, height, size_bytes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     object_key = EXCLUDED.object_key,
		     mime_type = EXCLUDED.mime_type,
		     width = EXCLUDED.width,
		     height = EXCLUDED.height,
		     size_bytes = EXCLUDED.size_bytes,
		     updated_at = EXCLUDED.updated_at`,
		rec.ID,
		rec.Name,
		rec.ObjectKey,
		rec.MIMEType,
		rec.Width,
		rec.Height,
		rec.SizeBytes,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id string) (domain.ImageRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, object_key, mime_type, width, height, size_bytes, created_at, updated_at
		 FROM images
		 WHERE id = $1`,
		id,
	)

	var rec domain.ImageRecord
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.ObjectKey,
		&rec.MIMEType,
		&rec.Width,
		&rec.Height,
		&rec.SizeBytes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.ImageRecord{}, false, nil
		}
		return domain.ImageRecord{}, false, fmt.Errorf("query image: %w", err)
	}

	return rec, true, nil
}

func (s *PostgresStore) ListImages(ctx context.Context) ([]domain.ImageRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, object_key, mime_type, width, height, size_bytes, created_at, updated_at
		 FROM images
		 ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var records []domain.ImageRecord
	for rows.Next() {
		var rec domain.ImageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.ObjectKey,
			&rec.MIMEType,
			&rec.Width,
			&rec.Height,
			&rec.SizeBytes,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if affected == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (s *PostgresStore) CreateExport(ctx context.Context, job domain.ExportJob) error {
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal export options: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO exports (id, image_id, status, options, template, output_key, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID,
		job.ImageID,
		job.Status,
		optionsJSON,
		job.Template,
		job.OutputKey,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetExport(ctx context.Context, id string) (domain.ExportJob, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, image_id, status, options, template, output_key, error, created_at, updated_at
		 FROM exports
		 WHERE id = $1`,
		id,
	)

	var (
		job         domain.ExportJob
		optionsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ImageID,
		&job.Status,
		&optionsJSON,
		&job.Template,
		&job.OutputKey,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.ExportJob{}, false, nil
		}
		return domain.ExportJob{}, false, fmt.Errorf("query export: %w", err)
	}

	if err := json.Unmarshal(optionsJSON, &job.Options); err != nil {
		return domain.ExportJob{}, false, fmt.Errorf("unmarshal export options: %w", err)
	}

	return job, true, nil
}

func (s *PostgresStore) UpdateExportStatus(ctx context.Context, id, status string) (domain.ExportJob, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE exports
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("update export status: %w", err)
	}

	job, ok, err := s.GetExport(ctx, id)
	if err != nil {
		return domain.ExportJob{}, err
	}
	if !ok {
		return domain.ExportJob{}, ErrExportNotFound
	}

	return job, nil
}

func (s *PostgresStore) CompleteExport(ctx context.Context, id, status, outputKey, message string) (domain.ExportJob, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE exports
		 SET status = $1, output_key = $2, error = $3, updated_at = $4
		 WHERE id = $5`,
		status,
		outputKey,
		message,
		now,
		id,
	)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("complete export: %w", err)
	}

	job, ok, err := s.GetExport(ctx, id)
	if err != nil {
		return domain.ExportJob{}, err
	}
	if !ok {
		return domain.ExportJob{}, ErrExportNotFound
	}

	return job, nil
}
