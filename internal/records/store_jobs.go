package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const watermarkJobColumns = "job_id, source_bucket, source_key, watermark_type, preset_id, status, output_key, output_uri, api_job_id, wmid, error, created_at, updated_at"

// CreateWatermarkJob inserts a watermark job record only when no record
// exists for the identifier. Returns ErrAlreadyExists otherwise.
func (s *Store) CreateWatermarkJob(ctx context.Context, job *WatermarkJob) error {
	if job == nil {
		return errors.New("watermark job is nil")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO watermark_jobs (`+watermarkJobColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO NOTHING`,
		job.JobID,
		job.SourceBucket,
		job.SourceKey,
		job.WatermarkType,
		job.PresetID,
		job.Status,
		job.OutputKey,
		job.OutputURI,
		job.APIJobID,
		job.WMID,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create watermark job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("watermark job %s: %w", job.JobID, ErrAlreadyExists)
	}
	return nil
}

// GetWatermarkJob fetches a watermark job record by identifier.
func (s *Store) GetWatermarkJob(ctx context.Context, jobID string) (*WatermarkJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watermarkJobColumns+` FROM watermark_jobs WHERE job_id = ?`, jobID)
	var job WatermarkJob
	err := row.Scan(
		&job.JobID,
		&job.SourceBucket,
		&job.SourceKey,
		&job.WatermarkType,
		&job.PresetID,
		&job.Status,
		&job.OutputKey,
		&job.OutputURI,
		&job.APIJobID,
		&job.WMID,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("watermark job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark job: %w", err)
	}
	return &job, nil
}

// UpdateWatermarkJob records the submission outcome for an existing job.
func (s *Store) UpdateWatermarkJob(ctx context.Context, jobID, apiJobID, wmid, status, errorMessage, updatedAt string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE watermark_jobs SET api_job_id = ?, wmid = ?, status = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		apiJobID,
		wmid,
		status,
		errorMessage,
		updatedAt,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("update watermark job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("watermark job %s: %w", jobID, ErrNotFound)
	}
	return nil
}
