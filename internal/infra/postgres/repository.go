package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, user_id, video_key, archive_key, status,
	interval_seconds, scale_factor, format, total_steps, frame_count,
	file_size, video_duration, attempt, max_attempts,
	error_message, error_category, created_at, updated_at, completed_at`

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `INSERT INTO extraction_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ArchiveKey, string(job.Status),
		job.IntervalSeconds, job.ScaleFactor, string(job.Format), job.TotalSteps, job.FrameCount,
		job.FileSize, job.VideoDuration, job.Attempt, job.MaxAttempts,
		job.ErrorMessage, job.ErrorCategory, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE extraction_jobs SET
			status=$2, archive_key=$3, total_steps=$4, frame_count=$5,
			video_duration=$6, attempt=$7, error_message=$8, error_category=$9,
			updated_at=$10, completed_at=$11
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ArchiveKey, job.TotalSteps, job.FrameCount,
		job.VideoDuration, job.Attempt, job.ErrorMessage, job.ErrorCategory,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM extraction_jobs WHERE id=$1`

	job := &entity.Job{}
	var status, format string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ArchiveKey, &status,
		&job.IntervalSeconds, &job.ScaleFactor, &format, &job.TotalSteps, &job.FrameCount,
		&job.FileSize, &job.VideoDuration, &job.Attempt, &job.MaxAttempts,
		&job.ErrorMessage, &job.ErrorCategory, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	job.Format = entity.Format(format)
	return job, nil
}
