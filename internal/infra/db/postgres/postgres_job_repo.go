package postgres

import (
	"context"
	"errors"
	"time"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRegistry = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, status, stage, blueprint_key, attempt, cancel_requested, last_error, created_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (id, status, stage, blueprint_key, attempt, cancel_requested, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err = ex.Exec(ctx, q,
		job.ID, job.Status, job.Stage, job.BlueprintKey, job.Attempt, job.CancelFlag, job.LastError, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) GetStatus(ctx context.Context, tx repository.Tx, jobID string) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	row := ex.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (r *jobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, jobID string, stage model.Stage, status model.JobStatus, attempt int, errMsg string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
UPDATE jobs SET stage = $2, status = $3, attempt = $4, last_error = $5, updated_at = $6
WHERE id = $1;`
	tag, err := ex.Exec(ctx, q, jobID, stage, status, attempt, errMsg, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	var cancelled bool
	err := r.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1`, jobID).Scan(&cancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return cancelled, nil
}

func (r *jobRepo) RequestCancel(ctx context.Context, jobID string) error {
	const q = `
UPDATE jobs SET cancel_requested = TRUE, updated_at = $2
WHERE id = $1 AND status IN ('pending', 'running');`
	tag, err := r.pool.Exec(ctx, q, jobID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobFinished
	}
	return nil
}

// FetchAndMarkRunning atomically claims the oldest pending job. SKIP LOCKED
// keeps concurrent workers from double-claiming.
func (r *jobRepo) FetchAndMarkRunning(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		fetched, err := scanJob(ex.QueryRow(ctx, q))
		if err != nil {
			return err
		}

		fetched.Status = model.JobStatusRunning
		fetched.Stage = model.StagePreview
		if err := r.UpdateStatus(ctx, tx, fetched.ID, fetched.Stage, fetched.Status, 0, ""); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status, stage string
	err := row.Scan(&j.ID, &status, &stage, &j.BlueprintKey, &j.Attempt, &j.CancelFlag, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.JobStatus(status)
	j.Stage = model.Stage(stage)
	return &j, nil
}
