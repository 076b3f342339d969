package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
)

var _ repository.ArtifactStore = (*artifactRepo)(nil)

// artifactRepo stores stage artifacts as JSONB rows keyed by (job_id, stage).
// Rows are insert-once: a second write for the same key is rejected.
type artifactRepo struct {
	pool *pgxpool.Pool
}

func NewArtifactRepo(pool *pgxpool.Pool) *artifactRepo {
	return &artifactRepo{pool: pool}
}

func (r *artifactRepo) Put(ctx context.Context, artifact *model.StageArtifact) error {
	if artifact == nil || artifact.JobID == "" {
		return domain.ErrInvalidArgument
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO stage_artifacts (job_id, stage, payload, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_id, stage) DO NOTHING;`
	tag, err := r.pool.Exec(ctx, q, artifact.JobID, artifact.Stage, payload, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrArtifactExists
	}
	return nil
}

func (r *artifactRepo) Get(ctx context.Context, jobID string, stage model.Stage) (*model.StageArtifact, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM stage_artifacts WHERE job_id = $1 AND stage = $2`,
		jobID, stage).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	var artifact model.StageArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, domain.ErrInvalidArtifact
	}
	return &artifact, nil
}
