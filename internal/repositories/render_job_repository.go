package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scenecast/internal/httpkit"
	"scenecast/internal/models"
)

var ErrRenderNotFound = errors.New("render job not found")
var ErrRenderExists = errors.New("render job already exists")

// maxErrorText bounds the stored failure message.
const maxErrorText = 2000

type RenderJobRepository struct {
	db *pgxpool.Pool
}

func NewRenderJobRepository(db *pgxpool.Pool) *RenderJobRepository {
	return &RenderJobRepository{db: db}
}

func (r *RenderJobRepository) Create(ctx context.Context, j *models.RenderJob) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO render_jobs (id, prompt, script, duration_minutes, mode, width, height, fps, frame_count, status, stage)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'QUEUED','created')
		RETURNING status, stage, created_at
	`, j.ID, j.Prompt, nullIfEmpty(j.Script), j.DurationMinutes, j.Mode, j.Width, j.Height, j.FPS, j.FrameCount,
	).Scan(&j.Status, &j.Stage, &j.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrRenderExists
		}
		return err
	}
	return nil
}

const renderColumns = `id, prompt, COALESCE(script,''), duration_minutes, mode, width, height, fps, frame_count,
	status, stage, COALESCE(error_code,''), COALESCE(error_text,''), COALESCE(video_asset_id,''),
	created_at, started_at, finished_at`

func scanRender(row pgx.Row, j *models.RenderJob) error {
	return row.Scan(
		&j.ID, &j.Prompt, &j.Script, &j.DurationMinutes, &j.Mode, &j.Width, &j.Height, &j.FPS, &j.FrameCount,
		&j.Status, &j.Stage, &j.ErrorCode, &j.ErrorText, &j.VideoAssetID,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
}

func (r *RenderJobRepository) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	var j models.RenderJob
	err := scanRender(r.db.QueryRow(ctx, `SELECT `+renderColumns+` FROM render_jobs WHERE id=$1`, id), &j)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRenderNotFound
		}
		return nil, err
	}
	return &j, nil
}

// List returns the newest jobs first, optionally filtered by status.
func (r *RenderJobRepository) List(ctx context.Context, status string, limit int) ([]models.RenderJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+renderColumns+`
		FROM render_jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RenderJob, 0, limit)
	for rows.Next() {
		var j models.RenderJob
		if err := scanRender(rows, &j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *RenderJobRepository) MarkRunning(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE render_jobs
		SET status='RUNNING', stage='created', started_at=now(), finished_at=NULL, error_code=NULL, error_text=NULL
		WHERE id=$1
	`, id)
}

func (r *RenderJobRepository) SetStage(ctx context.Context, id, stage string) error {
	return r.exec(ctx, `UPDATE render_jobs SET stage=$2 WHERE id=$1`, id, stage)
}

func (r *RenderJobRepository) MarkDone(ctx context.Context, id, videoAssetID string) error {
	err := r.exec(ctx, `
		UPDATE render_jobs
		SET status='DONE', stage='complete', video_asset_id=$2, finished_at=now()
		WHERE id=$1
	`, id, videoAssetID)
	if httpkit.IsForeignKeyViolation(err) {
		return fmt.Errorf("render %s: %w", id, ErrAssetNotFound)
	}
	return err
}

func (r *RenderJobRepository) MarkFailed(ctx context.Context, id, stage, code, msg string) error {
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	return r.exec(ctx, `
		UPDATE render_jobs
		SET status='FAILED', stage=$2, error_code=$3, error_text=$4, finished_at=now()
		WHERE id=$1
	`, id, stage, code, msg)
}

func (r *RenderJobRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRenderNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
