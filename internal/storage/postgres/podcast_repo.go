package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/castlab/podcast-pipeline/internal/podcast/domain"
	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

// PodcastRepo implements repository.PodcastRepository on postgres. Stage
// writes commit the stage's rows, the status update and the outbox event in
// one transaction. Status updates are compare-and-swap on the expected
// current status, so concurrent workers cannot double-claim a podcast.
type PodcastRepo struct {
	db     *sqlx.DB
	outbox *OutboxRepo
}

func NewPodcastRepo(db *sqlx.DB, outbox *OutboxRepo) *PodcastRepo {
	return &PodcastRepo{db: db, outbox: outbox}
}

const podcastColumns = `id, owner_id, title, audio_ref, format, status, failed_stage, error_detail, created_at, updated_at`

func (r *PodcastRepo) Create(ctx context.Context, p *models.Podcast) error {
	const q = `
		INSERT INTO podcasts (id, owner_id, title, audio_ref, format, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.OwnerID, p.Title, p.AudioRef, p.Format, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("podcast create: %w", err)
	}
	return nil
}

func (r *PodcastRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	const q = `SELECT ` + podcastColumns + ` FROM podcasts WHERE id = $1`

	var p models.Podcast
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("podcast get by id: %w", err)
	}
	return &p, nil
}

func (r *PodcastRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Podcast, error) {
	const q = `SELECT ` + podcastColumns + ` FROM podcasts WHERE owner_id = $1 ORDER BY created_at`

	var out []models.Podcast
	if err := r.db.SelectContext(ctx, &out, q, ownerID); err != nil {
		return nil, fmt.Errorf("podcast list by owner: %w", err)
	}
	return out, nil
}

func (r *PodcastRepo) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM podcasts
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`
	var out []uuid.UUID
	if err := r.db.SelectContext(ctx, &out, q, models.PendingStatus, limit); err != nil {
		return nil, fmt.Errorf("podcast list pending: %w", err)
	}
	return out, nil
}

func (r *PodcastRepo) Delete(ctx context.Context, id uuid.UUID) error {
	// Segments, key points and clips go with the podcast via ON DELETE CASCADE.
	res, err := r.db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("podcast delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// casStatusTx performs the compare-and-swap status update inside tx. Clearing
// failure columns on any non-failed target keeps restarted podcasts clean.
func (r *PodcastRepo) casStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to models.Status) (*models.Podcast, error) {
	if err := domain.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	const q = `
		UPDATE podcasts
		SET status = $3,
		    failed_stage = CASE WHEN $3 = 'failed' THEN failed_stage ELSE NULL END,
		    error_detail = CASE WHEN $3 = 'failed' THEN error_detail ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + podcastColumns

	var p models.Podcast
	if err := tx.GetContext(ctx, &p, q, id, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either gone or already moved on by another worker.
			if exists, exErr := r.exists(ctx, id); exErr == nil && !exists {
				return nil, models.ErrNotFound
			}
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("podcast cas status: %w", err)
	}
	return &p, nil
}

func (r *PodcastRepo) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM podcasts WHERE id = $1)`, id)
	return ok, err
}

// withTx runs fn in a transaction, appending the outbox event before commit.
func (r *PodcastRepo) withTx(ctx context.Context, event models.DomainEvent, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if event != nil {
		if err := r.outbox.Add(ctx, tx, event); err != nil {
			return fmt.Errorf("add outbox: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PodcastRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status, event models.DomainEvent) (*models.Podcast, error) {
	var updated *models.Podcast
	err := r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		p, err := r.casStatusTx(ctx, tx, id, from, to)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PodcastRepo) SaveTranscript(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, from, to models.Status, event models.DomainEvent) error {
	return r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		if _, err := r.casStatusTx(ctx, tx, id, from, to); err != nil {
			return err
		}
		const q = `
			INSERT INTO transcript_segments (podcast_id, idx, start_sec, end_sec, text)
			VALUES (:podcast_id, :idx, :start_sec, :end_sec, :text)
		`
		for _, s := range segments {
			if _, err := tx.NamedExecContext(ctx, q, s); err != nil {
				return fmt.Errorf("insert segment %d: %w", s.Idx, err)
			}
		}
		return nil
	})
}

func (r *PodcastRepo) SaveKeyPoints(ctx context.Context, id uuid.UUID, points []models.KeyPoint, from, to models.Status, event models.DomainEvent) error {
	return r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		if _, err := r.casStatusTx(ctx, tx, id, from, to); err != nil {
			return err
		}
		const q = `
			INSERT INTO key_points (id, podcast_id, idx, content, start_sec, end_sec)
			VALUES (:id, :podcast_id, :idx, :content, :start_sec, :end_sec)
		`
		for _, kp := range points {
			if _, err := tx.NamedExecContext(ctx, q, kp); err != nil {
				return fmt.Errorf("insert key point %d: %w", kp.Idx, err)
			}
		}
		return nil
	})
}

func (r *PodcastRepo) SaveClips(ctx context.Context, id uuid.UUID, clips []models.Clip, from, to models.Status, event models.DomainEvent) error {
	return r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		if _, err := r.casStatusTx(ctx, tx, id, from, to); err != nil {
			return err
		}
		const q = `
			INSERT INTO clips (id, key_point_id, podcast_id, audio_ref, duration_sec, created_at)
			VALUES (:id, :key_point_id, :podcast_id, :audio_ref, :duration_sec, :created_at)
		`
		for _, c := range clips {
			if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
				return fmt.Errorf("insert clip %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (r *PodcastRepo) MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, detail string, event models.DomainEvent) error {
	return r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		// The predicate is domain.CanTransition(status, failed) in SQL:
		// failed is reachable from every non-terminal state only.
		const q = `
			UPDATE podcasts
			SET status = $2, failed_stage = $3, error_detail = $4, updated_at = NOW()
			WHERE id = $1 AND status NOT IN ($5, $6)
		`
		res, err := tx.ExecContext(ctx, q, id, models.FailedStatus, stage, detail,
			models.CompleteStatus, models.FailedStatus)
		if err != nil {
			return fmt.Errorf("podcast mark failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if exists, exErr := r.exists(ctx, id); exErr == nil && !exists {
				return models.ErrNotFound
			}
			return models.ErrConflict
		}
		return nil
	})
}

func (r *PodcastRepo) ResetForRetry(ctx context.Context, id uuid.UUID, event models.DomainEvent) error {
	return r.withTx(ctx, event, func(tx *sqlx.Tx) error {
		if _, err := r.casStatusTx(ctx, tx, id, models.FailedStatus, models.PendingStatus); err != nil {
			return err
		}
		// Drop everything the failed attempt produced; the next run rebuilds
		// from the original audio.
		for _, q := range []string{
			`DELETE FROM clips WHERE podcast_id = $1`,
			`DELETE FROM key_points WHERE podcast_id = $1`,
			`DELETE FROM transcript_segments WHERE podcast_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("purge artifacts: %w", err)
			}
		}
		return nil
	})
}

func (r *PodcastRepo) ListSegments(ctx context.Context, podcastID uuid.UUID) ([]models.TranscriptSegment, error) {
	const q = `
		SELECT podcast_id, idx, start_sec, end_sec, text
		FROM transcript_segments
		WHERE podcast_id = $1
		ORDER BY idx
	`
	var out []models.TranscriptSegment
	if err := r.db.SelectContext(ctx, &out, q, podcastID); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return out, nil
}

func (r *PodcastRepo) ListKeyPoints(ctx context.Context, podcastID uuid.UUID) ([]models.KeyPoint, error) {
	const q = `
		SELECT id, podcast_id, idx, content, start_sec, end_sec
		FROM key_points
		WHERE podcast_id = $1
		ORDER BY idx
	`
	var out []models.KeyPoint
	if err := r.db.SelectContext(ctx, &out, q, podcastID); err != nil {
		return nil, fmt.Errorf("list key points: %w", err)
	}
	return out, nil
}

func (r *PodcastRepo) ListClips(ctx context.Context, podcastID uuid.UUID) ([]models.Clip, error) {
	const q = `
		SELECT id, key_point_id, podcast_id, audio_ref, duration_sec, created_at
		FROM clips
		WHERE podcast_id = $1
		ORDER BY created_at, id
	`
	var out []models.Clip
	if err := r.db.SelectContext(ctx, &out, q, podcastID); err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	return out, nil
}

func (r *PodcastRepo) GetKeyPoint(ctx context.Context, id uuid.UUID) (*models.KeyPoint, error) {
	const q = `
		SELECT id, podcast_id, idx, content, start_sec, end_sec
		FROM key_points
		WHERE id = $1
	`
	var kp models.KeyPoint
	if err := r.db.GetContext(ctx, &kp, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get key point: %w", err)
	}
	return &kp, nil
}
