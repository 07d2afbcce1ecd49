package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

// PodcastRepository persists podcasts and their per-stage artifacts.
//
// Status-changing methods take the expected current status and act as a
// compare-and-swap: if the stored status differs, they return
// models.ErrConflict without writing anything. Stage methods write the
// stage's artifacts, the status update and the outbox event in a single
// transaction, so a stage either lands completely or not at all.
type PodcastRepository interface {
	Create(ctx context.Context, p *models.Podcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Podcast, error)
	ListPending(ctx context.Context, limit int) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status, event models.DomainEvent) (*models.Podcast, error)
	SaveTranscript(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, from, to models.Status, event models.DomainEvent) error
	SaveKeyPoints(ctx context.Context, id uuid.UUID, points []models.KeyPoint, from, to models.Status, event models.DomainEvent) error
	SaveClips(ctx context.Context, id uuid.UUID, clips []models.Clip, from, to models.Status, event models.DomainEvent) error
	MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, detail string, event models.DomainEvent) error

	// ResetForRetry discards artifacts left by a failed attempt and moves the
	// podcast from failed back to pending, atomically.
	ResetForRetry(ctx context.Context, id uuid.UUID, event models.DomainEvent) error

	ListSegments(ctx context.Context, podcastID uuid.UUID) ([]models.TranscriptSegment, error)
	ListKeyPoints(ctx context.Context, podcastID uuid.UUID) ([]models.KeyPoint, error)
	ListClips(ctx context.Context, podcastID uuid.UUID) ([]models.Clip, error)
	GetKeyPoint(ctx context.Context, id uuid.UUID) (*models.KeyPoint, error)
}
