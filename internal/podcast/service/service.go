package service

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
	"github.com/castlab/podcast-pipeline/internal/podcast/repository"
	"github.com/castlab/podcast-pipeline/internal/slice"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

// BlobStore is the slice of object storage the service needs. The core only
// reads and writes objects by key; bucket policy and URLs are someone else's
// problem.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	PublicURL(key string) string
}

const defaultMaxUploadBytes = 100 << 20 // 100 MiB, as the original product allowed

// Service owns podcast invariants: ids, initial status, ownership checks and
// the cascade between a podcast, its stored audio and its clips.
type Service struct {
	repo   repository.PodcastRepository
	blobs  BlobStore
	logger zerolog.Logger

	maxUploadBytes int64
	clock          func() time.Time
	idGen          func() uuid.UUID
}

func New(repo repository.PodcastRepository, blobs BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		blobs:          blobs,
		logger:         logger.With().Str("component", "podcast_service").Logger(),
		maxUploadBytes: defaultMaxUploadBytes,
		clock:          time.Now,
		idGen:          uuid.New,
	}
}

// CreatePodcast stores the uploaded audio and inserts a pending podcast for
// the worker to pick up. The declared format comes from the file name.
func (s *Service) CreatePodcast(ctx context.Context, ownerID uuid.UUID, title, filename string, audio []byte) (*models.Podcast, error) {
	if ownerID == uuid.Nil || title == "" || filename == "" || len(audio) == 0 {
		return nil, models.ErrInvalidArgument
	}
	if int64(len(audio)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidArgument, s.maxUploadBytes)
	}

	// Uploads are limited to PCM WAV, the one encoding every stage of the
	// pipeline handles; anything else would fail at the slice stage after
	// transcription and extraction already ran.
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if format != "wav" {
		return nil, fmt.Errorf("%w: %q", transcribe.ErrUnsupportedFormat, format)
	}
	if _, err := slice.Duration(audio); err != nil {
		return nil, fmt.Errorf("validate audio: %w", err)
	}

	now := s.clock()
	p := &models.Podcast{
		ID:        s.idGen(),
		OwnerID:   ownerID,
		Title:     title,
		Format:    format,
		Status:    models.PendingStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.AudioRef = fmt.Sprintf("audio/%s/%s", p.ID, filepath.Base(filename))

	if err := s.blobs.Put(ctx, p.AudioRef, audio, "audio/"+format); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// Keep storage consistent with the database.
		if rmErr := s.blobs.Remove(ctx, p.AudioRef); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("audio_ref", p.AudioRef).Msg("failed to clean up audio after create error")
		}
		return nil, err
	}
	return p, nil
}

// getOwned loads a podcast and verifies ownership before anything acts on it.
func (s *Service) getOwned(ctx context.Context, ownerID, id uuid.UUID) (*models.Podcast, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, models.ErrPermissionDenied
	}
	return p, nil
}

func (s *Service) GetPodcast(ctx context.Context, ownerID, id uuid.UUID) (*models.Podcast, error) {
	return s.getOwned(ctx, ownerID, id)
}

func (s *Service) ListPodcasts(ctx context.Context, ownerID uuid.UUID) ([]models.Podcast, error) {
	if ownerID == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// DeletePodcast removes the podcast row (cascading to segments, key points
// and clips) and its stored objects. Object removal is best effort; a
// dangling blob is preferable to a half-deleted record.
func (s *Service) DeletePodcast(ctx context.Context, ownerID, id uuid.UUID) error {
	p, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Purge by prefix rather than by the clip rows: clip objects uploaded
	// by an attempt that never committed its rows live under the same
	// prefix and must go too.
	s.removeClipObjects(ctx, id)
	if err := s.blobs.Remove(ctx, p.AudioRef); err != nil {
		s.logger.Warn().Err(err).Str("audio_ref", p.AudioRef).Msg("failed to remove audio object")
	}
	return nil
}

// removeClipObjects best-effort deletes every stored clip object of a
// podcast, committed or orphaned.
func (s *Service) removeClipObjects(ctx context.Context, id uuid.UUID) {
	prefix := fmt.Sprintf("clips/%s/", id)
	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("failed to list clip objects")
		return
	}
	for _, key := range keys {
		if err := s.blobs.Remove(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("audio_ref", key).Msg("failed to remove clip object")
		}
	}
}

func (s *Service) ListKeyPoints(ctx context.Context, ownerID, id uuid.UUID) ([]models.KeyPoint, error) {
	if _, err := s.getOwned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.repo.ListKeyPoints(ctx, id)
}

func (s *Service) ListClips(ctx context.Context, ownerID, id uuid.UUID) ([]models.Clip, error) {
	if _, err := s.getOwned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.repo.ListClips(ctx, id)
}

// ClipURL resolves a clip's storage key to its public download URL.
func (s *Service) ClipURL(c models.Clip) string {
	return s.blobs.PublicURL(c.AudioRef)
}

// RestartProcessing sends a failed podcast back to pending, discarding
// artifacts from the failed attempt.
func (s *Service) RestartProcessing(ctx context.Context, ownerID, id uuid.UUID) (*models.Podcast, error) {
	p, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.FailedStatus {
		return nil, fmt.Errorf("%w: podcast is %s, only failed podcasts restart", models.ErrConflict, p.Status)
	}

	event := models.NewPodcastStatusChanged(id, models.FailedStatus, models.PendingStatus)
	if err := s.repo.ResetForRetry(ctx, id, event); err != nil {
		return nil, err
	}

	// The failed attempt may have uploaded clips whose rows never
	// committed, so stale objects are found by prefix, not by row.
	s.removeClipObjects(ctx, id)
	return s.repo.GetByID(ctx, id)
}

// ShareURL builds a Facebook share link for one key point's clip.
func (s *Service) ShareURL(ctx context.Context, ownerID, keyPointID uuid.UUID) (string, error) {
	if ownerID == uuid.Nil || keyPointID == uuid.Nil {
		return "", models.ErrInvalidArgument
	}

	kp, err := s.repo.GetKeyPoint(ctx, keyPointID)
	if err != nil {
		return "", err
	}
	p, err := s.getOwned(ctx, ownerID, kp.PodcastID)
	if err != nil {
		return "", err
	}

	clips, err := s.repo.ListClips(ctx, kp.PodcastID)
	if err != nil {
		return "", err
	}
	var clip *models.Clip
	for i := range clips {
		if clips[i].KeyPointID == kp.ID {
			clip = &clips[i]
			break
		}
	}
	if clip == nil {
		return "", fmt.Errorf("%w: key point has no clip yet", models.ErrNotFound)
	}

	q := url.Values{}
	q.Set("u", s.blobs.PublicURL(clip.AudioRef))
	q.Set("quote", kp.Content)
	q.Set("title", fmt.Sprintf("Key Point from %s", p.Title))
	return "https://www.facebook.com/sharer/sharer.php?" + q.Encode(), nil
}
