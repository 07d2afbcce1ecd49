package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castlab/podcast-pipeline/internal/podcast/domain"
	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

// MemoryRepository is a map-backed PodcastRepository used in tests and local
// runs. Stage writes hold one lock, so the same all-or-nothing semantics as
// the postgres implementation apply.
type MemoryRepository struct {
	mu       sync.RWMutex
	podcasts map[uuid.UUID]*models.Podcast
	segments map[uuid.UUID][]models.TranscriptSegment
	points   map[uuid.UUID][]models.KeyPoint
	clips    map[uuid.UUID][]models.Clip
	events   []models.DomainEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		podcasts: make(map[uuid.UUID]*models.Podcast),
		segments: make(map[uuid.UUID][]models.TranscriptSegment),
		points:   make(map[uuid.UUID][]models.KeyPoint),
		clips:    make(map[uuid.UUID][]models.Clip),
	}
}

// Events returns every recorded domain event in insertion order.
func (r *MemoryRepository) Events() []models.DomainEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) Create(ctx context.Context, p *models.Podcast) error {
	if p == nil || p.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.podcasts[p.ID]; exists {
		return models.ErrConflict
	}

	cp := *p
	r.podcasts[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.podcasts[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Podcast
	for _, p := range r.podcasts {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*models.Podcast
	for _, p := range r.podcasts {
		if p.Status == models.PendingStatus {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	var out []uuid.UUID
	for _, p := range pending {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, p.ID)
	}
	return out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.podcasts[id]; !ok {
		return models.ErrNotFound
	}

	// Cascade: artifacts live only as long as their podcast.
	delete(r.podcasts, id)
	delete(r.segments, id)
	delete(r.points, id)
	delete(r.clips, id)
	return nil
}

// casStatus is the compare-and-swap helper behind every status write.
// Caller must hold the write lock.
func (r *MemoryRepository) casStatus(id uuid.UUID, from, to models.Status, event models.DomainEvent) (*models.Podcast, error) {
	if err := domain.ValidateTransition(from, to); err != nil {
		return nil, err
	}
	p, ok := r.podcasts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.Status != from {
		return nil, models.ErrConflict
	}

	p.Status = to
	p.UpdatedAt = time.Now()
	if to != models.FailedStatus {
		p.FailedStage = nil
		p.ErrorDetail = nil
	}
	if event != nil {
		r.events = append(r.events, event)
	}
	return p, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status, event models.DomainEvent) (*models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.casStatus(id, from, to, event)
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) SaveTranscript(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, from, to models.Status, event models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.casStatus(id, from, to, event); err != nil {
		return err
	}
	r.segments[id] = append([]models.TranscriptSegment(nil), segments...)
	return nil
}

func (r *MemoryRepository) SaveKeyPoints(ctx context.Context, id uuid.UUID, points []models.KeyPoint, from, to models.Status, event models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.casStatus(id, from, to, event); err != nil {
		return err
	}
	r.points[id] = append([]models.KeyPoint(nil), points...)
	return nil
}

func (r *MemoryRepository) SaveClips(ctx context.Context, id uuid.UUID, clips []models.Clip, from, to models.Status, event models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.casStatus(id, from, to, event); err != nil {
		return err
	}
	r.clips[id] = append([]models.Clip(nil), clips...)
	return nil
}

func (r *MemoryRepository) MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, detail string, event models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.podcasts[id]
	if !ok {
		return models.ErrNotFound
	}
	if !domain.CanTransition(p.Status, models.FailedStatus) {
		return models.ErrConflict
	}

	p.Status = models.FailedStatus
	p.FailedStage = &stage
	p.ErrorDetail = &detail
	p.UpdatedAt = time.Now()
	if event != nil {
		r.events = append(r.events, event)
	}
	return nil
}

func (r *MemoryRepository) ResetForRetry(ctx context.Context, id uuid.UUID, event models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.casStatus(id, models.FailedStatus, models.PendingStatus, event); err != nil {
		return err
	}
	delete(r.segments, id)
	delete(r.points, id)
	delete(r.clips, id)
	return nil
}

func (r *MemoryRepository) ListSegments(ctx context.Context, podcastID uuid.UUID) ([]models.TranscriptSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.TranscriptSegment(nil), r.segments[podcastID]...), nil
}

func (r *MemoryRepository) ListKeyPoints(ctx context.Context, podcastID uuid.UUID) ([]models.KeyPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.KeyPoint(nil), r.points[podcastID]...), nil
}

func (r *MemoryRepository) ListClips(ctx context.Context, podcastID uuid.UUID) ([]models.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Clip(nil), r.clips[podcastID]...), nil
}

func (r *MemoryRepository) GetKeyPoint(ctx context.Context, id uuid.UUID) (*models.KeyPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, pts := range r.points {
		for _, kp := range pts {
			if kp.ID == id {
				cp := kp
				return &cp, nil
			}
		}
	}
	return nil, models.ErrNotFound
}
