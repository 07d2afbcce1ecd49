package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, p *models.Podcast) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *StoreMock) GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Podcast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Podcast, error) {
	args := m.Called(ctx, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]models.Podcast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]uuid.UUID), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *StoreMock) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status, event models.DomainEvent) (*models.Podcast, error) {
	args := m.Called(ctx, id, from, to, event)
	if v := args.Get(0); v != nil {
		return v.(*models.Podcast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) SaveTranscript(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, from, to models.Status, event models.DomainEvent) error {
	args := m.Called(ctx, id, segments, from, to, event)
	return args.Error(0)
}

func (m *StoreMock) SaveKeyPoints(ctx context.Context, id uuid.UUID, points []models.KeyPoint, from, to models.Status, event models.DomainEvent) error {
	args := m.Called(ctx, id, points, from, to, event)
	return args.Error(0)
}

func (m *StoreMock) SaveClips(ctx context.Context, id uuid.UUID, clips []models.Clip, from, to models.Status, event models.DomainEvent) error {
	args := m.Called(ctx, id, clips, from, to, event)
	return args.Error(0)
}

func (m *StoreMock) MarkFailed(ctx context.Context, id uuid.UUID, stage models.Stage, detail string, event models.DomainEvent) error {
	args := m.Called(ctx, id, stage, detail, event)
	return args.Error(0)
}

func (m *StoreMock) ResetForRetry(ctx context.Context, id uuid.UUID, event models.DomainEvent) error {
	args := m.Called(ctx, id, event)
	return args.Error(0)
}

func (m *StoreMock) ListSegments(ctx context.Context, podcastID uuid.UUID) ([]models.TranscriptSegment, error) {
	args := m.Called(ctx, podcastID)
	if v := args.Get(0); v != nil {
		return v.([]models.TranscriptSegment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) ListKeyPoints(ctx context.Context, podcastID uuid.UUID) ([]models.KeyPoint, error) {
	args := m.Called(ctx, podcastID)
	if v := args.Get(0); v != nil {
		return v.([]models.KeyPoint), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) ListClips(ctx context.Context, podcastID uuid.UUID) ([]models.Clip, error) {
	args := m.Called(ctx, podcastID)
	if v := args.Get(0); v != nil {
		return v.([]models.Clip), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) GetKeyPoint(ctx context.Context, id uuid.UUID) (*models.KeyPoint, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.KeyPoint), args.Error(1)
	}
	return nil, args.Error(1)
}

type BlobMock struct {
	mock.Mock
}

func (m *BlobMock) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *BlobMock) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *BlobMock) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BlobMock) PublicURL(key string) string {
	args := m.Called(key)
	return args.String(0)
}
