package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlab/podcast-pipeline/internal/extract"
	"github.com/castlab/podcast-pipeline/internal/podcast/models"
	"github.com/castlab/podcast-pipeline/internal/podcast/repository"
	"github.com/castlab/podcast-pipeline/internal/slice"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

// makeWAV builds a mono 16-bit PCM fixture of the given length.
func makeWAV(t *testing.T, sampleRate uint32, seconds float64) []byte {
	t.Helper()

	frames := int(seconds * float64(sampleRate))
	data := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i))
	}

	buf := make([]byte, 44+len(data))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}

// tenMinuteTranscript covers [0, 600] in 5 segments.
func tenMinuteTranscript() transcribe.Transcript {
	return transcribe.Transcript{
		DurationSec: 600,
		Segments: []transcribe.Segment{
			{StartSec: 0, EndSec: 120, Text: "segment one"},
			{StartSec: 120, EndSec: 240, Text: "segment two"},
			{StartSec: 240, EndSec: 360, Text: "segment three"},
			{StartSec: 360, EndSec: 480, Text: "segment four"},
			{StartSec: 480, EndSec: 600, Text: "segment five"},
		},
	}
}

func threeKeyPoints() []extract.KeyPoint {
	return []extract.KeyPoint{
		{Content: "opening", StartSec: 10, EndSec: 40},
		{Content: "middle", StartSec: 130, EndSec: 200},
		{Content: "closing", StartSec: 500, EndSec: 600},
	}
}

// seedPodcast stores a pending podcast and its audio in the fakes.
func seedPodcast(t *testing.T, repo *repository.MemoryRepository, blobs *blobFake, audio []byte) *models.Podcast {
	t.Helper()

	id := uuid.New()
	ref := fmt.Sprintf("audio/%s/episode.wav", id)
	require.NoError(t, blobs.Put(context.Background(), ref, audio, "audio/wav"))

	p := &models.Podcast{
		ID:        id,
		OwnerID:   uuid.New(),
		Title:     "episode",
		AudioRef:  ref,
		Format:    "wav",
		Status:    models.PendingStatus,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = time.Second
	}
	o, err := NewOrchestrator(cfg)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_Validation(t *testing.T) {
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	tr := &transcriberFake{}
	ex := &extractorFake{}

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "missing repo",
			config:  Config{Blobs: blobs, Transcriber: tr, Extractor: ex},
			wantErr: "repository is required",
		},
		{
			name:    "missing blob store",
			config:  Config{Repo: repo, Transcriber: tr, Extractor: ex},
			wantErr: "blob store is required",
		},
		{
			name:    "missing transcriber",
			config:  Config{Repo: repo, Blobs: blobs, Extractor: ex},
			wantErr: "transcription client is required",
		},
		{
			name:    "missing extractor",
			config:  Config{Repo: repo, Blobs: blobs, Transcriber: tr},
			wantErr: "key point extractor is required",
		},
		{
			name:    "negative attempts",
			config:  Config{Repo: repo, Blobs: blobs, Transcriber: tr, Extractor: ex, MaxAttempts: -1},
			wantErr: "max_attempts cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrchestrator(tt.config)
			require.Error(t, err)
			assert.Nil(t, o)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := newTestOrchestrator(t, Config{
		Repo:        repository.NewMemoryRepository(),
		Blobs:       newBlobFake(),
		Transcriber: &transcriberFake{},
		Extractor:   &extractorFake{},
	})
	assert.Equal(t, 3, o.cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, o.cfg.BackoffCap)
}

func TestProcess_HappyPath(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	o := newTestOrchestrator(t, Config{
		Repo:  repo,
		Blobs: blobs,
		Transcriber: &transcriberFake{fn: func(context.Context, []byte, string) (transcribe.Transcript, error) {
			return tenMinuteTranscript(), nil
		}},
		Extractor: &extractorFake{fn: func(context.Context, transcribe.Transcript) ([]extract.KeyPoint, error) {
			return threeKeyPoints(), nil
		}},
	})

	p := seedPodcast(t, repo, blobs, audio)
	require.NoError(t, o.Process(ctx, p.ID))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompleteStatus, got.Status)
	assert.Nil(t, got.ErrorDetail)

	segs, err := repo.ListSegments(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, segs, 5)

	points, err := repo.ListKeyPoints(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, points, 3)

	clips, err := repo.ListClips(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, clips, 3)

	// Each clip's duration equals its key point's end - start, both on the
	// record and in the stored audio bytes.
	for i, c := range clips {
		kp := points[i]
		assert.Equal(t, kp.ID, c.KeyPointID)
		assert.InDelta(t, kp.EndSec-kp.StartSec, c.DurationSec, 1e-9)

		data, err := blobs.Get(ctx, c.AudioRef)
		require.NoError(t, err)
		d, err := slice.Duration(data)
		require.NoError(t, err)
		assert.InDelta(t, c.DurationSec, d, 0.1)
	}

	// Every forward transition emitted exactly one event.
	events := repo.Events()
	require.Len(t, events, 4)
}

func TestProcess_TransientTimeoutThenSuccess(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	// First two attempts hang until the per-attempt timeout fires.
	tr := &transcriberFake{}
	tr.fn = func(sctx context.Context, _ []byte, _ string) (transcribe.Transcript, error) {
		if tr.Calls() <= 2 {
			<-sctx.Done()
			return transcribe.Transcript{}, sctx.Err()
		}
		return tenMinuteTranscript(), nil
	}

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: tr,
		Extractor: &extractorFake{fn: func(context.Context, transcribe.Transcript) ([]extract.KeyPoint, error) {
			return threeKeyPoints(), nil
		}},
		MaxAttempts:  3,
		StageTimeout: 20 * time.Millisecond,
	})

	p := seedPodcast(t, repo, blobs, audio)
	require.NoError(t, o.Process(ctx, p.ID))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompleteStatus, got.Status)
	assert.Equal(t, 3, tr.Calls())
}

func TestProcess_PermanentErrorFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	tr := &transcriberFake{fn: func(context.Context, []byte, string) (transcribe.Transcript, error) {
		return transcribe.Transcript{}, fmt.Errorf("%w: %q", transcribe.ErrUnsupportedFormat, "wav")
	}}

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: tr,
		Extractor:   &extractorFake{},
	})

	p := seedPodcast(t, repo, blobs, audio)
	err := o.Process(ctx, p.ID)
	require.ErrorIs(t, err, transcribe.ErrUnsupportedFormat)
	assert.Equal(t, 1, tr.Calls(), "permanent errors must not retry")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FailedStatus, got.Status)
	require.NotNil(t, got.FailedStage)
	assert.Equal(t, models.TranscribeStage, *got.FailedStage)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "unsupported audio format")
}

func TestProcess_ExtractionFailure_NoKeyPointsPersisted(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	o := newTestOrchestrator(t, Config{
		Repo:  repo,
		Blobs: blobs,
		Transcriber: &transcriberFake{fn: func(context.Context, []byte, string) (transcribe.Transcript, error) {
			return tenMinuteTranscript(), nil
		}},
		Extractor: &extractorFake{fn: func(context.Context, transcribe.Transcript) ([]extract.KeyPoint, error) {
			return nil, fmt.Errorf("%w: point 0 ends at 700s beyond transcript coverage 600s", extract.ErrExtractionFailed)
		}},
	})

	p := seedPodcast(t, repo, blobs, audio)
	err := o.Process(ctx, p.ID)
	require.ErrorIs(t, err, extract.ErrExtractionFailed)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FailedStatus, got.Status)
	require.NotNil(t, got.FailedStage)
	assert.Equal(t, models.ExtractStage, *got.FailedStage)

	// The transcript from the successful stage stays; nothing from the
	// failed stage does.
	segs, err := repo.ListSegments(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, segs, 5)

	points, err := repo.ListKeyPoints(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, points)

	clips, err := repo.ListClips(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestProcess_RetriesRateLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	tr := &transcriberFake{}
	tr.fn = func(context.Context, []byte, string) (transcribe.Transcript, error) {
		if tr.Calls() == 1 {
			return transcribe.Transcript{}, &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Code: "rate_limit_exceeded"}
		}
		return tenMinuteTranscript(), nil
	}

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: tr,
		Extractor: &extractorFake{fn: func(context.Context, transcribe.Transcript) ([]extract.KeyPoint, error) {
			return threeKeyPoints(), nil
		}},
	})

	p := seedPodcast(t, repo, blobs, audio)
	require.NoError(t, o.Process(ctx, p.ID))
	assert.Equal(t, 2, tr.Calls())
}

func TestProcess_Cancellation(t *testing.T) {
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	started := make(chan struct{})
	tr := &transcriberFake{fn: func(sctx context.Context, _ []byte, _ string) (transcribe.Transcript, error) {
		close(started)
		<-sctx.Done()
		return transcribe.Transcript{}, sctx.Err()
	}}

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: tr,
		Extractor:   &extractorFake{},
	})

	p := seedPodcast(t, repo, blobs, audio)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Process(ctx, p.ID) }()

	<-started
	cancel()
	err := <-done
	require.ErrorIs(t, err, ErrCancelled)

	// Never left dangling mid-stage: failed, with a cancellation reason.
	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FailedStatus, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "cancelled")
}

func TestProcess_MutualExclusionPerPodcast(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()
	audio := makeWAV(t, 10, 600)

	started := make(chan struct{})
	release := make(chan struct{})
	tr := &transcriberFake{fn: func(context.Context, []byte, string) (transcribe.Transcript, error) {
		close(started)
		<-release
		return tenMinuteTranscript(), nil
	}}

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: tr,
		Extractor: &extractorFake{fn: func(context.Context, transcribe.Transcript) ([]extract.KeyPoint, error) {
			return threeKeyPoints(), nil
		}},
	})

	p := seedPodcast(t, repo, blobs, audio)

	done := make(chan error, 1)
	go func() { done <- o.Process(ctx, p.ID) }()
	<-started

	err := o.Process(ctx, p.ID)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestProcess_NonPendingPodcast(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	blobs := newBlobFake()

	o := newTestOrchestrator(t, Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: &transcriberFake{},
		Extractor:   &extractorFake{},
	})

	p := seedPodcast(t, repo, blobs, makeWAV(t, 10, 10))
	_, err := repo.UpdateStatus(ctx, p.ID, models.PendingStatus, models.TranscribingStatus, nil)
	require.NoError(t, err)

	err = o.Process(ctx, p.ID)
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "stage timeout", err: fmt.Errorf("%w: attempt 1", ErrStageTimeout), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "openai 500", err: &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, want: true},
		{name: "openai 429 rate limit", err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Code: "rate_limit_exceeded"}, want: true},
		{name: "openai 429 quota exhausted", err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Code: "insufficient_quota"}, want: false},
		{name: "openai 401", err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, want: false},
		{name: "unsupported format", err: transcribe.ErrUnsupportedFormat, want: false},
		{name: "extraction failed", err: extract.ErrExtractionFailed, want: false},
		{name: "plain error", err: fmt.Errorf("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
