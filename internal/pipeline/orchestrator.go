package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/castlab/podcast-pipeline/internal/extract"
	"github.com/castlab/podcast-pipeline/internal/podcast/models"
	"github.com/castlab/podcast-pipeline/internal/podcast/repository"
	"github.com/castlab/podcast-pipeline/internal/slice"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

type TranscriptionClient interface {
	Transcribe(ctx context.Context, audio []byte, format string) (transcribe.Transcript, error)
}

type KeyPointExtractor interface {
	Extract(ctx context.Context, tr transcribe.Transcript) ([]extract.KeyPoint, error)
}

type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Config struct {
	Repo        repository.PodcastRepository
	Blobs       BlobStore
	Transcriber TranscriptionClient
	Extractor   KeyPointExtractor

	// MaxAttempts bounds retries per stage; only transient errors retry.
	MaxAttempts  int
	RetryBackoff time.Duration
	BackoffCap   time.Duration
	StageTimeout time.Duration
	Logger       zerolog.Logger
}

func validateConfig(cfg *Config) error {
	if cfg.Repo == nil {
		return fmt.Errorf("repository is required")
	}
	if cfg.Blobs == nil {
		return fmt.Errorf("blob store is required")
	}
	if cfg.Transcriber == nil {
		return fmt.Errorf("transcription client is required")
	}
	if cfg.Extractor == nil {
		return fmt.Errorf("key point extractor is required")
	}
	if cfg.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative")
	}
	if cfg.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative")
	}
	if cfg.StageTimeout < 0 {
		return fmt.Errorf("stage_timeout cannot be negative")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = 10 * time.Second
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = 2 * time.Minute
	}
}

// Orchestrator drives one podcast through
// pending -> transcribing -> extracting -> slicing -> complete,
// persisting each stage's artifacts atomically with the status update.
// At most one orchestration runs per podcast id at a time.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}

	clock func() time.Time
	idGen func() uuid.UUID
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	return &Orchestrator{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "orchestrator").Logger(),
		inflight: make(map[uuid.UUID]struct{}),
		clock:    time.Now,
		idGen:    uuid.New,
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) acquire(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, id)
}

// stageStatus is the status a podcast holds while the given stage runs.
func stageStatus(stage models.Stage) models.Status {
	switch stage {
	case models.TranscribeStage:
		return models.TranscribingStatus
	case models.ExtractStage:
		return models.ExtractingStatus
	default:
		return models.SlicingStatus
	}
}

// Process runs the whole pipeline for one pending podcast. A failure at any
// stage marks the podcast failed with the stage and cause; no partial
// artifacts from the failing stage survive.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if !o.acquire(id) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	defer o.release(id)

	p, err := o.cfg.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != models.PendingStatus {
		return fmt.Errorf("%w: podcast %s is %s, want pending", models.ErrConflict, id, p.Status)
	}

	logger := o.logger.With().Stringer("podcast_id", id).Logger()

	// Claiming is a compare-and-swap: losing the race to another worker
	// surfaces as ErrConflict and the caller just skips the podcast.
	event := models.NewPodcastStatusChanged(id, models.PendingStatus, models.TranscribingStatus)
	if _, err := o.cfg.Repo.UpdateStatus(ctx, id, models.PendingStatus, models.TranscribingStatus, event); err != nil {
		return err
	}
	logger.Info().Msg("pipeline started")

	if err := o.run(ctx, logger, p); err != nil {
		var serr *StageError
		if !errors.As(err, &serr) {
			serr = &StageError{Stage: models.TranscribeStage, Err: err}
		}
		o.fail(ctx, logger, id, serr)
		return err
	}

	logger.Info().Msg("pipeline complete")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, logger zerolog.Logger, p *models.Podcast) error {
	// Stage 1: transcribe. Fetching the original audio counts as part of the
	// stage, so a flaky object store gets the same retry treatment.
	var (
		audio []byte
		tr    transcribe.Transcript
	)
	err := o.retry(ctx, logger, models.TranscribeStage, func(sctx context.Context) error {
		var err error
		if audio == nil {
			if audio, err = o.cfg.Blobs.Get(sctx, p.AudioRef); err != nil {
				return fmt.Errorf("fetch audio %s: %w", p.AudioRef, err)
			}
		}
		tr, err = o.cfg.Transcriber.Transcribe(sctx, audio, p.Format)
		return err
	})
	if err != nil {
		return &StageError{Stage: models.TranscribeStage, Err: err}
	}

	segments := make([]models.TranscriptSegment, len(tr.Segments))
	for i, s := range tr.Segments {
		segments[i] = models.TranscriptSegment{
			PodcastID: p.ID,
			Idx:       i,
			StartSec:  s.StartSec,
			EndSec:    s.EndSec,
			Text:      s.Text,
		}
	}
	event := models.NewPodcastStatusChanged(p.ID, models.TranscribingStatus, models.ExtractingStatus)
	if err := o.cfg.Repo.SaveTranscript(ctx, p.ID, segments, models.TranscribingStatus, models.ExtractingStatus, event); err != nil {
		return &StageError{Stage: models.TranscribeStage, Err: err}
	}
	logger.Info().Int("segments", len(segments)).Msg("transcript persisted")

	// Stage 2: extract key points.
	var points []extract.KeyPoint
	err = o.retry(ctx, logger, models.ExtractStage, func(sctx context.Context) error {
		var err error
		points, err = o.cfg.Extractor.Extract(sctx, tr)
		return err
	})
	if err != nil {
		return &StageError{Stage: models.ExtractStage, Err: err}
	}

	keyPoints := make([]models.KeyPoint, len(points))
	for i, kp := range points {
		keyPoints[i] = models.KeyPoint{
			ID:        o.idGen(),
			PodcastID: p.ID,
			Idx:       i,
			Content:   kp.Content,
			StartSec:  kp.StartSec,
			EndSec:    kp.EndSec,
		}
	}
	event = models.NewPodcastStatusChanged(p.ID, models.ExtractingStatus, models.SlicingStatus)
	if err := o.cfg.Repo.SaveKeyPoints(ctx, p.ID, keyPoints, models.ExtractingStatus, models.SlicingStatus, event); err != nil {
		return &StageError{Stage: models.ExtractStage, Err: err}
	}
	logger.Info().Int("key_points", len(keyPoints)).Msg("key points persisted")

	// Stage 3: slice clips and store them. Slicing itself is local and
	// parallel; only the uploads go through retry.
	ranges := make([]slice.Range, len(keyPoints))
	for i, kp := range keyPoints {
		ranges[i] = slice.Range{StartSec: kp.StartSec, EndSec: kp.EndSec}
	}
	buffers, err := slice.Slice(ctx, audio, ranges)
	if err != nil {
		return &StageError{Stage: models.SliceStage, Err: err}
	}

	clips := make([]models.Clip, len(keyPoints))
	for i, kp := range keyPoints {
		ref := fmt.Sprintf("clips/%s/%s.wav", p.ID, kp.ID)
		err = o.retry(ctx, logger, models.SliceStage, func(sctx context.Context) error {
			return o.cfg.Blobs.Put(sctx, ref, buffers[i], "audio/wav")
		})
		if err != nil {
			return &StageError{Stage: models.SliceStage, Err: err}
		}
		clips[i] = models.Clip{
			ID:          o.idGen(),
			KeyPointID:  kp.ID,
			PodcastID:   p.ID,
			AudioRef:    ref,
			DurationSec: kp.EndSec - kp.StartSec,
			CreatedAt:   o.clock(),
		}
	}
	event = models.NewPodcastStatusChanged(p.ID, models.SlicingStatus, models.CompleteStatus)
	if err := o.cfg.Repo.SaveClips(ctx, p.ID, clips, models.SlicingStatus, models.CompleteStatus, event); err != nil {
		return &StageError{Stage: models.SliceStage, Err: err}
	}
	logger.Info().Int("clips", len(clips)).Msg("clips persisted")
	return nil
}

// retry runs one stage step with a per-attempt timeout, retrying transient
// failures with exponential backoff up to MaxAttempts.
func (o *Orchestrator) retry(ctx context.Context, logger zerolog.Logger, stage models.Stage, fn func(context.Context) error) error {
	backoff := o.cfg.RetryBackoff

	for attempt := 1; ; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		err := fn(sctx)
		cancel()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: attempt %d exceeded %s", ErrStageTimeout, attempt, o.cfg.StageTimeout)
		}
		if !IsTransient(err) || attempt >= o.cfg.MaxAttempts {
			return err
		}

		logger.Warn().
			Err(err).
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient stage failure, retrying")

		if serr := o.sleep(ctx, backoff); serr != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, serr)
		}
		backoff *= 2
		if backoff > o.cfg.BackoffCap {
			backoff = o.cfg.BackoffCap
		}
	}
}

// fail records the failing stage and cause. The write uses a detached context
// so a cancelled pipeline still leaves the podcast in failed, never dangling
// mid-stage without detail.
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, id uuid.UUID, serr *StageError) {
	detail := serr.Err.Error()
	if ctx.Err() != nil && !errors.Is(serr.Err, ErrCancelled) {
		detail = fmt.Sprintf("%v: %s", ErrCancelled, detail)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	event := models.NewPodcastFailed(id, stageStatus(serr.Stage), serr.Stage, detail)
	if err := o.cfg.Repo.MarkFailed(pctx, id, serr.Stage, detail, event); err != nil {
		logger.Error().Err(err).Msg("failed to record pipeline failure")
		return
	}
	logger.Error().
		Str("stage", string(serr.Stage)).
		Str("detail", detail).
		Msg("pipeline failed")
}
