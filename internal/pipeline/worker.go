package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
	"github.com/castlab/podcast-pipeline/internal/podcast/repository"
)

type WorkerConfig struct {
	Repo         repository.PodcastRepository
	Orchestrator *Orchestrator

	PollInterval time.Duration
	// Concurrency bounds how many podcasts process at once; size it to the
	// external API rate limits.
	Concurrency int
	BatchSize   int
	Logger      zerolog.Logger
}

// Worker polls for pending podcasts and feeds them to the orchestrator with
// bounded concurrency. Distinct podcasts run in parallel; the orchestrator's
// per-podcast lock keeps a single podcast from running against itself.
type Worker struct {
	cfg    WorkerConfig
	logger zerolog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}

	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "pipeline_worker").Logger(),
		sem:    make(chan struct{}, cfg.Concurrency),
	}, nil
}

// Start blocks until the context is cancelled, then waits for in-flight
// pipelines to finish marking their podcasts.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("concurrency", w.cfg.Concurrency).
		Msg("pipeline worker started")

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.logger.Info().Err(ctx.Err()).Msg("pipeline worker stopped")
			return ctx.Err()

		case <-ticker.C:
			if err := w.dispatchBatch(ctx); err != nil {
				w.logger.Error().Err(err).Msg("failed to dispatch batch")
			}
		}
	}
}

func (w *Worker) dispatchBatch(ctx context.Context) error {
	ids, err := w.cfg.Repo.ListPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	w.logger.Debug().Int("count", len(ids)).Msg("dispatching pending podcasts")

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return nil
		case w.sem <- struct{}{}:
		}

		w.wg.Add(1)
		go func(id uuid.UUID) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(ctx, id)
		}(id)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, id uuid.UUID) {
	err := w.cfg.Orchestrator.Process(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, models.ErrConflict):
		// Claimed elsewhere between listing and starting.
		w.logger.Debug().Stringer("podcast_id", id).Msg("podcast already claimed, skipping")
	default:
		// Process already recorded the failure on the podcast itself.
		w.logger.Error().Err(err).Stringer("podcast_id", id).Msg("pipeline run failed")
	}
}
