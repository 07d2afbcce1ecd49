package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/castlab/podcast-pipeline/internal/extract"
	"github.com/castlab/podcast-pipeline/internal/pipeline"
	"github.com/castlab/podcast-pipeline/internal/podcast/kafka"
	"github.com/castlab/podcast-pipeline/internal/podcast/outbox"
	"github.com/castlab/podcast-pipeline/internal/storage/objstore"
	pg "github.com/castlab/podcast-pipeline/internal/storage/postgres"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

func run(ctx context.Context, logger zerolog.Logger) error {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is empty")
	}

	db, err := pg.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	blobs, err := objstore.New(ctx, objstore.Config{
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Bucket:    os.Getenv("S3_BUCKET"),
		Region:    os.Getenv("S3_REGION"),
		Secure:    os.Getenv("S3_INSECURE") == "",
	})
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	transcriber, err := transcribe.NewOpenAIClient(apiKey, os.Getenv("OPENAI_TRANSCRIBE_MODEL"), logger)
	if err != nil {
		return fmt.Errorf("transcription client: %w", err)
	}
	extractor, err := extract.NewOpenAIExtractor(apiKey, os.Getenv("OPENAI_EXTRACT_MODEL"), 0, logger)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}

	outboxRepo := pg.NewOutboxRepo(db)
	repo := pg.NewPodcastRepo(db, outboxRepo)

	orch, err := pipeline.NewOrchestrator(pipeline.Config{
		Repo:        repo,
		Blobs:       blobs,
		Transcriber: transcriber,
		Extractor:   extractor,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	worker, err := pipeline.NewWorker(pipeline.WorkerConfig{
		Repo:         repo,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return fmt.Errorf("KAFKA_BROKERS is empty")
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "podcast-events"
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   topic,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
		OutboxRepo: outboxRepo,
		Producer:   producer,
		Interval:   time.Second,
		BatchSize:  100,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error { return publisher.Start(gctx) })

	return g.Wait()
}
