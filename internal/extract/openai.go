package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

const systemPrompt = "You are a helpful assistant that extracts key points from podcast transcripts."

// OpenAIExtractor asks a chat completion model for key points as a JSON array
// of {content, start_time, end_time} objects, then snaps every point to
// transcript coverage.
type OpenAIExtractor struct {
	client    *openai.Client
	model     string
	maxPoints int
	logger    zerolog.Logger
}

func NewOpenAIExtractor(apiKey, model string, maxPoints int, logger zerolog.Logger) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if maxPoints <= 0 {
		maxPoints = 10
	}
	return &OpenAIExtractor{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxPoints: maxPoints,
		logger:    logger.With().Str("component", "extract_openai").Logger(),
	}, nil
}

func (e *OpenAIExtractor) Extract(ctx context.Context, tr transcribe.Transcript) ([]KeyPoint, error) {
	if len(tr.Segments) == 0 {
		return nil, fmt.Errorf("%w: transcript has no segments", ErrExtractionFailed)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: e.buildPrompt(tr)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", ErrExtractionFailed)
	}

	raw, err := parseKeyPoints(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	points, err := snapToTranscript(raw, tr)
	if err != nil {
		return nil, err
	}
	if len(points) > e.maxPoints {
		points = points[:e.maxPoints]
	}

	e.logger.Debug().Int("key_points", len(points)).Msg("extraction completed")
	return points, nil
}

func (e *OpenAIExtractor) buildPrompt(tr transcribe.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze this podcast transcript and extract at most %d key points.
For each key point provide the main idea and its start and end time in seconds,
staying within the timestamps shown in the transcript.

Respond with only a JSON array of objects shaped like:
[{"content": "key point", "start_time": 0, "end_time": 30}]

Transcript:
`, e.maxPoints)
	for _, s := range tr.Segments {
		fmt.Fprintf(&b, "[%.1f - %.1f] %s\n", s.StartSec, s.EndSec, s.Text)
	}
	return b.String()
}
