package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient transcribes audio through the OpenAI audio.transcriptions API
// using the verbose JSON response so segment timings come back with the text.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

func NewOpenAIClient(apiKey, model string, logger zerolog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger.With().Str("component", "transcribe_openai").Logger(),
	}, nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, format string) (Transcript, error) {
	format = strings.ToLower(format)
	if !SupportedFormat(format) {
		return Transcript{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if len(audio) == 0 {
		return Transcript{}, fmt.Errorf("%w: empty audio", ErrUnsupportedFormat)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio." + format,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	segs := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, Segment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
		})
	}
	segs = normalizeSegments(segs)
	if len(segs) == 0 {
		return Transcript{}, fmt.Errorf("%w: response contained no segments", ErrTranscriptionFailed)
	}

	c.logger.Debug().
		Int("segments", len(segs)).
		Float64("duration_sec", resp.Duration).
		Str("language", resp.Language).
		Msg("transcription completed")

	return Transcript{
		Language:    resp.Language,
		DurationSec: resp.Duration,
		Segments:    segs,
	}, nil
}
