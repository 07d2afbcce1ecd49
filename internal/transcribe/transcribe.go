package transcribe

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Segment is a timestamped slice of transcribed text, in seconds from the
// start of the audio.
type Segment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

type Transcript struct {
	Language    string
	DurationSec float64
	Segments    []Segment
}

// FullText concatenates segment texts in order.
func (t Transcript) FullText() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

// CoveredEnd is the end of the last segment, i.e. the upper bound of
// transcript coverage.
func (t Transcript) CoveredEnd() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndSec
}

// Client wraps one speech-to-text call. Implementations make a single
// external request and do not persist anything.
type Client interface {
	Transcribe(ctx context.Context, audio []byte, format string) (Transcript, error)
}

var supportedFormats = map[string]struct{}{
	"wav":  {},
	"mp3":  {},
	"ogg":  {},
	"m4a":  {},
	"flac": {},
}

func SupportedFormat(format string) bool {
	_, ok := supportedFormats[strings.ToLower(format)]
	return ok
}

// normalizeSegments sorts segments by start time, drops empty ones and clamps
// each start to the previous end so the result is ordered and non-overlapping.
func normalizeSegments(segs []Segment) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if strings.TrimSpace(s.Text) == "" || s.EndSec <= s.StartSec {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })

	norm := out[:0]
	var prevEnd float64
	for _, s := range out {
		if s.StartSec < prevEnd {
			s.StartSec = prevEnd
		}
		// A segment the previous one fully covers collapses to zero
		// length after clamping; drop it like any other empty segment.
		if s.EndSec <= s.StartSec {
			continue
		}
		prevEnd = s.EndSec
		norm = append(norm, s)
	}
	return norm
}
