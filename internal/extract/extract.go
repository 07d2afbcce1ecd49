package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

var ErrExtractionFailed = errors.New("key point extraction failed")

// KeyPoint is an extracted highlight with its time range snapped to
// transcript coverage.
type KeyPoint struct {
	Content  string
	StartSec float64
	EndSec   float64
}

// Extractor turns a transcript into a bounded, ordered list of key points.
type Extractor interface {
	Extract(ctx context.Context, tr transcribe.Transcript) ([]KeyPoint, error)
}

// rawPoint mirrors the JSON contract the model is asked to produce.
type rawPoint struct {
	Content   string  `json:"content"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// parseKeyPoints decodes the model reply. Replies wrapped in markdown code
// fences are tolerated; anything else malformed is an extraction failure.
func parseKeyPoints(reply string) ([]rawPoint, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var points []rawPoint
	if err := json.Unmarshal([]byte(s), &points); err != nil {
		return nil, fmt.Errorf("%w: malformed model output: %v", ErrExtractionFailed, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: model returned no key points", ErrExtractionFailed)
	}
	return points, nil
}

// snapToTranscript maps each point onto transcript coverage using segment
// overlap: the point keeps its range clamped into the span of the segments it
// overlaps (earliest overlapping segment first, so ties resolve to the
// earliest start). Points with no overlapping segment, inverted ranges or an
// end beyond transcript coverage fail extraction.
func snapToTranscript(points []rawPoint, tr transcribe.Transcript) ([]KeyPoint, error) {
	covered := tr.CoveredEnd()

	out := make([]KeyPoint, 0, len(points))
	for i, p := range points {
		if strings.TrimSpace(p.Content) == "" {
			return nil, fmt.Errorf("%w: point %d has empty content", ErrExtractionFailed, i)
		}
		if p.StartTime < 0 || p.EndTime <= p.StartTime {
			return nil, fmt.Errorf("%w: point %d has invalid range [%g, %g]", ErrExtractionFailed, i, p.StartTime, p.EndTime)
		}
		if p.EndTime > covered {
			return nil, fmt.Errorf("%w: point %d ends at %gs beyond transcript coverage %gs", ErrExtractionFailed, i, p.EndTime, covered)
		}

		var first, last *transcribe.Segment
		for j := range tr.Segments {
			seg := &tr.Segments[j]
			if seg.StartSec < p.EndTime && seg.EndSec > p.StartTime {
				if first == nil {
					first = seg
				}
				last = seg
			}
		}
		if first == nil {
			return nil, fmt.Errorf("%w: point %d [%g, %g] overlaps no transcript segment", ErrExtractionFailed, i, p.StartTime, p.EndTime)
		}

		start := p.StartTime
		if start < first.StartSec {
			start = first.StartSec
		}
		end := p.EndTime
		if end > last.EndSec {
			end = last.EndSec
		}
		if end <= start {
			return nil, fmt.Errorf("%w: point %d collapsed to an empty range after snapping", ErrExtractionFailed, i)
		}

		out = append(out, KeyPoint{
			Content:  strings.TrimSpace(p.Content),
			StartSec: start,
			EndSec:   end,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out, nil
}
