package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	PendingStatus      Status = "pending"
	TranscribingStatus Status = "transcribing"
	ExtractingStatus   Status = "extracting"
	SlicingStatus      Status = "slicing"
	CompleteStatus     Status = "complete"
	FailedStatus       Status = "failed"
)

// Stage names a pipeline step; it shows up in error detail and events.
type Stage string

const (
	TranscribeStage Stage = "transcribe"
	ExtractStage    Stage = "extract"
	SliceStage      Stage = "slice"
)

type Podcast struct {
	ID          uuid.UUID `db:"id"`
	OwnerID     uuid.UUID `db:"owner_id"`
	Title       string    `db:"title"`
	AudioRef    string    `db:"audio_ref"`
	Format      string    `db:"format"`
	Status      Status    `db:"status"`
	FailedStage *Stage    `db:"failed_stage"`
	ErrorDetail *string   `db:"error_detail"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TranscriptSegment is immutable once persisted. Segments of one podcast are
// ordered by Idx with non-overlapping, non-decreasing time ranges.
type TranscriptSegment struct {
	PodcastID uuid.UUID `db:"podcast_id"`
	Idx       int       `db:"idx"`
	StartSec  float64   `db:"start_sec"`
	EndSec    float64   `db:"end_sec"`
	Text      string    `db:"text"`
}

// KeyPoint is a model-extracted highlight. Its time range is a subset of the
// podcast's transcript coverage.
type KeyPoint struct {
	ID        uuid.UUID `db:"id"`
	PodcastID uuid.UUID `db:"podcast_id"`
	Idx       int       `db:"idx"`
	Content   string    `db:"content"`
	StartSec  float64   `db:"start_sec"`
	EndSec    float64   `db:"end_sec"`
}

type Clip struct {
	ID          uuid.UUID `db:"id"`
	KeyPointID  uuid.UUID `db:"key_point_id"`
	PodcastID   uuid.UUID `db:"podcast_id"`
	AudioRef    string    `db:"audio_ref"`
	DurationSec float64   `db:"duration_sec"`
	CreatedAt   time.Time `db:"created_at"`
}
