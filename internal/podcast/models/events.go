package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

// PodcastStatusChanged is emitted for every status transition, including the
// jump to failed and the restart edge back to pending.
type PodcastStatusChanged struct {
	eventID    uuid.UUID
	podcastID  uuid.UUID
	from       Status
	to         Status
	stage      *Stage
	detail     *string
	occurredAt time.Time
}

func NewPodcastStatusChanged(podcastID uuid.UUID, from, to Status) *PodcastStatusChanged {
	return &PodcastStatusChanged{
		eventID:    uuid.New(),
		podcastID:  podcastID,
		from:       from,
		to:         to,
		occurredAt: time.Now(),
	}
}

// NewPodcastFailed carries the failing stage and error detail alongside the
// transition to failed.
func NewPodcastFailed(podcastID uuid.UUID, from Status, stage Stage, detail string) *PodcastStatusChanged {
	e := NewPodcastStatusChanged(podcastID, from, FailedStatus)
	e.stage = &stage
	e.detail = &detail
	return e
}

func (e *PodcastStatusChanged) EventID() uuid.UUID     { return e.eventID }
func (e *PodcastStatusChanged) EventType() string      { return "PodcastStatusChanged" }
func (e *PodcastStatusChanged) AggregateID() uuid.UUID { return e.podcastID }
func (e *PodcastStatusChanged) OccurredAt() time.Time  { return e.occurredAt }

func (e *PodcastStatusChanged) From() Status { return e.from }
func (e *PodcastStatusChanged) To() Status   { return e.to }

func (e *PodcastStatusChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		PodcastID  uuid.UUID `json:"podcast_id"`
		From       Status    `json:"from"`
		To         Status    `json:"to"`
		Stage      *Stage    `json:"stage,omitempty"`
		Detail     *string   `json:"detail,omitempty"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		PodcastID:  e.podcastID,
		From:       e.from,
		To:         e.to,
		Stage:      e.stage,
		Detail:     e.detail,
		OccurredAt: e.occurredAt,
	})
}
