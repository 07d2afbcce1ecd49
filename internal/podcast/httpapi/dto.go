package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

type PodcastResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Format      string    `json:"format"`
	Status      string    `json:"status"`
	FailedStage *string   `json:"failed_stage,omitempty"`
	ErrorDetail *string   `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type KeyPointResponse struct {
	ID       uuid.UUID `json:"id"`
	Idx      int       `json:"idx"`
	Content  string    `json:"content"`
	StartSec float64   `json:"start_sec"`
	EndSec   float64   `json:"end_sec"`
}

type ClipResponse struct {
	ID          uuid.UUID `json:"id"`
	KeyPointID  uuid.UUID `json:"key_point_id"`
	URL         string    `json:"url"`
	DurationSec float64   `json:"duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
}

type ShareResponse struct {
	ShareURL string `json:"share_url"`
}

func toPodcastResponse(p *models.Podcast) PodcastResponse {
	resp := PodcastResponse{
		ID:        p.ID,
		Title:     p.Title,
		Format:    p.Format,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.FailedStage != nil {
		stage := string(*p.FailedStage)
		resp.FailedStage = &stage
	}
	resp.ErrorDetail = p.ErrorDetail
	return resp
}
