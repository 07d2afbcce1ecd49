package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
	"github.com/castlab/podcast-pipeline/internal/podcast/service"
	"github.com/castlab/podcast-pipeline/internal/slice"
	"github.com/castlab/podcast-pipeline/internal/transcribe"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in RAM
// before spilling to temp files.
const maxUploadMemory = 32 << 20

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Podcasts dispatches /podcasts by method.
func (h *Handler) Podcasts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createPodcast(w, r)
	case http.MethodGet:
		h.listPodcasts(w, r)
	default:
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// PodcastByID dispatches /podcasts/{id} and its subresources.
func (h *Handler) PodcastByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/podcasts/")
	idStr, sub, _ := strings.Cut(rest, "/")

	id, err := uuid.Parse(idStr)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.getPodcast(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.deletePodcast(w, r, id)
	case sub == "restart" && r.Method == http.MethodPost:
		h.restartPodcast(w, r, id)
	case sub == "keypoints" && r.Method == http.MethodGet:
		h.listKeyPoints(w, r, id)
	case sub == "clips" && r.Method == http.MethodGet:
		h.listClips(w, r, id)
	case sub == "" || sub == "restart" || sub == "keypoints" || sub == "clips":
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeErrorJSON(w, http.StatusNotFound, "not found")
	}
}

// ShareKeyPoint handles GET /keypoints/{id}/share/facebook.
func (h *Handler) ShareKeyPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/keypoints/")
	idStr, sub, _ := strings.Cut(rest, "/")
	if sub != "share/facebook" {
		writeErrorJSON(w, http.StatusNotFound, "not found")
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	shareURL, err := h.svc.ShareURL(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ShareResponse{ShareURL: shareURL})
}

func (h *Handler) createPodcast(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := r.FormValue("title")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "read audio file")
		return
	}

	p, err := h.svc.CreatePodcast(r.Context(), ownerID, title, header.Filename, audio)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPodcastResponse(p))
}

func (h *Handler) listPodcasts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	podcasts, err := h.svc.ListPodcasts(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]PodcastResponse, 0, len(podcasts))
	for i := range podcasts {
		resp = append(resp, toPodcastResponse(&podcasts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPodcast(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	p, err := h.svc.GetPodcast(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPodcastResponse(p))
}

func (h *Handler) deletePodcast(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeletePodcast(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restartPodcast(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	p, err := h.svc.RestartProcessing(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPodcastResponse(p))
}

func (h *Handler) listKeyPoints(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	points, err := h.svc.ListKeyPoints(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]KeyPointResponse, 0, len(points))
	for _, kp := range points {
		resp = append(resp, KeyPointResponse{
			ID:       kp.ID,
			Idx:      kp.Idx,
			Content:  kp.Content,
			StartSec: kp.StartSec,
			EndSec:   kp.EndSec,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listClips(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	clips, err := h.svc.ListClips(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]ClipResponse, 0, len(clips))
	for _, c := range clips {
		resp = append(resp, ClipResponse{
			ID:          c.ID,
			KeyPointID:  c.KeyPointID,
			URL:         h.svc.ClipURL(c),
			DurationSec: c.DurationSec,
			CreatedAt:   c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ownerFrom reads the authenticated user from the X-User-ID header. Auth is
// terminated at the edge proxy, which injects the header.
func ownerFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "missing X-User-ID header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeErrorJSON(w, http.StatusUnauthorized, "invalid X-User-ID header")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transcribe.ErrUnsupportedFormat), errors.Is(err, slice.ErrUnsupportedFormat):
		writeErrorJSON(w, http.StatusUnsupportedMediaType, "unsupported audio format")
	case errors.Is(err, models.ErrInvalidArgument):
		writeErrorJSON(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, models.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrPermissionDenied):
		writeErrorJSON(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrConflict):
		writeErrorJSON(w, http.StatusConflict, "conflict")
	default:
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
