package httpapi

import "net/http"

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.Health)

	// POST /podcasts, GET /podcasts
	mux.HandleFunc("/podcasts", h.Podcasts)

	// GET|DELETE /podcasts/{id}, POST /podcasts/{id}/restart,
	// GET /podcasts/{id}/keypoints, GET /podcasts/{id}/clips
	mux.HandleFunc("/podcasts/", h.PodcastByID)

	// GET /keypoints/{id}/share/facebook
	mux.HandleFunc("/keypoints/", h.ShareKeyPoint)

	return mux
}
