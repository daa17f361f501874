package handlers

import "net/http"

// Register mounts the application routes. Anything unmatched is a 404.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("POST /result", h.Result)
	mux.HandleFunc("POST /predict/image", h.PredictFromImage)
	mux.HandleFunc("POST /feedback", h.Feedback)
	mux.HandleFunc("GET /feedback/stats", h.FeedbackStats)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("/", h.NotFound)
}
