package server

import (
	"net/http"

	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Classification.
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)

	// Images collection.
	mux.HandleFunc("POST /v1/images", s.handleSaveImage)
	mux.HandleFunc("GET /v1/images", s.handleFindImages)

	// Single image.
	mux.HandleFunc("GET /v1/images/{id}", s.handleGetImage)
	mux.HandleFunc("GET /v1/images/{id}/content", s.handleGetImageContent)
	mux.HandleFunc("PUT /v1/images/{id}/tags", s.handleUpdateImageTags)
	mux.HandleFunc("DELETE /v1/images/{id}", s.handleDeleteImage)

	// Admin.
	mux.HandleFunc("POST /v1/admin/repair", s.handleAdminRepair)

	// Form-based routes kept for older clients.
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /save", s.handleLegacySave)
	mux.HandleFunc("GET /image", s.handleLegacyFind)
	mux.HandleFunc("GET /download/{id}", s.handleLegacyDownload)
	mux.HandleFunc("POST /update/{id}", s.handleLegacyUpdate)
	mux.HandleFunc("POST /delete/{id}", s.handleLegacyDelete)

	var handler http.Handler = mux
	handler = s.withAuth(handler)
	handler = s.withRequestLogging(handler)
	handler = s.withCORS(handler)
	return handler
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		return next
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
