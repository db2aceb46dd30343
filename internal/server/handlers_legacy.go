package server

import (
	"fmt"
	"net/http"
	"strings"

	"swanid/internal/api"
	"swanid/internal/models"
)

// Handlers in this file answer with the {"status": ...} bodies older
// clients expect instead of api.ErrorResponse where they differ.

var (
	legacySuccess  = map[string]string{"status": "success"}
	legacyNotFound = map[string]string{"status": "not found"}
)

func (s *Server) handleLegacySave(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseUploadForm(w, r)
	if !ok {
		return
	}
	defer s.cleanupUploadForm(r)

	tags, err := formTags(form)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	files := uploadedFiles(form)
	if len(files) == 0 {
		s.log().Warn("legacy save without file", "remote_addr", r.RemoteAddr)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "internal server error"})
		return
	}

	// Only the first file is stored, one id per request.
	rec, err := s.saveUpload(r, files[0], tags)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LegacySaveResponse{Status: "success", UUID: rec.ID})
}

func (s *Server) handleLegacyFind(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("tags") {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("tags is required"), ErrCodeMissingRequired))
		return
	}
	tags, err := queryTags(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	records, err := s.images.Query(r.Context(), tags)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]api.LegacyImageResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toLegacyImageResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLegacyDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !models.IsValidImageID(id) {
		s.writeJSON(w, http.StatusNotFound, legacyNotFound)
		return
	}
	content, err := s.images.OpenContent(r.Context(), id)
	if err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			s.writeJSON(w, http.StatusNotFound, legacyNotFound)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.writeImageContent(w, r, content, "inline")
}

func (s *Server) handleLegacyUpdate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	form, ok := s.parseUploadForm(w, r)
	if !ok {
		return
	}
	defer s.cleanupUploadForm(r)

	tags, err := formTags(form)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if !models.IsValidImageID(id) {
		s.writeJSON(w, http.StatusNotFound, legacyNotFound)
		return
	}
	s.log().Info("updating image tags", "id", id, "tags", tags)
	if _, err := s.images.UpdateTags(r.Context(), id, tags); err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			s.writeJSON(w, http.StatusNotFound, legacyNotFound)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, legacySuccess)
}

func (s *Server) handleLegacyDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !models.IsValidImageID(id) {
		// Nothing can be stored under a malformed id.
		s.writeJSON(w, http.StatusOK, legacySuccess)
		return
	}
	if err := s.images.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, legacySuccess)
}
