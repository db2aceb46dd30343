package server

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"swanid/internal/api"
	"swanid/internal/models"
)

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
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
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("at least one file is required"), ErrCodeMissingRequired))
		return
	}

	// A request stores all of its files or none of them.
	saved := make([]models.ImageRecord, 0, len(files))
	for _, header := range files {
		rec, err := s.saveUpload(r, header, tags)
		if err != nil {
			s.rollbackSaves(r, saved)
			s.writeServiceError(w, r, err)
			return
		}
		saved = append(saved, rec)
	}

	s.writeJSON(w, http.StatusCreated, api.SaveResponse{
		Status: "success",
		ID:     saved[0].ID,
		Images: toImageResponses(saved),
	})
}

func (s *Server) rollbackSaves(r *http.Request, saved []models.ImageRecord) {
	ctx := context.WithoutCancel(r.Context())
	for _, rec := range saved {
		if err := s.images.Delete(ctx, rec.ID); err != nil {
			s.log().Error("rollback saved image", "id", rec.ID, "error", err)
		}
	}
}

func (s *Server) saveUpload(r *http.Request, header *multipart.FileHeader, tags []string) (models.ImageRecord, error) {
	file, err := header.Open()
	if err != nil {
		return models.ImageRecord{}, badRequestCode(fmt.Errorf("open upload %s: %w", header.Filename, err), ErrCodeInvalidUpload)
	}
	defer file.Close()

	return s.images.Save(r.Context(), SaveInput{
		Filename: header.Filename,
		Content:  file,
		Tags:     tags,
	})
}

func (s *Server) handleFindImages(w http.ResponseWriter, r *http.Request) {
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
	s.writeJSON(w, http.StatusOK, toImageResponses(records))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	view, err := s.images.Lookup(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toImageResponse(view.Record))
}

func (s *Server) handleGetImageContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	content, err := s.images.OpenContent(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeImageContent(w, r, content, "attachment")
}

// writeImageContent streams and closes an open blob. Range and conditional
// requests are handled by http.ServeContent.
func (s *Server) writeImageContent(w http.ResponseWriter, r *http.Request, content ImageContent, disposition string) {
	defer content.File.Close()

	rec := content.Record
	if rec.MediaType != "" {
		w.Header().Set("Content-Type", rec.MediaType)
	}
	if rec.SHA256 != "" {
		w.Header().Set("ETag", strconv.Quote(rec.SHA256))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": rec.Filename}))
	http.ServeContent(w, r, rec.Filename, rec.CreatedAt, content.File)
}

func (s *Server) handleUpdateImageTags(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.TagsRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.Tags == nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("tags is required"), ErrCodeMissingRequired))
		return
	}

	rec, err := s.images.UpdateTags(r.Context(), id, req.Tags)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toImageResponse(rec))
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.images.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponse{Status: "success", ID: id})
}
