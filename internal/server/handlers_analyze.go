package server

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"swanid/internal/api"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.analyzeLimiter, "analyze", func() {
		form, ok := s.parseUploadForm(w, r)
		if !ok {
			return
		}
		defer s.cleanupUploadForm(r)

		headers := uploadedFiles(form)
		uploads := make([]AnalyzeUpload, 0, len(headers))
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				closeUploads(uploads)
				s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("open upload %s: %w", header.Filename, err), ErrCodeInvalidUpload))
				return
			}
			uploads = append(uploads, AnalyzeUpload{Filename: header.Filename, Content: file})
		}
		defer closeUploads(uploads)

		s.log().Info("analyze request", "files", uploadNames(headers))
		results, err := s.classify.Analyze(r.Context(), uploads)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		resp := make(api.AnalyzeResponse, len(results))
		for name, overall := range results {
			resp[name] = api.AnalyzeResult{OverallClass: overall}
		}
		s.writeJSON(w, http.StatusOK, resp)
	})
}

func closeUploads(uploads []AnalyzeUpload) {
	for _, upload := range uploads {
		if f, ok := upload.Content.(multipart.File); ok {
			_ = f.Close()
		}
	}
}

func uploadNames(headers []*multipart.FileHeader) []string {
	names := make([]string, 0, len(headers))
	for _, header := range headers {
		names = append(names, header.Filename)
	}
	return names
}
