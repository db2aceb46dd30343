package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"swanid/internal/models"
)

const maxTagsPartBytes = 64 << 10 // 64 KiB

func validateImageID(id string) error {
	if !models.IsValidImageID(id) {
		return badRequestCode(fmt.Errorf("invalid image id %q", id), ErrCodeInvalidID)
	}
	return nil
}

func requireImageID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := validateImageID(id); err != nil {
		return "", err
	}
	return id, nil
}

func normalizeTags(values []string) ([]string, error) {
	tags, err := models.NormalizeTags(values)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidTags)
	}
	return tags, nil
}

// queryTags collects ?tags= values. Each value is split on whitespace and
// repeated parameters accumulate.
func queryTags(r *http.Request) ([]string, error) {
	var raw []string
	for _, value := range r.URL.Query()["tags"] {
		raw = append(raw, models.ParseTags(value)...)
	}
	return normalizeTags(raw)
}

// formTags reads the whitespace-delimited tag list of a multipart upload.
// Old clients send it as a file part named "tags"; newer ones as a field.
func formTags(form *multipart.Form) ([]string, error) {
	if form == nil {
		return []string{}, nil
	}
	var raw []string
	for _, value := range form.Value["tags"] {
		raw = append(raw, models.ParseTags(value)...)
	}
	for _, header := range form.File["tags"] {
		text, err := readSmallPart(header)
		if err != nil {
			return nil, badRequestCode(fmt.Errorf("read tags: %w", err), ErrCodeInvalidTags)
		}
		raw = append(raw, models.ParseTags(text)...)
	}
	return normalizeTags(raw)
}

func readSmallPart(header *multipart.FileHeader) (string, error) {
	if header.Size > maxTagsPartBytes {
		return "", fmt.Errorf("tags part exceeds %d bytes", maxTagsPartBytes)
	}
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxTagsPartBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// uploadedFiles returns image parts in form order. Parts without a filename
// and the legacy "tags" pseudo-file are skipped.
func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	var files []*multipart.FileHeader
	for _, key := range []string{"f[]", "file"} {
		for _, header := range form.File[key] {
			name := strings.TrimSpace(header.Filename)
			if name == "" || name == "tags" {
				continue
			}
			files = append(files, header)
		}
	}
	return files
}

func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return nil, false
	}
	return r.MultipartForm, true
}

func (s *Server) cleanupUploadForm(r *http.Request) {
	if r.MultipartForm == nil {
		return
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		s.log().Warn("remove multipart temp files", "path", r.URL.Path, "error", err)
	}
}
