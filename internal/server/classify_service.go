package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"swanid/internal/classifier"
	"swanid/internal/metrics"
)

// ClassifyService stages uploads in scratch space and runs them through the
// inference service. Nothing it touches enters the image store.
type ClassifyService struct {
	classifier classifier.Classifier
	scratchDir string
	metrics    *metrics.ClassifyMetrics
	logger     *slog.Logger
}

// AnalyzeUpload is one file submitted for classification.
type AnalyzeUpload struct {
	Filename string
	Content  io.Reader
}

// NewClassifyService constructs a ClassifyService. A nil classifier disables classification.
func NewClassifyService(c classifier.Classifier, scratchDir string, classifyMetrics *metrics.ClassifyMetrics, logger *slog.Logger) *ClassifyService {
	if c == nil {
		c = classifier.Disabled{}
	}
	if strings.TrimSpace(scratchDir) == "" {
		scratchDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyService{
		classifier: c,
		scratchDir: scratchDir,
		metrics:    classifyMetrics,
		logger:     logger,
	}
}

// Analyze classifies uploads and keys each result by the client filename.
// The staging directory is removed on every return path.
func (s *ClassifyService) Analyze(ctx context.Context, uploads []AnalyzeUpload) (out map[string]map[string]any, err error) {
	defer func() {
		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultError
		}
		s.metrics.ObserveRequest(result, len(uploads))
	}()

	out = map[string]map[string]any{}
	if len(uploads) == 0 {
		return out, nil
	}

	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return nil, internalError(fmt.Errorf("create scratch dir: %w", err))
	}
	dir, err := os.MkdirTemp(s.scratchDir, "analyze-*")
	if err != nil {
		return nil, internalError(fmt.Errorf("create scratch dir: %w", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Error("remove scratch dir", "dir", dir, "error", rmErr)
		}
	}()

	paths := make([]string, 0, len(uploads))
	byPath := make(map[string]string, len(uploads))
	byBase := make(map[string]string, len(uploads))
	for i, upload := range uploads {
		path := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, scratchName(upload.Filename)))
		if err := stageFile(path, upload.Content); err != nil {
			return nil, internalError(fmt.Errorf("stage %s: %w", upload.Filename, err))
		}
		paths = append(paths, path)
		byPath[path] = upload.Filename
		byBase[filepath.Base(path)] = upload.Filename
	}

	s.logger.Debug("sending files to classifier", "count", len(paths), "dir", dir)
	predictions, err := s.classifier.Classify(ctx, paths)
	if errors.Is(err, classifier.ErrUnavailable) {
		return nil, classifierUnavailable(err)
	}
	if err != nil {
		return nil, classifierFailure(err)
	}

	for _, prediction := range predictions {
		name := prediction.Filename()
		client, ok := byPath[filepath.Clean(name)]
		if !ok {
			client, ok = byBase[filepath.Base(name)]
		}
		if !ok {
			s.logger.Warn("prediction for unknown file", "filename", name)
			continue
		}
		out[client] = prediction.WithoutFilename()
	}
	return out, nil
}

// scratchName reduces a client filename to a single safe path element.
func scratchName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

func stageFile(path string, content io.Reader) error {
	if content == nil {
		return fmt.Errorf("content is required")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
