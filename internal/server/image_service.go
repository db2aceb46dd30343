package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"swanid/internal/blobstore"
	"swanid/internal/metrics"
	"swanid/internal/models"
	"swanid/internal/store"
)

// ErrInconsistentState reports that metadata and blob disagree on whether an image exists.
var ErrInconsistentState = errors.New("image metadata and blob disagree")

// ImageService keeps image metadata and blob storage consistent.
type ImageService struct {
	meta    store.MetadataStore
	blobs   blobstore.BlobRepository
	metrics *metrics.StoreMetrics
	logger  *slog.Logger
	newID   func() string

	// writes lets repair exclude saves and deletes while it reconciles.
	writes sync.RWMutex
}

// SaveInput is a validated save command.
type SaveInput struct {
	Filename string
	Content  io.Reader
	Tags     []string
}

// ImageView is a record together with the blob that backs it.
type ImageView struct {
	Record   models.ImageRecord
	BlobPath string
}

// ImageContent is an open blob ready to stream.
type ImageContent struct {
	File   *os.File
	Record models.ImageRecord
}

// NewImageService constructs an ImageService.
func NewImageService(meta store.MetadataStore, blobs blobstore.BlobRepository, storeMetrics *metrics.StoreMetrics, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		meta:    meta,
		blobs:   blobs,
		metrics: storeMetrics,
		logger:  logger,
		newID:   models.NewImageID,
	}
}

// Save stores the blob first and then its metadata. When the metadata write
// fails the blob is removed again before the error is returned.
func (s *ImageService) Save(ctx context.Context, in SaveInput) (rec models.ImageRecord, err error) {
	defer s.observe("save", time.Now(), &err)

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return rec, badRequestCode(fmt.Errorf("filename is required"), ErrCodeMissingRequired)
	}
	if in.Content == nil {
		return rec, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return rec, err
	}

	s.writes.RLock()
	defer s.writes.RUnlock()

	id := s.newID()
	exists, err := s.meta.Exists(ctx, id)
	if err != nil {
		s.logger.Error("check image id", "id", id, "error", err)
		return rec, storeFailure(fmt.Errorf("save image %s: %w", id, err))
	}
	if exists {
		return rec, s.duplicateID(id, store.ErrDuplicateID)
	}
	ext := models.ExtensionOf(filename)
	put, err := s.blobs.Put(ctx, id, ext, in.Content)
	if errors.Is(err, blobstore.ErrExists) {
		return rec, s.duplicateID(id, err)
	}
	if err != nil {
		return rec, s.blobWriteError(id, err)
	}

	// The blob is on disk, so the rest must finish or roll back even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	rec = models.ImageRecord{
		ID:        id,
		Filename:  filename,
		Ext:       ext,
		Tags:      tags,
		MediaType: put.MediaType,
		SizeBytes: put.SizeBytes,
		SHA256:    put.SHA256,
	}
	if err := s.meta.Add(ctx, &rec); err != nil {
		// Only the file written above belongs to this save.
		if rbErr := s.blobs.Remove(ctx, id, ext); rbErr != nil {
			s.logger.Error("rollback image blob", "id", id, "error", rbErr)
		}
		if errors.Is(err, store.ErrDuplicateID) {
			return models.ImageRecord{}, s.duplicateID(id, err)
		}
		s.logger.Error("write image metadata", "id", id, "error", err)
		return models.ImageRecord{}, storeFailure(fmt.Errorf("save image %s: %w", id, err))
	}

	s.logger.Info("image saved", "id", id, "filename", filename, "tags", tags, "size_bytes", put.SizeBytes)
	return rec, nil
}

func (s *ImageService) duplicateID(id string, err error) error {
	s.logger.Error("duplicate image id", "id", id, "error", err)
	return internalErrorCode(fmt.Errorf("save image %s: %w", id, err), ErrCodeDuplicateID)
}

func (s *ImageService) blobWriteError(id string, err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return badRequestCode(fmt.Errorf("upload too large"), ErrCodeRequestTooLarge)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return internalError(fmt.Errorf("save image %s: %w", id, err))
	}
	s.logger.Error("write image blob", "id", id, "error", err)
	return storeFailure(fmt.Errorf("save image %s: %w", id, err))
}

// Delete removes metadata and then the blob. Unknown ids succeed.
func (s *ImageService) Delete(ctx context.Context, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := validateImageID(id); err != nil {
		return err
	}

	s.writes.RLock()
	defer s.writes.RUnlock()

	ctx = context.WithoutCancel(ctx)
	if err := s.meta.DeleteByID(ctx, id); err != nil {
		s.logger.Error("delete image metadata", "id", id, "error", err)
		return storeFailure(fmt.Errorf("delete image %s: %w", id, err))
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Error("delete image blob", "id", id, "error", err)
		return storeFailure(fmt.Errorf("delete image %s: %w", id, err))
	}
	return nil
}

// UpdateTags replaces the full tag set of id.
func (s *ImageService) UpdateTags(ctx context.Context, id string, tags []string) (rec models.ImageRecord, err error) {
	defer s.observe("update_tags", time.Now(), &err)

	if err := validateImageID(id); err != nil {
		return rec, err
	}
	normalized, err := normalizeTags(tags)
	if err != nil {
		return rec, err
	}

	updated, err := s.meta.UpdateTags(ctx, id, normalized)
	if err != nil {
		return rec, s.metadataError(id, err)
	}
	return *updated, nil
}

// Lookup resolves id on both sides. Absent on both is NotFound; present on
// only one is ErrInconsistentState.
func (s *ImageService) Lookup(ctx context.Context, id string) (view ImageView, err error) {
	defer s.observe("lookup", time.Now(), &err)
	return s.lookup(ctx, id)
}

func (s *ImageService) lookup(ctx context.Context, id string) (ImageView, error) {
	if err := validateImageID(id); err != nil {
		return ImageView{}, err
	}

	rec, err := s.meta.Get(ctx, id)
	metaFound := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ImageView{}, s.metadataError(id, err)
	}

	var loc blobstore.Location
	blobFound := false
	if metaFound {
		loc, err = s.blobs.Locate(ctx, id, rec.Ext)
		blobFound = err == nil
	} else {
		loc, blobFound, err = s.blobs.FindByID(ctx, id)
	}
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("locate image blob", "id", id, "error", err)
		return ImageView{}, storeFailure(fmt.Errorf("lookup image %s: %w", id, err))
	}

	switch {
	case !metaFound && !blobFound:
		return ImageView{}, notFound(fmt.Errorf("image %s not found", id))
	case metaFound != blobFound:
		s.logger.Error("inconsistent image state", "id", id, "metadata", metaFound, "blob", blobFound)
		return ImageView{}, inconsistentState(fmt.Errorf("image %s: %w", id, ErrInconsistentState))
	}
	return ImageView{Record: *rec, BlobPath: loc.Path}, nil
}

// Query returns images carrying any of tags, oldest first.
func (s *ImageService) Query(ctx context.Context, tags []string) (records []models.ImageRecord, err error) {
	defer s.observe("query", time.Now(), &err)

	normalized, err := normalizeTags(tags)
	if err != nil {
		return nil, err
	}
	records = []models.ImageRecord{}
	if len(normalized) == 0 {
		return records, nil
	}

	ids, err := s.meta.FindByTags(ctx, normalized)
	if err != nil {
		s.logger.Error("find images by tags", "tags", normalized, "error", err)
		return nil, storeFailure(fmt.Errorf("query images: %w", err))
	}
	for _, id := range ids {
		rec, err := s.meta.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between the index scan and the read.
			continue
		}
		if err != nil {
			return nil, s.metadataError(id, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// OpenContent opens the blob of id for streaming. Callers close File.
func (s *ImageService) OpenContent(ctx context.Context, id string) (content ImageContent, err error) {
	defer s.observe("open", time.Now(), &err)

	view, err := s.lookup(ctx, id)
	if err != nil {
		return content, err
	}
	file, err := s.blobs.Open(ctx, id, view.Record.Ext)
	if errors.Is(err, blobstore.ErrNotFound) {
		return content, notFound(fmt.Errorf("image %s not found", id))
	}
	if err != nil {
		s.logger.Error("open image blob", "id", id, "error", err)
		return content, storeFailure(fmt.Errorf("open image %s: %w", id, err))
	}
	return ImageContent{File: file, Record: view.Record}, nil
}

func (s *ImageService) metadataError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Errorf("image %s not found", id))
	}
	s.logger.Error("image metadata failure", "id", id, "error", err)
	return storeFailure(fmt.Errorf("image %s: %w", id, err))
}

func (s *ImageService) observe(op string, start time.Time, errp *error) {
	result := metrics.ResultOK
	if errp != nil && *errp != nil {
		result = metrics.ResultError
		if httpStatusFromError(*errp) == http.StatusNotFound {
			result = metrics.ResultNotFound
		}
	}
	s.metrics.Observe(op, result, time.Since(start))
}
