package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"swanid/internal/blobstore"
)

// RepairReport lists disagreements between metadata and blob storage.
type RepairReport struct {
	Applied        bool
	OrphanBlobs    []string
	MissingBlobs   []string
	DeletedBlobs   int
	DeletedRecords int
}

// Repair scans the blob root against the metadata store. Blobs without a
// record are orphans; records whose blob is absent are missing. With apply
// both are deleted. Saves and deletes wait while repair runs.
func (s *ImageService) Repair(ctx context.Context, apply bool) (report RepairReport, err error) {
	defer s.observe("repair", time.Now(), &err)

	s.writes.Lock()
	defer s.writes.Unlock()

	records, err := s.meta.List(ctx)
	if err != nil {
		s.logger.Error("list image metadata", "error", err)
		return report, storeFailure(fmt.Errorf("repair: %w", err))
	}
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		s.logger.Error("list image blobs", "error", err)
		return report, storeFailure(fmt.Errorf("repair: %w", err))
	}

	known := make(map[string]struct{}, len(records))
	for _, rec := range records {
		known[rec.ID] = struct{}{}
	}

	report.OrphanBlobs = []string{}
	seen := map[string]struct{}{}
	for _, loc := range blobs {
		if _, ok := known[loc.ID]; ok {
			continue
		}
		if _, dup := seen[loc.ID]; dup {
			continue
		}
		seen[loc.ID] = struct{}{}
		report.OrphanBlobs = append(report.OrphanBlobs, loc.ID)
	}

	report.MissingBlobs = []string{}
	for _, rec := range records {
		_, err := s.blobs.Locate(ctx, rec.ID, rec.Ext)
		if errors.Is(err, blobstore.ErrNotFound) {
			report.MissingBlobs = append(report.MissingBlobs, rec.ID)
			continue
		}
		if err != nil {
			s.logger.Error("locate image blob", "id", rec.ID, "error", err)
			return report, storeFailure(fmt.Errorf("repair %s: %w", rec.ID, err))
		}
	}
	sort.Strings(report.OrphanBlobs)
	sort.Strings(report.MissingBlobs)

	for _, id := range report.OrphanBlobs {
		s.logger.Warn("orphan image blob", "id", id)
	}
	for _, id := range report.MissingBlobs {
		s.logger.Warn("image record without blob", "id", id)
	}
	if !apply {
		return report, nil
	}

	report.Applied = true
	for _, id := range report.OrphanBlobs {
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Error("delete orphan blob", "id", id, "error", err)
			return report, storeFailure(fmt.Errorf("repair %s: %w", id, err))
		}
		report.DeletedBlobs++
	}
	for _, id := range report.MissingBlobs {
		if err := s.meta.DeleteByID(ctx, id); err != nil {
			s.logger.Error("delete orphan record", "id", id, "error", err)
			return report, storeFailure(fmt.Errorf("repair %s: %w", id, err))
		}
		// Blobs stored under another extension are unreachable once the record is gone.
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.logger.Error("delete orphan record blob", "id", id, "error", err)
			return report, storeFailure(fmt.Errorf("repair %s: %w", id, err))
		}
		report.DeletedRecords++
	}
	s.logger.Info("repair applied", "deleted_blobs", report.DeletedBlobs, "deleted_records", report.DeletedRecords)
	return report, nil
}
