package server

import (
	"context"
	"slices"
	"strings"
	"testing"
)

func TestRepairReportsWithoutApplying(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx := context.Background()

	healthy := saveImage(t, svc, "ok.jpg", "ok", "swan")
	missing := saveImage(t, svc, "missing.jpg", "gone", "swan")
	if err := env.blobs.Delete(ctx, missing.ID); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	orphanID := "5e8d7c6b-5a49-4382-9170-8f9e0d1c2b3a"
	if _, err := env.blobs.Put(ctx, orphanID, "png", strings.NewReader("orphan")); err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	report, err := svc.Repair(ctx, false)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Applied {
		t.Fatal("dry run must not apply")
	}
	if !slices.Equal(report.OrphanBlobs, []string{orphanID}) {
		t.Fatalf("unexpected orphan blobs: %v", report.OrphanBlobs)
	}
	if !slices.Equal(report.MissingBlobs, []string{missing.ID}) {
		t.Fatalf("unexpected missing blobs: %v", report.MissingBlobs)
	}

	if _, found, _ := env.blobs.FindByID(ctx, orphanID); !found {
		t.Fatal("dry run removed orphan blob")
	}
	if ok, _ := env.meta.Exists(ctx, missing.ID); !ok {
		t.Fatal("dry run removed record")
	}
	if _, err := svc.Lookup(ctx, healthy.ID); err != nil {
		t.Fatalf("healthy image affected: %v", err)
	}
}

func TestRepairApplyRestoresConsistency(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx := context.Background()

	healthy := saveImage(t, svc, "ok.jpg", "ok", "swan")
	missing := saveImage(t, svc, "missing.jpg", "gone", "swan")
	if err := env.blobs.Delete(ctx, missing.ID); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	// Blob stored under an extension the record does not name.
	mismatched := saveImage(t, svc, "mismatch.jpg", "m", "swan")
	if err := env.blobs.Delete(ctx, mismatched.ID); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	if _, err := env.blobs.Put(ctx, mismatched.ID, "jpeg", strings.NewReader("m")); err != nil {
		t.Fatalf("put mismatched: %v", err)
	}
	orphanID := "5e8d7c6b-5a49-4382-9170-8f9e0d1c2b3a"
	if _, err := env.blobs.Put(ctx, orphanID, "png", strings.NewReader("orphan")); err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	report, err := svc.Repair(ctx, true)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !report.Applied || report.DeletedBlobs != 1 || report.DeletedRecords != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	for _, id := range []string{missing.ID, mismatched.ID, orphanID} {
		if ok, _ := env.meta.Exists(ctx, id); ok {
			t.Fatalf("record %s survived repair", id)
		}
		if _, found, _ := env.blobs.FindByID(ctx, id); found {
			t.Fatalf("blob %s survived repair", id)
		}
	}
	if got := queryIDs(t, svc, "swan"); !slices.Equal(got, []string{healthy.ID}) {
		t.Fatalf("expected only the healthy image, got %v", got)
	}

	again, err := svc.Repair(ctx, false)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if len(again.OrphanBlobs) != 0 || len(again.MissingBlobs) != 0 {
		t.Fatalf("repair did not converge: %+v", again)
	}
}
