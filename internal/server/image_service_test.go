package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"swanid/internal/metrics"
	"swanid/internal/models"
	"swanid/internal/store"
)

func TestImageServiceSaveIDsAreUnique(t *testing.T) {
	svc, _ := newTestImageService(t)

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		rec := saveImage(t, svc, "swan.jpg", "bytes", "swan")
		if _, dup := seen[rec.ID]; dup {
			t.Fatalf("duplicate id %s after %d saves", rec.ID, i)
		}
		seen[rec.ID] = struct{}{}
	}
}

func TestImageServiceSaveLookupRoundTrip(t *testing.T) {
	svc, _ := newTestImageService(t)
	ctx := context.Background()
	payload := "\x89PNG\r\n\x1a\nfake image body"

	rec := saveImage(t, svc, "cygnus.png", payload, "white", "swan", "swan")

	view, err := svc.Lookup(ctx, rec.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if view.Record.Filename != "cygnus.png" {
		t.Fatalf("expected filename cygnus.png, got %q", view.Record.Filename)
	}
	if !slices.Equal(view.Record.Tags, []string{"swan", "white"}) {
		t.Fatalf("unexpected tags: %v", view.Record.Tags)
	}
	if view.Record.MediaType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", view.Record.MediaType)
	}
	if view.Record.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), view.Record.SizeBytes)
	}

	data, err := os.ReadFile(view.BlobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("blob bytes differ: %q", data)
	}

	content, err := svc.OpenContent(ctx, rec.ID)
	if err != nil {
		t.Fatalf("open content: %v", err)
	}
	defer content.File.Close()
	streamed, err := io.ReadAll(content.File)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if string(streamed) != payload {
		t.Fatalf("streamed bytes differ: %q", streamed)
	}
}

func TestImageServiceUpdateTagsReplacesSet(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx := context.Background()
	rec := saveImage(t, svc, "a.jpg", "a", "old", "stale")

	updated, err := svc.UpdateTags(ctx, rec.ID, []string{"new", "adult", "new"})
	if err != nil {
		t.Fatalf("update tags: %v", err)
	}
	if !slices.Equal(updated.Tags, []string{"adult", "new"}) {
		t.Fatalf("unexpected tags in response: %v", updated.Tags)
	}

	tags, err := env.meta.GetTags(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get tags: %v", err)
	}
	slices.Sort(tags)
	if !slices.Equal(tags, []string{"adult", "new"}) {
		t.Fatalf("expected replaced tag set, got %v", tags)
	}
}

// deletedAfterUpdateStore behaves as if a delete lands right after UpdateTags commits.
type deletedAfterUpdateStore struct {
	store.MetadataStore
}

func (deletedAfterUpdateStore) Get(context.Context, string) (*models.ImageRecord, error) {
	return nil, store.ErrNotFound
}

func TestImageServiceUpdateTagsReportsCommittedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := saveImage(t, NewImageService(env.meta, env.blobs, nil, quietLogger()), "a.jpg", "a", "old")
	svc := NewImageService(deletedAfterUpdateStore{MetadataStore: env.meta}, env.blobs, nil, quietLogger())

	updated, err := svc.UpdateTags(ctx, rec.ID, []string{"new"})
	if err != nil {
		t.Fatalf("committed update must succeed: %v", err)
	}
	if updated.ID != rec.ID || !slices.Equal(updated.Tags, []string{"new"}) {
		t.Fatalf("unexpected record: %#v", updated)
	}
}

func TestImageServiceUpdateTagsUnknownID(t *testing.T) {
	svc, _ := newTestImageService(t)

	_, err := svc.UpdateTags(context.Background(), "9b2f3c1e-4d5a-4b6c-8d7e-0f1a2b3c4d5e", []string{"x"})
	if httpStatusFromError(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%v)", httpStatusFromError(err), err)
	}
}

func TestImageServiceDeleteIsCompleteAndIdempotent(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx := context.Background()
	rec := saveImage(t, svc, "gone.jpg", "bytes", "swan")

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Lookup(ctx, rec.ID); httpStatusFromError(err) != http.StatusNotFound {
		t.Fatalf("expected lookup 404 after delete, got %v", err)
	}
	if _, found, err := env.blobs.FindByID(ctx, rec.ID); err != nil || found {
		t.Fatalf("expected blob to be gone, found=%v err=%v", found, err)
	}
	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestImageServiceQueryMatchesAnyTag(t *testing.T) {
	svc, _ := newTestImageService(t)

	a := saveImage(t, svc, "a.jpg", "a", "swan", "white")
	b := saveImage(t, svc, "b.jpg", "b", "swan", "black")
	c := saveImage(t, svc, "c.jpg", "c", "goose")

	tests := []struct {
		name  string
		query []string
		want  []string
	}{
		{"single shared tag", []string{"swan"}, []string{a.ID, b.ID}},
		{"single unique tag", []string{"goose"}, []string{c.ID}},
		{"union of tags", []string{"white", "goose"}, []string{a.ID, c.ID}},
		{"case sensitive", []string{"Swan"}, []string{}},
		{"empty query", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryIDs(t, svc, tt.query...)
			want := slices.Clone(tt.want)
			slices.Sort(got)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Fatalf("query %v = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestImageServiceSaveRollsBackBlobWhenMetadataFails(t *testing.T) {
	env := newTestEnv(t)
	svc := NewImageService(failingAddStore{MetadataStore: env.meta, err: errInjected}, env.blobs, nil, quietLogger())
	svc.newID = func() string { return "0d6f0c8e-8a0b-4b1e-9b8f-3c2d1e0f9a8b" }

	_, err := svc.Save(context.Background(), SaveInput{Filename: "a.jpg", Content: strings.NewReader("bytes")})
	if err == nil {
		t.Fatal("expected save to fail")
	}
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error to be wrapped, got %v", err)
	}
	var apiErr apiError
	if !asAPIError(err, &apiErr) || apiErr.errCode != ErrCodeStoreFailure {
		t.Fatalf("expected store_failure apiError, got %#v", err)
	}

	if _, found, err := env.blobs.FindByID(context.Background(), "0d6f0c8e-8a0b-4b1e-9b8f-3c2d1e0f9a8b"); err != nil || found {
		t.Fatalf("expected blob rollback, found=%v err=%v", found, err)
	}
}

func TestImageServiceSaveCollidingIDKeepsExistingImage(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"same extension", "b.jpg"},
		{"other extension", "b.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, env := newTestImageService(t)
			ctx := context.Background()
			first := saveImage(t, svc, "a.jpg", "ORIGINAL", "swan")

			svc.newID = func() string { return first.ID }
			_, err := svc.Save(ctx, SaveInput{Filename: tt.filename, Content: strings.NewReader("INTRUDER")})
			var apiErr apiError
			if !asAPIError(err, &apiErr) {
				t.Fatalf("expected apiError, got %v", err)
			}
			if apiErr.status != http.StatusInternalServerError || apiErr.errCode != ErrCodeDuplicateID {
				t.Fatalf("expected 500/%d, got %d/%d", ErrCodeDuplicateID, apiErr.status, apiErr.errCode)
			}

			view, err := svc.Lookup(ctx, first.ID)
			if err != nil {
				t.Fatalf("existing image must stay consistent: %v", err)
			}
			data, err := os.ReadFile(view.BlobPath)
			if err != nil {
				t.Fatalf("read blob: %v", err)
			}
			if string(data) != "ORIGINAL" {
				t.Fatalf("existing blob overwritten: %q", data)
			}
			blobs, err := env.blobs.List(ctx)
			if err != nil {
				t.Fatalf("list blobs: %v", err)
			}
			if len(blobs) != 1 || blobs[0].Ext != "jpg" {
				t.Fatalf("expected only the first blob, got %v", blobs)
			}
		})
	}
}

func TestImageServiceSaveDuplicateOnAddRemovesOnlyNewBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// A stray blob under another id must survive the rollback.
	if _, err := env.blobs.Put(ctx, "1c9a7b3e-2f4d-4a6b-8c0d-e1f2a3b4c5d6", "png", strings.NewReader("other")); err != nil {
		t.Fatalf("put: %v", err)
	}
	svc := NewImageService(failingAddStore{MetadataStore: env.meta, err: store.ErrDuplicateID}, env.blobs, nil, quietLogger())

	_, err := svc.Save(ctx, SaveInput{Filename: "a.jpg", Content: strings.NewReader("bytes")})
	var apiErr apiError
	if !asAPIError(err, &apiErr) || apiErr.errCode != ErrCodeDuplicateID {
		t.Fatalf("expected duplicate id apiError, got %v", err)
	}
	blobs, err := env.blobs.List(ctx)
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Ext != "png" {
		t.Fatalf("expected only the stray blob, got %v", blobs)
	}
}

func TestImageServiceSaveCancelledAfterBlobStillCommits(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx, cancel := context.WithCancel(context.Background())

	// The reader cancels the request as its last byte is consumed.
	content := &cancelAtEOF{r: strings.NewReader("bytes"), cancel: cancel}
	rec, err := svc.Save(ctx, SaveInput{Filename: "late.jpg", Content: content, Tags: []string{"t"}})
	if err != nil {
		// Put may observe the cancellation; then nothing may remain.
		blobs, listErr := env.blobs.List(context.Background())
		if listErr != nil {
			t.Fatalf("list blobs: %v", listErr)
		}
		if len(blobs) != 0 {
			t.Fatalf("failed save left blobs behind: %v", blobs)
		}
		return
	}
	if _, err := svc.Lookup(context.Background(), rec.ID); err != nil {
		t.Fatalf("committed save must be consistent: %v", err)
	}
}

type cancelAtEOF struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (c *cancelAtEOF) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.cancel()
	}
	return n, err
}

func TestImageServiceExtensionIsLowercased(t *testing.T) {
	svc, env := newTestImageService(t)
	ctx := context.Background()

	rec := saveImage(t, svc, "swan.JPG", "bytes", "swan")
	if rec.Ext != "jpg" {
		t.Fatalf("expected ext jpg, got %q", rec.Ext)
	}
	loc, found, err := env.blobs.FindByID(ctx, rec.ID)
	if err != nil || !found {
		t.Fatalf("find blob: found=%v err=%v", found, err)
	}
	if filepath.Base(loc.Path) != rec.ID+".jpg" {
		t.Fatalf("unexpected blob name %q", filepath.Base(loc.Path))
	}
	view, err := svc.Lookup(ctx, rec.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if view.BlobPath != loc.Path {
		t.Fatalf("lookup path %q differs from scan %q", view.BlobPath, loc.Path)
	}
}

func TestImageServiceLookupReportsInconsistentState(t *testing.T) {
	t.Run("record without blob", func(t *testing.T) {
		svc, env := newTestImageService(t)
		rec := saveImage(t, svc, "a.jpg", "bytes", "x")
		if err := env.blobs.Delete(context.Background(), rec.ID); err != nil {
			t.Fatalf("delete blob: %v", err)
		}

		_, err := svc.Lookup(context.Background(), rec.ID)
		if !errors.Is(err, ErrInconsistentState) {
			t.Fatalf("expected ErrInconsistentState, got %v", err)
		}
		if httpStatusFromError(err) != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", httpStatusFromError(err))
		}
	})

	t.Run("blob without record", func(t *testing.T) {
		svc, env := newTestImageService(t)
		rec := saveImage(t, svc, "a.jpg", "bytes", "x")
		if err := env.meta.DeleteByID(context.Background(), rec.ID); err != nil {
			t.Fatalf("delete record: %v", err)
		}

		_, err := svc.Lookup(context.Background(), rec.ID)
		if !errors.Is(err, ErrInconsistentState) {
			t.Fatalf("expected ErrInconsistentState, got %v", err)
		}
	})
}

func TestImageServiceRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestImageService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		code int
	}{
		{"missing filename", func() error {
			_, err := svc.Save(ctx, SaveInput{Content: strings.NewReader("x")})
			return err
		}, ErrCodeMissingRequired},
		{"tag with control character", func() error {
			_, err := svc.Save(ctx, SaveInput{Filename: "a.jpg", Content: strings.NewReader("x"), Tags: []string{"bad\x00tag"}})
			return err
		}, ErrCodeInvalidTags},
		{"malformed id on lookup", func() error {
			_, err := svc.Lookup(ctx, "../../etc/passwd")
			return err
		}, ErrCodeInvalidID},
		{"malformed id on delete", func() error {
			return svc.Delete(ctx, "not-a-uuid")
		}, ErrCodeInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var apiErr apiError
			if !asAPIError(err, &apiErr) {
				t.Fatalf("expected apiError, got %v", err)
			}
			if apiErr.status != http.StatusBadRequest || apiErr.errCode != tt.code {
				t.Fatalf("expected 400/%d, got %d/%d (%v)", tt.code, apiErr.status, apiErr.errCode, err)
			}
		})
	}
}

func TestImageServiceConcreteScenario(t *testing.T) {
	svc, _ := newTestImageService(t)
	ctx := context.Background()

	rec, err := svc.Save(ctx, SaveInput{
		Filename: "cygnus.png",
		Content:  bytes.NewBufferString("png"),
		Tags:     strings.Fields("mute swan"),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	u := rec.ID

	if got := queryIDs(t, svc, "mute"); !slices.Equal(got, []string{u}) {
		t.Fatalf("query mute = %v", got)
	}
	if _, err := svc.UpdateTags(ctx, u, []string{"mute", "adult"}); err != nil {
		t.Fatalf("update tags: %v", err)
	}
	if got := queryIDs(t, svc, "swan"); len(got) != 0 {
		t.Fatalf("query swan = %v, want empty", got)
	}
	if got := queryIDs(t, svc, "adult"); !slices.Equal(got, []string{u}) {
		t.Fatalf("query adult = %v", got)
	}
	if err := svc.Delete(ctx, u); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Lookup(ctx, u); httpStatusFromError(err) != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestImageServiceConcurrentSavesAndUpdates(t *testing.T) {
	svc, _ := newTestImageService(t)
	ctx := context.Background()
	rec := saveImage(t, svc, "shared.jpg", "bytes", "start")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Save(ctx, SaveInput{Filename: "c.jpg", Content: strings.NewReader("c"), Tags: []string{"flock"}})
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			tag := "a"
			if i%2 == 1 {
				tag = "b"
			}
			_, err := svc.UpdateTags(ctx, rec.ID, []string{tag, tag + "2"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent operation failed: %v", err)
		}
	}

	if got := queryIDs(t, svc, "flock"); len(got) != 20 {
		t.Fatalf("expected 20 flock images, got %d", len(got))
	}
	view, err := svc.Lookup(ctx, rec.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	tags := view.Record.Tags
	if !slices.Equal(tags, []string{"a", "a2"}) && !slices.Equal(tags, []string{"b", "b2"}) {
		t.Fatalf("tag sets interleaved: %v", tags)
	}
}

func TestImageServiceRecordsMetrics(t *testing.T) {
	env := newTestEnv(t)
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	svc := NewImageService(env.meta, env.blobs, m.Store, quietLogger())
	ctx := context.Background()

	rec := saveImage(t, svc, "a.jpg", "bytes", "x")
	if _, err := svc.Lookup(ctx, rec.ID); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	_, _ = svc.Lookup(ctx, "3f0e9d8c-7b6a-4594-8372-615243342516")

	if got := testutil.ToFloat64(m.Store.Operations.WithLabelValues("save", metrics.ResultOK)); got != 1 {
		t.Fatalf("expected 1 successful save, got %v", got)
	}
	if got := testutil.ToFloat64(m.Store.Operations.WithLabelValues("lookup", metrics.ResultOK)); got != 1 {
		t.Fatalf("expected 1 successful lookup, got %v", got)
	}
	if got := testutil.ToFloat64(m.Store.Operations.WithLabelValues("lookup", metrics.ResultNotFound)); got != 1 {
		t.Fatalf("expected 1 not-found lookup, got %v", got)
	}
}
