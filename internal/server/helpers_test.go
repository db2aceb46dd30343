package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"swanid/internal/api"
	"swanid/internal/blobstore"
	"swanid/internal/classifier"
	"swanid/internal/models"
	"swanid/internal/store"
)

type testEnv struct {
	meta  *store.Store
	blobs *blobstore.LocalStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "swanid-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	bs, err := blobstore.NewLocalStore(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	return testEnv{meta: st, blobs: bs}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestImageService(t *testing.T) (*ImageService, testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewImageService(env.meta, env.blobs, nil, quietLogger()), env
}

func newTestServer(t *testing.T, opts Options) (*Server, testEnv) {
	t.Helper()
	t.Setenv(apiTokenEnvKey, "")
	env := newTestEnv(t)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = t.TempDir()
	}
	return New("127.0.0.1:0", env.meta, env.blobs, opts), env
}

func saveImage(t *testing.T, svc *ImageService, filename, content string, tags ...string) models.ImageRecord {
	t.Helper()
	rec, err := svc.Save(context.Background(), SaveInput{
		Filename: filename,
		Content:  bytes.NewBufferString(content),
		Tags:     tags,
	})
	if err != nil {
		t.Fatalf("save %s: %v", filename, err)
	}
	return rec
}

func queryIDs(t *testing.T, svc *ImageService, tags ...string) []string {
	t.Helper()
	records, err := svc.Query(context.Background(), tags)
	if err != nil {
		t.Fatalf("query %v: %v", tags, err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}

type formFile struct {
	field    string
	filename string
	content  string
}

// multipartBody builds a form with plain fields followed by file parts.
func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create part %s: %v", f.filename, err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			t.Fatalf("write part %s: %v", f.filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func requireErrorCode(t *testing.T, w *httptest.ResponseRecorder, status, errorCode int) api.ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	errResp := decodeBody[api.ErrorResponse](t, w)
	if errResp.ErrorCode != errorCode {
		t.Fatalf("expected error_code %d, got %d (%s)", errorCode, errResp.ErrorCode, errResp.Error)
	}
	return errResp
}

// failingAddStore rejects every Add and delegates the rest.
type failingAddStore struct {
	store.MetadataStore
	err error
}

func (f failingAddStore) Add(context.Context, *models.ImageRecord) error {
	return f.err
}

var errInjected = errors.New("injected failure")

type fakeClassifier struct {
	paths [][]string
	fn    func(paths []string) ([]classifier.Prediction, error)
}

func (f *fakeClassifier) Classify(_ context.Context, paths []string) ([]classifier.Prediction, error) {
	f.paths = append(f.paths, append([]string(nil), paths...))
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(paths)
}

// echoPredictions labels every path as a mute swan.
func echoPredictions(paths []string) ([]classifier.Prediction, error) {
	out := make([]classifier.Prediction, 0, len(paths))
	for _, p := range paths {
		out = append(out, classifier.Prediction{
			classifier.FilenameKey: p,
			"species":              "cygnus olor",
		})
	}
	return out, nil
}
