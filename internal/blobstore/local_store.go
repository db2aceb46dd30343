package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	tmpDirName = "tmp"
	sniffLen   = 512
)

// LocalStore keeps blobs as flat files named <id>.<ext> under root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a blob store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute directory holding blobs.
func (s *LocalStore) Root() string {
	return s.root
}

// Put streams r into <id>.<ext>. Bytes are staged in tmp/ and linked into
// place, so a reader never observes a partial blob. Put never replaces an
// existing blob: if any <id>.* is present it returns ErrExists.
func (s *LocalStore) Put(ctx context.Context, id, ext string, r io.Reader) (PutResult, error) {
	var zero PutResult
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := s.pathFor(id, ext)
	if err != nil {
		return zero, err
	}
	if _, found, err := s.FindByID(ctx, id); err != nil {
		return zero, err
	} else if found {
		return zero, fmt.Errorf("%w: %s", ErrExists, id)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "put-*")
	if err != nil {
		return zero, ioError("put", id, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	sniff := &prefixWriter{limit: sniffLen}
	n, err := io.Copy(io.MultiWriter(tmp, h, sniff), contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ioError("put", id, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, ioError("put", id, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, ioError("put", id, err)
	}

	// Link fails with EEXIST instead of replacing dst.
	err = os.Link(tmpPath, dst)
	_ = os.Remove(tmpPath)
	if errors.Is(err, os.ErrExist) {
		return zero, fmt.Errorf("%w: %s", ErrExists, id)
	}
	if err != nil {
		return zero, ioError("put", id, err)
	}

	return PutResult{
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
		MediaType: http.DetectContentType(sniff.buf),
		Path:      dst,
	}, nil
}

// Locate stats the known address of a blob.
func (s *LocalStore) Locate(ctx context.Context, id, ext string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	path, err := s.pathFor(id, ext)
	if err != nil {
		return Location{}, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, ioError("locate", id, err)
	}
	if !info.Mode().IsRegular() {
		return Location{}, ioError("locate", id, fmt.Errorf("%s is not a regular file", path))
	}
	return Location{ID: id, Ext: ext, Path: path}, nil
}

// FindByID scans the root for any file named <id>.*. It is the lookup path
// for records whose extension is unknown.
func (s *LocalStore) FindByID(ctx context.Context, id string) (Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, false, err
	}
	if err := validateID(id); err != nil {
		return Location{}, false, err
	}
	// validateID keeps glob metacharacters out of id.
	matches, err := filepath.Glob(filepath.Join(s.root, id+".*"))
	if err != nil {
		return Location{}, false, ioError("find", id, err)
	}
	sort.Strings(matches)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		base := filepath.Base(match)
		return Location{ID: id, Ext: strings.TrimPrefix(base, id+"."), Path: match}, true, nil
	}
	return Location{}, false, nil
}

// Open returns a reader over the blob content.
func (s *LocalStore) Open(ctx context.Context, id, ext string) (*os.File, error) {
	loc, err := s.Locate(ctx, id, ext)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(loc.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ioError("open", id, err)
	}
	return f, nil
}

// Delete removes every blob file for id. Missing blobs are ignored.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	for {
		loc, ok, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := os.Remove(loc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioError("delete", id, err)
		}
	}
}

// Remove deletes exactly <id>.<ext>. A missing file is not an error.
func (s *LocalStore) Remove(ctx context.Context, id, ext string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(id, ext)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ioError("remove", id, err)
	}
	return nil
}

// List returns every blob under the root, sorted by file name.
func (s *LocalStore) List(ctx context.Context) ([]Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, ioError("list", "", err)
	}
	out := []Location{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		dot := strings.Index(name, ".")
		if dot <= 0 || dot == len(name)-1 {
			continue
		}
		out = append(out, Location{
			ID:   name[:dot],
			Ext:  name[dot+1:],
			Path: filepath.Join(s.root, name),
		})
	}
	return out, nil
}

func (s *LocalStore) pathFor(id, ext string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	if err := validateExt(ext); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id+"."+ext), nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || id == tmpDirName {
		return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
		}
	}
	return nil
}

func validateExt(ext string) error {
	if ext == "" || strings.ContainsAny(ext, `/\.*?[`) {
		return fmt.Errorf("%w: extension %q", ErrInvalidKey, ext)
	}
	return nil
}

type prefixWriter struct {
	buf   []byte
	limit int
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	if room := w.limit - len(w.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
	}
	return len(p), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
