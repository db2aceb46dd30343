package blobstore

import (
	"context"
	"io"
	"os"
)

// PutResult describes one persisted blob payload.
type PutResult struct {
	SHA256    string
	SizeBytes int64
	MediaType string
	Path      string
}

// Location is the on-disk address of a stored blob.
type Location struct {
	ID   string
	Ext  string
	Path string
}

// BlobRepository is the byte-storage abstraction used by ImageService.
type BlobRepository interface {
	Put(ctx context.Context, id, ext string, r io.Reader) (PutResult, error)
	Locate(ctx context.Context, id, ext string) (Location, error)
	FindByID(ctx context.Context, id string) (Location, bool, error)
	Open(ctx context.Context, id, ext string) (*os.File, error)
	Delete(ctx context.Context, id string) error
	Remove(ctx context.Context, id, ext string) error
	List(ctx context.Context) ([]Location, error)
}

var _ BlobRepository = (*LocalStore)(nil)
