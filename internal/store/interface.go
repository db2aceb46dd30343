package store

import (
	"context"

	"swanid/internal/models"
)

// MetadataStore abstracts image metadata storage backends.
type MetadataStore interface {
	Add(ctx context.Context, rec *models.ImageRecord) error
	Get(ctx context.Context, id string) (*models.ImageRecord, error)
	GetFilename(ctx context.Context, id string) (string, error)
	GetTags(ctx context.Context, id string) ([]string, error)
	UpdateTags(ctx context.Context, id string, tags []string) (*models.ImageRecord, error)
	DeleteByID(ctx context.Context, id string) error
	FindByTags(ctx context.Context, tags []string) ([]string, error)
	List(ctx context.Context) ([]models.ImageRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
}

var _ MetadataStore = (*Store)(nil)
