package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExt is used for uploads whose filename carries no usable extension.
const DefaultExt = "bin"

// ImageRecord is the metadata kept for one stored image.
type ImageRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Filename  string    `json:"filename" yaml:"filename"`
	Ext       string    `json:"ext" yaml:"ext"`
	Tags      []string  `json:"tags" yaml:"tags"`
	MediaType string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	SizeBytes int64     `json:"size_bytes" yaml:"size_bytes"`
	SHA256    string    `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewImageID returns a fresh random identifier.
func NewImageID() string {
	return uuid.NewString()
}

// IsValidImageID reports whether id is a canonical UUID string.
func IsValidImageID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ExtensionOf returns the lowercase extension of filename without the dot.
// Missing extensions and ones that are not short ASCII alphanumerics give DefaultExt.
func ExtensionOf(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	dotExt := filepath.Ext(base)
	ext := strings.ToLower(strings.TrimPrefix(dotExt, "."))
	if ext == "" || strings.TrimSuffix(base, dotExt) == "" || !isSafeExt(ext) {
		return DefaultExt
	}
	return ext
}

// IsValidExt reports whether ext is usable as a blob file extension.
func IsValidExt(ext string) bool {
	return ext != "" && isSafeExt(ext)
}

func isSafeExt(ext string) bool {
	if len(ext) > 16 {
		return false
	}
	for _, r := range ext {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
