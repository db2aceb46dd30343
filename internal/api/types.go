package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// ImageLinks are the follow-up URLs for one image.
type ImageLinks struct {
	Self    string `json:"self"`
	Content string `json:"content"`
	Tags    string `json:"tags"`
}

// ImageResponse is one stored image.
type ImageResponse struct {
	ID        string     `json:"id" yaml:"id"`
	Filename  string     `json:"filename" yaml:"filename"`
	Ext       string     `json:"ext" yaml:"ext"`
	Tags      []string   `json:"tags" yaml:"tags"`
	MediaType string     `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	SizeBytes int64      `json:"size_bytes" yaml:"size_bytes"`
	SHA256    string     `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
	Links     ImageLinks `json:"links" yaml:"-"`
}

// SaveResponse is returned after an upload is stored.
type SaveResponse struct {
	Status string          `json:"status"`
	ID     string          `json:"id"`
	Images []ImageResponse `json:"images"`
}

// TagsRequest replaces the tag set of an image.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// StatusResponse acknowledges a mutation.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// AnalyzeResult is the classification of one uploaded file.
type AnalyzeResult struct {
	OverallClass map[string]any `json:"overall_class"`
}

// AnalyzeResponse maps client filenames to their classification.
type AnalyzeResponse map[string]AnalyzeResult

// RepairRequest asks the server to reconcile blobs and metadata.
type RepairRequest struct {
	Apply bool `json:"apply"`
}

// RepairResponse reports inconsistencies found and, when applied, fixed.
type RepairResponse struct {
	Applied        bool     `json:"applied" yaml:"applied"`
	OrphanBlobs    []string `json:"orphan_blobs" yaml:"orphan_blobs"`
	MissingBlobs   []string `json:"missing_blobs" yaml:"missing_blobs"`
	DeletedBlobs   int      `json:"deleted_blobs" yaml:"deleted_blobs"`
	DeletedRecords int      `json:"deleted_records" yaml:"deleted_records"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LegacyImageResponse is one entry of the /image listing kept for old clients.
type LegacyImageResponse struct {
	Filename string   `json:"filename"`
	UUID     string   `json:"uuid"`
	Tags     []string `json:"tags"`
	Download string   `json:"download"`
	Update   string   `json:"update"`
	Delete   string   `json:"delete"`
}

// LegacySaveResponse is the /save answer kept for old clients.
type LegacySaveResponse struct {
	Status string `json:"status"`
	UUID   string `json:"uuid"`
}
