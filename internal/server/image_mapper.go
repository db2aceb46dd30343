package server

import (
	"net/url"

	"swanid/internal/api"
	"swanid/internal/models"
)

// toImageResponse maps a stored record to its API representation.
func toImageResponse(rec models.ImageRecord) api.ImageResponse {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	self := "/v1/images/" + url.PathEscape(rec.ID)
	return api.ImageResponse{
		ID:        rec.ID,
		Filename:  rec.Filename,
		Ext:       rec.Ext,
		Tags:      tags,
		MediaType: rec.MediaType,
		SizeBytes: rec.SizeBytes,
		SHA256:    rec.SHA256,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Links: api.ImageLinks{
			Self:    self,
			Content: self + "/content",
			Tags:    self + "/tags",
		},
	}
}

func toImageResponses(records []models.ImageRecord) []api.ImageResponse {
	out := make([]api.ImageResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toImageResponse(rec))
	}
	return out
}

func toLegacyImageResponse(rec models.ImageRecord) api.LegacyImageResponse {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	id := url.PathEscape(rec.ID)
	return api.LegacyImageResponse{
		Filename: rec.Filename,
		UUID:     rec.ID,
		Tags:     tags,
		Download: "/download/" + id,
		Update:   "/update/" + id,
		Delete:   "/delete/" + id,
	}
}

func toRepairResponse(report RepairReport) api.RepairResponse {
	return api.RepairResponse{
		Applied:        report.Applied,
		OrphanBlobs:    report.OrphanBlobs,
		MissingBlobs:   report.MissingBlobs,
		DeletedBlobs:   report.DeletedBlobs,
		DeletedRecords: report.DeletedRecords,
	}
}
