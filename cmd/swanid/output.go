package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"swanid/internal/api"
	"swanid/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeImageList(images []api.ImageResponse) error {
	for _, image := range images {
		if err := writePlain("%s\n", formatImageLine(image)); err != nil {
			return err
		}
	}
	return nil
}

func writeImageDetail(image api.ImageResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", image.ID),
		fmt.Sprintf("filename: %s", image.Filename),
		fmt.Sprintf("ext: %s", image.Ext),
		fmt.Sprintf("tags: %s", strings.Join(image.Tags, ", ")),
		fmt.Sprintf("size_bytes: %d", image.SizeBytes),
		fmt.Sprintf("created_at: %s", formatTime(image.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(image.UpdatedAt)),
	}
	if image.MediaType != "" {
		lines = append(lines, fmt.Sprintf("media_type: %s", image.MediaType))
	}
	if image.SHA256 != "" {
		lines = append(lines, fmt.Sprintf("sha256: %s", image.SHA256))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeAnalyzeResult(resp api.AnalyzeResponse) error {
	names := make([]string, 0, len(resp))
	for name := range resp {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := writePlain("%s\n", formatAnalyzeLine(name, resp[name])); err != nil {
			return err
		}
	}
	return nil
}

func writeRepairReport(report api.RepairResponse) error {
	lines := []string{
		fmt.Sprintf("orphan blobs: %d", len(report.OrphanBlobs)),
		fmt.Sprintf("records missing blobs: %d", len(report.MissingBlobs)),
	}
	for _, id := range report.OrphanBlobs {
		lines = append(lines, "  orphan "+id)
	}
	for _, id := range report.MissingBlobs {
		lines = append(lines, "  missing "+id)
	}
	if report.Applied {
		lines = append(lines, fmt.Sprintf("deleted %d blobs and %d records", report.DeletedBlobs, report.DeletedRecords))
	} else if len(report.OrphanBlobs)+len(report.MissingBlobs) > 0 {
		lines = append(lines, "run with --apply to fix")
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatImageLine(image api.ImageResponse) string {
	return fmt.Sprintf("%s %s [%s]", image.ID, image.Filename, strings.Join(image.Tags, " "))
}

// formatAnalyzeLine prints the class fields of one result sorted by key.
func formatAnalyzeLine(name string, result api.AnalyzeResult) string {
	keys := make([]string, 0, len(result.OverallClass))
	for key := range result.OverallClass {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, result.OverallClass[key]))
	}
	return fmt.Sprintf("%s: %s", name, strings.Join(parts, " "))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
