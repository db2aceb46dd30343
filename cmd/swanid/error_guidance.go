package main

import (
	"context"
	"errors"
	"net"

	"swanid/internal/api"
)

// errCodeRequestTooLarge mirrors the server's numeric code for oversized bodies.
const errCodeRequestTooLarge = 1002

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: set SWANID_API_TOKEN to a token matching auth.api_token_hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; the server limits concurrent classification and repair requests.")
		case "classifier_unavailable":
			lines = append(lines, "hint: configure inference.url (or SWANID_INFERENCE_URL) on the server.")
		case "classifier_failure":
			lines = append(lines, "hint: the inference service failed; check that it is running and reachable from the server.")
		case "inconsistent_state":
			lines = append(lines, "hint: run swanid repair to inspect blobs and records that disagree.")
		}
		if apiErr.ErrorCode == errCodeRequestTooLarge {
			lines = append(lines, "hint: raise uploads.max_upload_bytes on the server or send smaller files.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify SWANID_API_URL points to a swanid server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase SWANID_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a swanid server is running at SWANID_API_URL.",
			"hint: start local server manually with: swanid srv",
			"hint: you can increase SWANID_HTTP_TIMEOUT for slower environments.",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
