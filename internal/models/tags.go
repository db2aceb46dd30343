package models

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// MaxTagLength bounds a single tag in bytes.
const MaxTagLength = 128

// ParseTags splits whitespace-separated tag text into tokens.
func ParseTags(text string) []string {
	return strings.Fields(text)
}

// NormalizeTags validates tags and returns them deduplicated and sorted.
// Tags are case-sensitive.
func NormalizeTags(values []string) ([]string, error) {
	tags := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if err := ValidateTag(value); err != nil {
			return nil, err
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		tags = append(tags, value)
	}
	sort.Strings(tags)
	return tags, nil
}

// ValidateTag rejects empty tags and tags containing whitespace.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag must not be empty")
	}
	if len(tag) > MaxTagLength {
		return fmt.Errorf("tag exceeds %d bytes", MaxTagLength)
	}
	for _, r := range tag {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("tag %q must not contain whitespace", tag)
		}
	}
	return nil
}
