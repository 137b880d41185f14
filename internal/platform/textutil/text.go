package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var notesPolicy = bluemonday.StrictPolicy()

// SanitizeNotes strips markup from free-text staff notes and returns plain, trimmed text.
func SanitizeNotes(value string) string {
	cleaned := notesPolicy.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// NormalizeStringMap trims keys and values, removing entries with empty keys or values.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			continue
		}
		result[trimmedKey] = trimmedValue
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// UniqueStrings trims values and drops blanks and case-insensitive duplicates, keeping first-seen order.
func UniqueStrings(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
