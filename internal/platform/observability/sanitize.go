package observability

import (
	"strings"
	"unicode"
)

// sanitizeString drops control characters other than tab and newlines and keeps at most limit
// runes.
func sanitizeString(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern or path for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string { return sanitizeString(method, 10) }

func SanitizeActorID(uid string) string { return sanitizeString(uid, 64) }

// SanitizeOrderID bounds order identifiers copied from request paths into logs and spans.
func SanitizeOrderID(id string) string { return sanitizeString(id, 96) }
