// Package fieldpath resolves dot-separated field paths against generic
// document trees. The same function serves every scraper: JSON documents
// decode directly into the generic shape, and the feed and markup scrapers
// normalize their formats into it before extraction.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Extract resolves a dot-separated field path against a nested document and
// returns the terminal value coerced to a string. Numeric path segments
// index into slices. Traversal fails softly: a missing key, out-of-range
// index, or type mismatch returns the empty string rather than an error.
// Implements RFC 2 section 2.2.
func Extract(doc any, fieldPath string) string {
	if fieldPath == "" {
		return ""
	}

	value := doc
	for _, part := range strings.Split(fieldPath, ".") {
		switch node := value.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return ""
			}
			value = next
		case []any:
			index, err := strconv.Atoi(part)
			if err != nil || index < 0 || index >= len(node) {
				return ""
			}
			value = node[index]
		default:
			// Indexing into a scalar (or nil) is a soft failure.
			return ""
		}

		if value == nil {
			return ""
		}
	}

	return coerce(value)
}

// coerce converts a terminal value to a string. A map containing a "url"
// key yields that key's value, a non-empty slice yields its first element,
// and scalars are formatted and trimmed.
func coerce(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// JSON numbers decode as float64; format without a forced exponent
		// or trailing zeros so integral values round-trip cleanly.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if url, ok := v["url"]; ok {
			return coerce(url)
		}
		return strings.TrimSpace(fmt.Sprint(v))
	case []any:
		if len(v) == 0 {
			return ""
		}
		return coerce(v[0])
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
