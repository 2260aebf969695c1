// Package hashtag extracts hashtags from free text such as captions.
package hashtag

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)

// Extract returns the hashtags in text without the leading '#', lowercased,
// in first-seen order with duplicates removed.
func Extract(text string) []string {
	if text == "" {
		return []string{}
	}
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
