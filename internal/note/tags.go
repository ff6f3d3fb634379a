package note

import (
	"regexp"
	"strings"
)

var hashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_]{1,32})`)

// ExtractTags pulls normalized hashtags out of a note body.
func ExtractTags(body string) []string {
	matches := hashtagRe.FindAllStringSubmatch(body, -1)

	// the column is not null, so no tags is an empty array rather than nil
	seen := map[string]struct{}{}
	out := make([]string, 0, len(matches))

	for _, m := range matches {
		t := strings.ToLower(m[1])
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)

		if len(out) >= 20 { // cap
			break
		}
	}

	return out
}
