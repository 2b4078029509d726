package pipeline

import (
	"strings"

	"github.com/tidwall/match"
)

// MatchAll is the pattern used for handlers registered without any paths.
const MatchAll = "/**"

// Match reports whether path matches the Ant-style glob pattern.
//
// Patterns and paths are compared segment by segment after dropping a single
// leading slash from each:
//
//	**  matches zero or more whole segments
//	*   matches any run of characters within one segment
//	?   matches exactly one character
//
// Everything else matches literally and case-sensitively. Trailing slashes
// are not normalized: "/a/" has the segments "a" and "".
func Match(pattern, path string) bool {
	return matchSegments(segments(pattern), segments(path))
}

// MatchAny reports whether any of the patterns matches path.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}

func segments(s string) []string {
	return strings.Split(strings.TrimPrefix(s, "/"), "/")
}

func matchSegments(pattern, path []string) bool {
	for len(pattern) > 0 {
		if pattern[0] != "**" {
			if len(path) == 0 || !matchSegment(pattern[0], path[0]) {
				return false
			}
			pattern, path = pattern[1:], path[1:]
			continue
		}
		for len(pattern) > 0 && pattern[0] == "**" {
			pattern = pattern[1:]
		}
		if len(pattern) == 0 {
			return true
		}
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern, path[i:]) {
				return true
			}
		}
		return false
	}
	return len(path) == 0
}

func matchSegment(pattern, segment string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == segment
	}
	return match.Match(segment, pattern)
}
