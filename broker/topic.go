package broker

import "strings"

// Match reports whether a topic pattern matches a concrete routing key,
// per standard topic-exchange semantics: "*" matches exactly one
// dot-separated segment, "#" matches zero or more segments.
func Match(pattern, key string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchSegments(pat, key []string) bool {
	if len(pat) == 0 {
		return len(key) == 0
	}

	if pat[0] == "#" {
		// "#" may swallow zero segments or one and stay in play.
		if matchSegments(pat[1:], key) {
			return true
		}

		return len(key) > 0 && matchSegments(pat, key[1:])
	}

	if len(key) == 0 {
		return false
	}

	if pat[0] != "*" && pat[0] != key[0] {
		return false
	}

	return matchSegments(pat[1:], key[1:])
}

// MatchAny reports whether any of the patterns matches the key.
func MatchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if Match(p, key) {
			return true
		}
	}

	return false
}
