package fs

import "strings"

// splitPath splits a slash-separated path into its first component and the
// remainder, e.g. "a/b/c" -> ("a", "b/c", true). Leading slashes are
// trimmed first, so "/a/b" behaves the same as "a/b".
func splitPath(path string) (string, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx], trimmed[idx+1:], true
	}
	return trimmed, "", false
}
