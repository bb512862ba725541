package remote

import "strings"

// cleanKey normalizes an object key: backslashes become forward slashes,
// a leading slash is stripped, and "." / ".." segments and empty segments
// are rejected to avoid a key escaping its bucket folder.
func cleanKey(key string) (string, bool) {
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return key, true
}

// splitKey separates a cleaned key into its directory segments and final
// file name component.
func splitKey(key string) (dirs []string, name string) {
	parts := strings.Split(key, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}
