package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath replaces a leading "~" with the user's home directory.
func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// ResolvePath expands "~" and cleans p. Relative paths are kept relative to
// the working directory; empty input yields fallback.
func ResolvePath(p, fallback string) string {
	p = ExpandHomePath(p)
	if p == "" {
		p = fallback
	}
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
