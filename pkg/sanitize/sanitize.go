package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var filenameUnsafe = regexp.MustCompile(`[\x00-\x1f\x7f"\\/:*?<>|]`)

// Text removes control characters from user supplied chat text. Line breaks and tabs
// are kept.
func Text(input string) string {
	if strings.IndexFunc(input, isStripped) < 0 {
		return input
	}

	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if !isStripped(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isStripped(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

// Filename reduces an uploaded file name to its base name without path traversal,
// quotes or control characters. An empty result becomes "file".
func Filename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = filenameUnsafe.ReplaceAllString(filename, "")
	filename = strings.TrimLeft(filename, ".")

	if filename == "" {
		return "file"
	}
	return filename
}
