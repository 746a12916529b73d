package upload

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

// ErrInvalidName is returned when a file name is empty after sanitizing.
var ErrInvalidName = errors.New("invalid file name")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFileName reduces name to a safe single path segment: directory
// parts are dropped, whitespace becomes '_', anything outside [A-Za-z0-9_.-]
// is removed and leading dots or underscores are stripped.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// JoinKey builds the object key "<segment>/<name>" from a sanitized name.
func JoinKey(segment, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", ErrInvalidName
	}
	return segment + "/" + name, nil
}

// SplitKey returns the segment and name of key.
func SplitKey(key string) (segment, name string, ok bool) {
	segment, name, ok = strings.Cut(key, "/")
	if !ok || segment == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return segment, name, true
}
