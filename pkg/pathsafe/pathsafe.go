// Package pathsafe rejects file paths and names that could escape the
// asset storage root. String checks run before any filesystem call so
// malformed input never reaches path resolution.
package pathsafe

import (
	"errors"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsafePath deliberately carries no detail about which check failed.
var ErrUnsafePath = errors.New("invalid path")

// traversalPatterns are matched against the normalized path and against
// one and two rounds of percent-decoding of it.
var traversalPatterns = []string{
	"../",
	"..\\",
	"%2e%2e/",
	"%2e%2e\\",
	"..%2f",
	"..%5c",
	"%2e%2e%2f",
	"%2e%2e%5c",
	"%00",
	"\x00",
}

// dangerousRoots are absolute prefixes that must never be served,
// matched case-insensitively on the normalized path.
var dangerousRoots = []string{
	"/etc/",
	"/root/",
	"/proc/",
	"/sys/",
	"/dev/",
	"/var/log/",
	"c:/",
	"c:\\",
}

var nonWord = regexp.MustCompile(`[^\w.\-]+`)

// Validate reports whether path is safe to resolve. It never errors.
func Validate(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}

	// UNC prefixes are checked before separator collapsing hides them.
	raw := strings.TrimSpace(path)
	if strings.HasPrefix(raw, "\\\\") || strings.HasPrefix(raw, "//") {
		return false
	}

	candidates := []string{normalize(path)}
	decoded := normalize(path)
	for i := 0; i < 2; i++ {
		d, err := url.QueryUnescape(decoded)
		if err != nil {
			// Undecodable input is rejected outright rather than guessed at.
			return false
		}
		decoded = normalize(d)
		candidates = append(candidates, decoded)
	}

	for _, c := range candidates {
		lower := strings.ToLower(c)
		for _, p := range traversalPatterns {
			if strings.Contains(lower, p) {
				return false
			}
		}
		// A bare ".." path segment with no separator
		if lower == ".." || strings.HasSuffix(lower, "/..") || strings.HasPrefix(lower, "../") {
			return false
		}
		for _, root := range dangerousRoots {
			if strings.HasPrefix(lower, root) {
				return false
			}
		}
		if strings.ContainsRune(c, 0) {
			return false
		}
	}

	return true
}

// ValidateOrErr is the failing form of Validate. The returned error
// carries no path detail so attacker input is never echoed.
func ValidateOrErr(path string) error {
	if !Validate(path) {
		return ErrUnsafePath
	}
	return nil
}

// normalize converts backslashes to slashes and collapses repeated separators.
func normalize(path string) string {
	s := strings.ReplaceAll(path, "\\", "/")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

// SanitizePath normalizes separators and trims surrounding whitespace.
// It does not make an unsafe path safe; callers must Validate first.
func SanitizePath(path string) string {
	return normalize(strings.TrimSpace(path))
}

// SanitizeFilename strips directory components and anything that is not
// a word character, dot or dash. Empty results fall back to "download".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = normalize(name)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = nonWord.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "download"
	}
	return name
}

// HasAllowedExtension reports whether name ends in one of allowedExts
// (extensions include the leading dot, compared case-insensitively).
func HasAllowedExtension(name string, allowedExts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, a := range allowedExts {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// WithinBase resolves target against base and returns the absolute path,
// failing unless the result stays inside base. This catches resolution
// tricks the string checks cannot see. If the target itself does not
// exist yet, its parent directory is checked instead.
func WithinBase(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", ErrUnsafePath
	}
	resolvedBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", ErrUnsafePath
	}

	joined := filepath.Join(absBase, filepath.FromSlash(SanitizePath(target)))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// Target may not exist yet; resolve the parent instead.
		parent, perr := filepath.EvalSymlinks(filepath.Dir(joined))
		if perr != nil {
			return "", ErrUnsafePath
		}
		resolved = filepath.Join(parent, filepath.Base(joined))
	}

	rel, err := filepath.Rel(resolvedBase, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}

	return resolved, nil
}
