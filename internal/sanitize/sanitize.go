// Package sanitize normalizes project names and validates user-supplied
// paths.
//
// Project names partition the graph and memory logs and appear in API
// routes, so they must match ^[a-z0-9_-]{1,64}$. A project name is derived
// from the base name of the workspace path the caller works in.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	// MaxIdentifierLength is the maximum length for project names.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated identifiers.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"
)

// Identifier sanitizes a string into a project-safe identifier.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces characters outside [a-z0-9_-] with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores and hyphens
//   - Truncates to MaxIdentifierLength with hash suffix if too long
//   - Returns DefaultIdentifier if result would be empty
//
// Examples:
//
//	"My Project!"  -> "my_project"
//	"code-loops"   -> "code-loops"
//	"" or "!!!"    -> "default"
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_-")

	if sanitized == "" {
		return DefaultIdentifier
	}

	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// ProjectName derives the project name from a workspace path: the sanitized
// base name of the cleaned path.
//
//	"/home/me/src/codeloops"  -> "codeloops"
//	"/work/My App/"           -> "my_app"
func ProjectName(projectContext string) string {
	clean := filepath.Clean(strings.TrimSpace(projectContext))
	base := filepath.Base(clean)
	if base == "." || base == string(filepath.Separator) {
		return DefaultIdentifier
	}
	return Identifier(base)
}

// truncateWithHash truncates a string to fit within MaxIdentifierLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	maxBase := MaxIdentifierLength - HashSuffixLength
	truncated := strings.TrimRight(s[:maxBase], "_-")

	return truncated + hashSuffix
}
