// Package gitutil holds helpers for git object names and git command output.
package gitutil

import "strings"

// IsHexString reports whether s is non-empty and consists only of lowercase
// or uppercase hexadecimal digits.
func IsHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// IsCommitSHA reports whether s is a full SHA-1 (40) or SHA-256 (64) object name.
func IsCommitSHA(s string) bool {
	return (len(s) == 40 || len(s) == 64) && IsHexString(s)
}

// IsAuthError reports whether git or API error output indicates missing or
// rejected credentials.
func IsAuthError(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range []string{
		"authentication failed",
		"could not read username",
		"permission denied",
		"bad credentials",
		"requires authentication",
		"terminal prompts disabled",
		"http 401",
		"http 403",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsNotFoundError reports whether git output indicates a missing repository,
// ref or path.
func IsNotFoundError(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range []string{
		"repository not found",
		"couldn't find remote ref",
		"does not exist in",
		"exists on disk, but not in",
		"not a valid object name",
		"invalid object name",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
