package callref

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/githubnext/gh-uses/pkg/gitutil"
)

// RefKind classifies a git ref by how stable it is.
type RefKind int

const (
	RefAbsent RefKind = iota
	RefCommitSHA
	RefSemverTag
	RefFloatingTag
	RefBranch
)

func (k RefKind) String() string {
	switch k {
	case RefAbsent:
		return "absent"
	case RefCommitSHA:
		return "commit-sha"
	case RefSemverTag:
		return "semver-tag"
	case RefFloatingTag:
		return "floating-tag"
	default:
		return "branch"
	}
}

// Immutable reports whether the ref names a fixed commit: a full SHA or a
// precise vMAJOR.MINOR.PATCH release tag.
func (k RefKind) Immutable() bool {
	return k == RefCommitSHA || k == RefSemverTag
}

// ClassifyRef classifies ref. Tags are recognized with or without the "v"
// prefix; "v4" and "v4.1" are floating tags. Anything else, including short
// SHAs, is treated as a branch.
func ClassifyRef(ref string) RefKind {
	if ref == "" {
		return RefAbsent
	}
	if gitutil.IsCommitSHA(ref) {
		return RefCommitSHA
	}

	v := ref
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return RefBranch
	}
	if IsPreciseVersion(v) {
		return RefSemverTag
	}
	return RefFloatingTag
}

// IsPreciseVersion reports whether v spells out major, minor and patch.
func IsPreciseVersion(v string) bool {
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}
