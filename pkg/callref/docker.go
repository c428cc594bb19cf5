package callref

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"strings"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// classifyDocker parses the image part of a docker:// reference. Names are
// stored in their familiar form, so docker.io/library/alpine becomes alpine.
func classifyDocker(raw, rest string) (CallReference, error) {
	if rest == "" {
		return CallReference{}, malformed(raw, "empty docker image")
	}

	name, dgst, hasDigest := strings.Cut(rest, "@")
	var tag string
	hasTag := false
	if i := strings.LastIndex(name, ":"); i > strings.LastIndex(name, "/") {
		name, tag, hasTag = name[:i], name[i+1:], true
	}

	named, err := reference.ParseNormalizedNamed(name)
	if err != nil {
		return CallReference{}, malformed(raw, "invalid image name %q: %v", name, err)
	}
	if hasTag {
		if _, err := reference.WithTag(named, tag); err != nil {
			return CallReference{}, malformed(raw, "invalid image tag %q", tag)
		}
	}
	if hasDigest {
		d, err := digest.Parse(dgst)
		if err != nil {
			return CallReference{}, malformed(raw, "invalid image digest %q: %v", dgst, err)
		}
		if _, err := reference.WithDigest(named, d); err != nil {
			return CallReference{}, malformed(raw, "invalid image digest %q", dgst)
		}
	}

	return CallReference{Kind: KindDocker, Path: reference.FamiliarName(named), Ref: tag, Digest: dgst}, nil
}
