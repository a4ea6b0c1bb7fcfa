package configcat

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseSemver parses s as a semantic version, stripping any build-metadata
// suffix (the part after '+') first, since comparators must ignore build
// metadata per the semantic versioning spec.
func parseSemver(s string) (*semver.Version, error) {
	trimmed := strings.TrimSpace(s)
	if idx := strings.IndexByte(trimmed, '+'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return semver.NewVersion(trimmed)
}
