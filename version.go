package sqliter

import (
	"fmt"
	"strings"
)

// Version represents a SQLite library version
type Version struct {
	Major      int
	Minor      int
	Patch      int
	VersionStr string
}

// String returns the version as a string
func (v Version) String() string {
	if v.VersionStr != "" {
		return v.VersionStr
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast checks if the version is at least the given major, minor, patch
func (v Version) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// ParseVersion parses a "3.46.1" style version string. Missing components are zero.
func ParseVersion(s string) (Version, error) {
	v := Version{VersionStr: s}
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".", 3)
	targets := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, part := range parts {
		if _, err := fmt.Sscanf(part, "%d", targets[i]); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %v", s, err)
		}
	}
	return v, nil
}

// EngineVersion returns the parsed library version of an engine.
func EngineVersion(e Engine) Version {
	v, err := ParseVersion(e.Version())
	if err != nil {
		return Version{VersionStr: e.Version()}
	}
	return v
}
