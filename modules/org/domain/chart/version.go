package chart

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	InitialVersion = "1.0"
	// FirstPublishedVersion is used when a sandbox without a parent chart is
	// published.
	FirstPublishedVersion = "2.0"
	sandboxSuffix         = "-sandbox"
)

type BumpPolicy string

const (
	BumpMajor BumpPolicy = "major"
	BumpMinor BumpPolicy = "minor"
)

func ParseBumpPolicy(s string) (BumpPolicy, error) {
	switch p := BumpPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case BumpMajor, BumpMinor:
		return p, nil
	case "":
		return BumpMajor, nil
	default:
		return "", fmt.Errorf("unknown version bump policy %q", s)
	}
}

type Version struct {
	Major int
	Minor int
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	default:
		return cmpInt(v.Minor, o.Minor)
	}
}

func (v Version) Bump(policy BumpPolicy) Version {
	if policy == BumpMinor {
		return Version{Major: v.Major, Minor: v.Minor + 1}
	}
	return Version{Major: v.Major + 1}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseVersion reads "major.minor" labels. A trailing "-sandbox" is ignored
// and a bare "3" reads as "3.0".
func ParseVersion(label string) (Version, error) {
	s := strings.TrimSuffix(strings.TrimSpace(label), sandboxSuffix)
	major, minor, hasMinor := strings.Cut(s, ".")
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, label)
	}
	if !hasMinor {
		return Version{Major: maj}, nil
	}
	mi, err := strconv.Atoi(minor)
	if err != nil || mi < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, label)
	}
	return Version{Major: maj, Minor: mi}, nil
}

// SandboxVersion is the label given to a clone of base.
func SandboxVersion(base string) string {
	return strings.TrimSuffix(base, sandboxSuffix) + sandboxSuffix
}

// NextVersion computes the label a published sandbox receives. parent is the
// version of the chart it was cloned from; floor, when set, is the version of
// the department's current active chart, and the result is always strictly
// greater than both.
func NextVersion(parent, floor *string, policy BumpPolicy) (string, error) {
	if parent == nil {
		next, _ := ParseVersion(FirstPublishedVersion)
		if floor != nil {
			f, err := ParseVersion(*floor)
			if err != nil {
				return "", err
			}
			if next.Compare(f) <= 0 {
				next = f.Bump(policy)
			}
		}
		return next.String(), nil
	}

	base, err := ParseVersion(*parent)
	if err != nil {
		return "", err
	}
	if floor != nil {
		f, err := ParseVersion(*floor)
		if err != nil {
			return "", err
		}
		if f.Compare(base) > 0 {
			base = f
		}
	}
	return base.Bump(policy).String(), nil
}
