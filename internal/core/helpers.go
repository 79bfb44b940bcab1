package core

import (
	"context"
	"strings"

	"github.com/git-pkgs/gemindex/internal/gemver"
)

// FetchLatestVersion returns the highest live, non-prerelease version of
// name on the ruby platform. Returns nil if there is none.
func FetchLatestVersion(ctx context.Context, reg Registry, name string) (*Version, error) {
	versions, err := reg.FetchVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	return LatestVersion(versions), nil
}

// LatestVersion picks the highest live release on the ruby platform.
func LatestVersion(versions []Version) *Version {
	var best *Version
	var bestNumber string
	for i := range versions {
		v := &versions[i]
		if v.Status != StatusNone || v.Prerelease() || v.Platform() != "ruby" {
			continue
		}
		number := BaseNumber(*v)
		if !gemver.Valid(number) || gemver.IsPrerelease(number) {
			continue
		}
		if best == nil || gemver.Compare(number, bestNumber) > 0 {
			best, bestNumber = v, number
		}
	}
	return best
}

// FindVersion returns the version whose number[-platform] equals number.
func FindVersion(versions []Version, number string) (*Version, bool) {
	for i := range versions {
		if versions[i].Number == number {
			return &versions[i], true
		}
	}
	return nil, false
}

// BaseNumber strips the platform suffix from v.Number.
func BaseNumber(v Version) string {
	if p := v.Platform(); p != "ruby" {
		return strings.TrimSuffix(v.Number, "-"+p)
	}
	return v.Number
}
