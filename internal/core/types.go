// Package core holds the types shared by the upstream registry clients and
// the registry factory used to construct them.
package core

import "time"

// Version represents a specific version of a package on an upstream registry.
type Version struct {
	Number      string // number[-platform] for platform gems
	PublishedAt time.Time
	Licenses    string
	Integrity   string // sha256-<hex>
	Status      VersionStatus
	Metadata    map[string]any
}

// Platform returns the version's platform, "ruby" when unset.
func (v Version) Platform() string {
	if p, ok := v.Metadata["platform"].(string); ok && p != "" {
		return p
	}
	return "ruby"
}

// Prerelease reports the upstream prerelease flag.
func (v Version) Prerelease() bool {
	p, _ := v.Metadata["prerelease"].(bool)
	return p
}

// VersionStatus represents the status of a package version.
type VersionStatus string

const (
	StatusNone   VersionStatus = ""
	StatusYanked VersionStatus = "yanked"
)

// Dependency represents a package dependency.
type Dependency struct {
	Name         string
	Requirements string
	Scope        Scope
	Optional     bool
}

// Scope indicates when a dependency is required.
type Scope string

const (
	Runtime     Scope = "runtime"
	Development Scope = "development"
)
