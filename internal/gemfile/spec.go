// Package gemfile reads and writes .gem archives and renders the legacy
// per-version descriptor served under /quick/Marshal.4.8.
package gemfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/core"
	"github.com/git-pkgs/gemindex/internal/gemver"
)

// DefaultPlatform is the platform of gems without native code. It is left
// out of full names and version strings.
const DefaultPlatform = "ruby"

// DefaultRequirement is the requirement that matches every version.
const DefaultRequirement = ">= 0"

// Spec is the decoded metadata of a .gem archive.
type Spec struct {
	Name                    string
	Version                 string
	Platform                string
	Summary                 string
	Description             string
	Homepage                string
	Authors                 []string
	Email                   []string
	Licenses                []string
	Metadata                map[string]string
	RequirePaths            []string
	Date                    time.Time
	Dependencies            []core.Dependency
	RequiredRubyVersion     string
	RequiredRubygemsVersion string
	RubygemsVersion         string
	SpecificationVersion    int
}

// FullName returns name-version, with -platform appended unless the
// platform is the default one.
func (s *Spec) FullName() string {
	return FullName(s.Name, s.Version, s.Platform)
}

// Prerelease reports whether the spec's version is a prerelease.
func (s *Spec) Prerelease() bool {
	return gemver.IsPrerelease(s.Version)
}

// RuntimeDependencies returns the dependencies needed at runtime, in
// declaration order.
func (s *Spec) RuntimeDependencies() []core.Dependency {
	var deps []core.Dependency
	for _, d := range s.Dependencies {
		if d.Scope == core.Runtime || d.Scope == "" {
			deps = append(deps, d)
		}
	}
	return deps
}

// FullName joins a gem's name, version and platform the way RubyGems names
// its files.
func FullName(name, version, platform string) string {
	if platform == "" || platform == DefaultPlatform {
		return name + "-" + version
	}
	return name + "-" + version + "-" + platform
}

// NormalizePlatform maps the empty platform to the default one.
func NormalizePlatform(platform string) string {
	if strings.TrimSpace(platform) == "" {
		return DefaultPlatform
	}
	return strings.TrimSpace(platform)
}

// SplitRequirements breaks a requirement string such as "< 1.0.0, >= 0.1.0"
// into its individual constraints.
func SplitRequirements(req string) []string {
	req = strings.TrimSpace(req)
	if req == "" {
		return []string{DefaultRequirement}
	}
	parts := strings.Split(req, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitConstraint separates the operator of a single constraint from its
// version. A bare version implies "=".
func splitConstraint(c string) (op, version string, err error) {
	c = strings.TrimSpace(c)
	for _, candidate := range []string{">=", "<=", "!=", "~>", "=", ">", "<"} {
		if strings.HasPrefix(c, candidate) {
			op = candidate
			version = strings.TrimSpace(strings.TrimPrefix(c, candidate))
			break
		}
	}
	if op == "" {
		op, version = "=", c
	}
	if !gemver.Valid(version) {
		return "", "", fmt.Errorf("invalid requirement %q", c)
	}
	return op, version, nil
}
