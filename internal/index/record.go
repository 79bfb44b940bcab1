// Package index holds the authoritative publish/yank state of a gem
// registry and derives the compact index documents and legacy snapshots
// from it.
package index

import (
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/core"
	"github.com/git-pkgs/gemindex/internal/gemfile"
)

// Record is the state of one published (name, number, platform) tuple.
// Records are never removed; yanking only clears Indexed.
type Record struct {
	Name            string
	Number          string
	Platform        string
	ContentChecksum string
	Indexed         bool
	Prerelease      bool
	PublishedAt     time.Time
	YankedAt        time.Time

	InfoChecksum       string
	YankedInfoChecksum string

	Position int
	Latest   bool

	Spec    *gemfile.Spec
	Archive []byte

	seq int
}

// FullName returns name-number, with -platform appended for non-default
// platforms.
func (r *Record) FullName() string {
	return gemfile.FullName(r.Name, r.Number, r.Platform)
}

// PURL returns the record's Package URL, pkg:gem/name@number with a
// platform qualifier for platform gems.
func (r *Record) PURL() string {
	return core.GemPURL(r.Name, r.Number, r.Platform)
}

// Yanked reports whether the record has ever been yanked.
func (r *Record) Yanked() bool {
	return !r.YankedAt.IsZero()
}

func (r *Record) effectiveTime() time.Time {
	if r.Yanked() {
		return r.YankedAt
	}
	return r.PublishedAt
}

// Entry is one rendered line source for the versions and info documents.
type Entry struct {
	Name     string
	Number   string // prefixed with "-" for tombstones
	Platform string

	ContentChecksum string
	InfoChecksum    string

	Dependencies            []core.Dependency
	RequiredRubyVersion     string
	RequiredRubygemsVersion string
}

// Tombstone reports whether the entry marks a yanked version.
func (e Entry) Tombstone() bool {
	return strings.HasPrefix(e.Number, "-")
}

// NumberAndPlatform returns the version token used in both feeds.
func (e Entry) NumberAndPlatform() string {
	if e.Platform == "" || e.Platform == gemfile.DefaultPlatform {
		return e.Number
	}
	return e.Number + "-" + e.Platform
}

func entryFor(r *Record, indexed bool, infoChecksum string) Entry {
	e := Entry{
		Name:            r.Name,
		Number:          r.Number,
		Platform:        r.Platform,
		ContentChecksum: r.ContentChecksum,
		InfoChecksum:    infoChecksum,
	}
	if !indexed {
		e.Number = "-" + r.Number
	}
	if r.Spec != nil {
		e.Dependencies = r.Spec.RuntimeDependencies()
		e.RequiredRubyVersion = r.Spec.RequiredRubyVersion
		e.RequiredRubygemsVersion = r.Spec.RequiredRubygemsVersion
	}
	return e
}
