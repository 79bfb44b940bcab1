// Package gemindex is a RubyGems registry index: it accepts gem uploads and
// yanks and serves the compact index (versions, info, names), the legacy
// Marshal snapshots and per-version descriptors derived from them.
//
// Basic usage:
//
//	svc := gemindex.NewService(time.Now())
//	http.ListenAndServe(":4567", gemindex.Handler(svc))
//
// The index lives in memory. Use NewServiceWithFeed to keep the rebuilt
// versions document on disk.
package gemindex

import (
	"net/http"
	"time"

	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/logger"
	"github.com/git-pkgs/gemindex/internal/server"
	"github.com/git-pkgs/gemindex/internal/service"
)

type (
	// Service serializes access to the index and owns its logical clock.
	Service = service.Service

	// Stats summarizes the index for health checks.
	Stats = service.Stats

	// Record is one published (name, number, platform) version.
	Record = index.Record

	// Spec is the decoded metadata of a gem archive.
	Spec = gemfile.Spec

	// FeedStore persists the rebuilt versions document.
	FeedStore = index.FeedStore

	// Logger is the structured logger used throughout the index.
	Logger = logger.Logger
)

// Error types
type (
	ConflictError     = index.ConflictError
	NotFoundError     = index.NotFoundError
	DecodeError       = gemfile.DecodeError
	ContractViolation = index.ContractViolation
)

var (
	ErrConflict = index.ErrConflict
	ErrNotFound = index.ErrNotFound
)

// Snapshot filters accepted by Service.Snapshot.
const (
	SnapshotAll        = index.SnapshotAll
	SnapshotLatest     = index.SnapshotLatest
	SnapshotPrerelease = index.SnapshotPrerelease
)

// NewService returns an in-memory index whose clock starts at start.
func NewService(start time.Time) *Service {
	return service.New(index.NewStore(nil), start, nil)
}

// NewServiceWithFeed returns an index that writes rebuilt versions
// documents through feed and logs through log (nil discards).
func NewServiceWithFeed(start time.Time, feed FeedStore, log *Logger) *Service {
	return service.New(index.NewStore(feed), start, log)
}

// NewFileFeedStore keeps the versions document at path.
func NewFileFeedStore(path string) FeedStore {
	return index.NewFileFeedStore(path)
}

// DecodeGem reads the metadata of a .gem archive.
func DecodeGem(archive []byte) (*Spec, error) {
	return gemfile.Decode(archive)
}

// Handler returns the HTTP API of svc.
func Handler(svc *Service) http.Handler {
	return server.NewRouter(server.RouterConfig{Service: svc})
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string such as pkg:gem/rails@7.1.0.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}
