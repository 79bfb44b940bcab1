// Package service serializes access to the index and owns the logical
// clock every mutation is stamped with.
package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/logger"
)

const clockLayout = "2006-01-02 15:04:05 MST"

// Service is safe for concurrent use. Mutations hold the write lock until
// every derived field and checksum is updated, reads share the read lock.
type Service struct {
	mu    sync.RWMutex
	store *index.Store
	now   time.Time
	log   *logger.Logger
}

// New wraps store with a clock starting at start.
func New(store *index.Store, start time.Time, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store: store,
		now:   start.UTC(),
		log:   log,
	}
}

// Stats summarizes the service state for health checks.
type Stats struct {
	Records    int       `json:"records"`
	Now        time.Time `json:"now"`
	Checkpoint time.Time `json:"checkpoint"`
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Records:    s.store.Len(),
		Now:        s.now,
		Checkpoint: s.store.Checkpoint(),
	}
}

// Now returns the logical clock.
func (s *Service) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

func (s *Service) line(msg string) string {
	return fmt.Sprintf("[%s] %s", s.now.Format(clockLayout), msg)
}

// Publish decodes a .gem archive and indexes it. It returns the
// acknowledgement line.
func (s *Service) Publish(archive []byte) (string, error) {
	spec, err := gemfile.Decode(archive)
	if err != nil {
		s.log.Warn("rejected upload", "error", err, "bytes", len(archive))
		return "", err
	}
	return s.PublishSpec(spec, archive)
}

// PublishSpec indexes an already decoded archive.
func (s *Service) PublishSpec(spec *gemfile.Spec, archive []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Publish(spec, archive, s.now)
	if err != nil {
		s.log.Warn("publish rejected", "gem", spec.FullName(), "error", err)
		return "", err
	}
	s.log.Info("pushed", "gem", r.FullName(), "purl", r.PURL(), "at", s.now, "sha256", r.ContentChecksum)
	return s.line("Pushed " + r.FullName()), nil
}

// Yank withdraws a published version.
func (s *Service) Yank(name, version, platform string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Yank(name, version, platform, s.now)
	if err != nil {
		s.log.Warn("yank rejected", "gem", name, "version", version, "platform", platform, "error", err)
		return "", err
	}
	s.log.Info("yanked", "gem", r.FullName(), "purl", r.PURL(), "at", s.now)
	return s.line("Yanked " + r.FullName()), nil
}

// SetTime moves the logical clock.
func (s *Service) SetTime(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = t.UTC()
	s.log.Info("clock set", "now", s.now)
	return s.line("Time set to " + s.now.Format(clockLayout))
}

// Rebuild rewrites the versions document as of the logical clock.
func (s *Service) Rebuild() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Rebuild(s.now); err != nil {
		s.log.Error("rebuild failed", "error", err)
		return "", fmt.Errorf("rebuild versions list: %w", err)
	}
	s.log.Info("rebuilt versions list", "checkpoint", s.now)
	return "Rebuilt versions list", nil
}

func (s *Service) Versions() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Versions()
}

func (s *Service) Info(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Info(name)
}

func (s *Service) Names() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Names()
}

func (s *Service) Snapshot(filter string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Snapshot(filter)
}

// Descriptor renders the quick spec of an indexed version.
func (s *Service) Descriptor(fullName string) ([]byte, error) {
	s.mu.RLock()
	r, err := s.store.Find(fullName)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return gemfile.RenderDescriptor(r.Spec)
}

// Archive returns the uploaded bytes of an indexed version.
func (s *Service) Archive(fullName string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := s.store.Find(fullName)
	if err != nil {
		return nil, err
	}
	return r.Archive, nil
}

// Has reports whether fullName is currently indexed.
func (s *Service) Has(fullName string) bool {
	_, err := s.Archive(fullName)
	return err == nil
}
