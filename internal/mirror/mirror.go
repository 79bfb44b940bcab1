// Package mirror imports gems from an upstream RubyGems registry into the
// local index.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/gemindex/fetch"
	"github.com/git-pkgs/gemindex/internal/core"
	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/logger"
)

const defaultConcurrency = 4

// Publisher is the part of the index service the mirror writes through.
type Publisher interface {
	PublishSpec(spec *gemfile.Spec, archive []byte) (string, error)
	Has(fullName string) bool
	Rebuild() (string, error)
}

// Config wires a Mirror. Archive size limits belong to the Fetcher.
type Config struct {
	Registry    core.Registry
	Fetcher     fetch.FetcherInterface
	Publisher   Publisher
	Log         *logger.Logger
	Concurrency int
}

type Mirror struct {
	registry    core.Registry
	resolver    *fetch.Resolver
	fetcher     fetch.FetcherInterface
	publisher   Publisher
	log         *logger.Logger
	concurrency int
}

func New(cfg Config) *Mirror {
	resolver := fetch.NewResolver()
	resolver.RegisterRegistry(cfg.Registry)

	m := &Mirror{
		registry:    cfg.Registry,
		resolver:    resolver,
		fetcher:     cfg.Fetcher,
		publisher:   cfg.Publisher,
		log:         cfg.Log,
		concurrency: cfg.Concurrency,
	}
	if m.log == nil {
		m.log = logger.NewNop()
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultConcurrency
	}
	return m
}

// Ref names a gem to mirror. An empty Version means the latest release.
type Ref struct {
	Name    string
	Version string // number[-platform]
}

func (r Ref) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// ParseRef accepts "name", "name@version" or a gem Package URL such as
// "pkg:gem/nokogiri@1.13.6?platform=java". Package URLs pointing at a
// registry other than rubygems.org are rejected: the mirror has one
// upstream, configured separately.
func ParseRef(s string) (Ref, error) {
	if strings.HasPrefix(s, "pkg:") {
		p, err := core.ParsePURL(s)
		if err != nil {
			return Ref{}, fmt.Errorf("parsing %q: %w", s, err)
		}
		if p.Type != "gem" {
			return Ref{}, fmt.Errorf("parsing %q: not a gem purl", s)
		}
		if p.IsPrivateRegistry() {
			return Ref{}, fmt.Errorf("parsing %q: repository_url %s is not the mirror upstream", s, p.RepositoryURL())
		}
		return Ref{Name: p.FullName(), Version: p.VersionWithPlatform()}, nil
	}

	name, version, _ := strings.Cut(s, "@")
	if name == "" {
		return Ref{}, fmt.Errorf("parsing %q: missing gem name", s)
	}
	return Ref{Name: name, Version: version}, nil
}

// Result describes one synced gem.
type Result struct {
	Ref      Ref
	FullName string
	PURL     string
	Skipped  bool // already indexed
}

// DependencyMismatchError reports an archive whose runtime dependencies
// differ from the ones the upstream registry lists for the version.
type DependencyMismatchError struct {
	FullName string
	Missing  []string // listed upstream, absent from the archive
	Extra    []string // declared by the archive, unknown upstream
}

func (e *DependencyMismatchError) Error() string {
	return fmt.Sprintf("%s: runtime dependencies differ from upstream (missing %v, extra %v)", e.FullName, e.Missing, e.Extra)
}

// Sync imports one gem version. An empty version selects the latest
// release on the ruby platform.
func (m *Mirror) Sync(ctx context.Context, name, version string) (*Result, error) {
	ref := Ref{Name: name, Version: version}
	if version == "" {
		latest, err := core.FetchLatestVersion(ctx, m.registry, name)
		if err != nil {
			return nil, fmt.Errorf("resolving latest %s: %w", name, err)
		}
		if latest == nil {
			return nil, &core.NotFoundError{Ecosystem: m.registry.Ecosystem(), Name: name}
		}
		version = latest.Number
	}

	fullName := name + "-" + version
	res := &Result{Ref: ref, FullName: fullName}
	if m.publisher.Has(fullName) {
		res.Skipped = true
		m.log.Debug("already indexed", "gem", fullName)
		return res, nil
	}

	info, err := m.resolver.Resolve(ctx, m.registry.Ecosystem(), name, version)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", fullName, err)
	}

	archive, err := m.download(ctx, info)
	if err != nil {
		return nil, err
	}

	spec, err := gemfile.Decode(archive)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", info.URL, err)
	}
	if spec.FullName() != fullName {
		return nil, fmt.Errorf("%s contains %s, want %s", info.URL, spec.FullName(), fullName)
	}
	if err := m.checkDependencies(ctx, spec, version); err != nil {
		return nil, err
	}
	res.PURL = core.GemPURL(spec.Name, spec.Version, spec.Platform)

	ack, err := m.publisher.PublishSpec(spec, archive)
	var conflict *index.ConflictError
	switch {
	case errors.As(err, &conflict):
		res.Skipped = true
		return res, nil
	case err != nil:
		return nil, fmt.Errorf("publishing %s: %w", fullName, err)
	}

	m.log.Info("mirrored", "gem", fullName, "purl", res.PURL, "url", info.URL, "ack", ack)
	return res, nil
}

func (m *Mirror) download(ctx context.Context, info *fetch.ArtifactInfo) ([]byte, error) {
	artifact, err := m.fetcher.Fetch(ctx, info.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", info.URL, err)
	}
	return artifact.ReadVerified(info.SHA256())
}

// checkDependencies compares the runtime dependency names declared in the
// archive with the ones the upstream lists for version. Hosts that publish
// no dependency metadata are trusted.
func (m *Mirror) checkDependencies(ctx context.Context, spec *gemfile.Spec, version string) error {
	upstream, err := m.registry.FetchDependencies(ctx, spec.Name, version)
	if errors.Is(err, core.ErrNotFound) {
		m.log.Debug("no upstream dependency metadata", "gem", spec.FullName())
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching dependencies of %s: %w", spec.FullName(), err)
	}

	want := make(map[string]bool)
	for _, d := range upstream {
		if d.Scope == core.Runtime {
			want[d.Name] = true
		}
	}
	got := make(map[string]bool)
	for _, d := range spec.RuntimeDependencies() {
		got[d.Name] = true
	}

	mismatch := &DependencyMismatchError{FullName: spec.FullName()}
	for name := range want {
		if !got[name] {
			mismatch.Missing = append(mismatch.Missing, name)
		}
	}
	for name := range got {
		if !want[name] {
			mismatch.Extra = append(mismatch.Extra, name)
		}
	}
	if len(mismatch.Missing) > 0 || len(mismatch.Extra) > 0 {
		sort.Strings(mismatch.Missing)
		sort.Strings(mismatch.Extra)
		return mismatch
	}
	return nil
}

// SyncAll imports refs concurrently. The first failure cancels the
// remaining syncs and is returned.
func (m *Mirror) SyncAll(ctx context.Context, refs []Ref) ([]Result, error) {
	results := make([]Result, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := m.Sync(gctx, ref.Name, ref.Version)
			if err != nil {
				return fmt.Errorf("mirroring %s: %w", ref, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Seed imports refs before the index starts serving, then rebuilds the
// versions document. Gems imported at the feed checkpoint would otherwise
// be listed by /names and /info but missing from /versions.
func (m *Mirror) Seed(ctx context.Context, refs []Ref) ([]Result, error) {
	results, err := m.SyncAll(ctx, refs)
	if err != nil {
		return nil, err
	}

	imported := 0
	for _, r := range results {
		if !r.Skipped {
			imported++
		}
	}
	if imported == 0 {
		return results, nil
	}
	if _, err := m.publisher.Rebuild(); err != nil {
		return nil, fmt.Errorf("rebuilding after import: %w", err)
	}
	m.log.Info("seeded index", "imported", imported, "requested", len(refs))
	return results, nil
}
