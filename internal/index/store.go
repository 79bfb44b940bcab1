package index

import (
	"sort"
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/checksum"
	"github.com/git-pkgs/gemindex/internal/gemfile"
)

// Epoch is the checkpoint of a versions document that has never been
// rebuilt.
var Epoch = time.Unix(0, 0).UTC()

// Snapshot filters.
const (
	SnapshotAll        = "all"
	SnapshotLatest     = "latest"
	SnapshotPrerelease = "prerelease"
)

// Store is the authoritative set of records. It is not safe for concurrent
// use; callers serialize access.
type Store struct {
	records []*Record
	byName  map[string][]*Record

	feed       FeedStore
	checkpoint time.Time
	rebuilt    bool
}

// NewStore returns an empty store writing rebuilt versions documents to
// feed. A nil feed keeps them in memory.
func NewStore(feed FeedStore) *Store {
	if feed == nil {
		feed = NewMemoryFeedStore()
	}
	return &Store{
		byName:     make(map[string][]*Record),
		feed:       feed,
		checkpoint: Epoch,
	}
}

// Checkpoint returns the time of the last rebuild, or Epoch.
func (s *Store) Checkpoint() time.Time {
	return s.checkpoint
}

// Len returns the number of records ever published.
func (s *Store) Len() int {
	return len(s.records)
}

// Publish adds an indexed record for spec stamped with now.
func (s *Store) Publish(spec *gemfile.Spec, archive []byte, now time.Time) (*Record, error) {
	platform := gemfile.NormalizePlatform(spec.Platform)
	fullName := gemfile.FullName(spec.Name, spec.Version, platform)
	for _, r := range s.byName[spec.Name] {
		if r.Indexed && r.FullName() == fullName {
			return nil, &ConflictError{FullName: fullName}
		}
	}

	r := &Record{
		Name:            spec.Name,
		Number:          spec.Version,
		Platform:        platform,
		ContentChecksum: checksum.Strong(archive),
		Indexed:         true,
		Prerelease:      spec.Prerelease(),
		PublishedAt:     now,
		Spec:            spec,
		Archive:         archive,
		seq:             len(s.records),
	}
	s.records = append(s.records, r)
	s.byName[r.Name] = append(s.byName[r.Name], r)
	applyOrder(s.byName[r.Name])

	r.InfoChecksum = checksum.Weak(s.info(r.Name))
	return r, nil
}

// Yank withdraws the indexed record matching name, number and platform.
func (s *Store) Yank(name, number, platform string, now time.Time) (*Record, error) {
	fullName := gemfile.FullName(name, number, platform)

	var target *Record
	for _, r := range s.byName[name] {
		if r.Indexed && r.FullName() == fullName {
			target = r
			break
		}
	}
	if target == nil {
		return nil, &NotFoundError{Kind: "version", Name: fullName}
	}

	target.Indexed = false
	applyOrder(s.byName[name])
	target.YankedAt = now
	target.YankedInfoChecksum = checksum.Weak(s.info(name))
	return target, nil
}

// Find returns the indexed record with the given full name.
func (s *Store) Find(fullName string) (*Record, error) {
	for _, r := range s.records {
		if r.Indexed && r.FullName() == fullName {
			return r, nil
		}
	}
	return nil, &NotFoundError{Kind: "version", Name: fullName}
}

// Records returns the records of a package in publish order.
func (s *Store) Records(name string) []*Record {
	return append([]*Record(nil), s.byName[name]...)
}

// Info renders the info document for name.
func (s *Store) Info(name string) ([]byte, error) {
	if len(s.byName[name]) == 0 {
		return nil, &NotFoundError{Kind: "gem", Name: name}
	}
	return s.info(name), nil
}

func (s *Store) info(name string) []byte {
	var live []Entry
	for _, e := range entries(s.byName[name], View{}) {
		if !e.Tombstone() {
			live = append(live, e)
		}
	}
	return RenderInfo(live)
}

// Names renders the names document.
func (s *Store) Names() []byte {
	var names []string
	for name, records := range s.byName {
		for _, r := range records {
			if r.Indexed {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return RenderNames(names)
}

// Snapshot renders the legacy specs snapshot for filter, which is one of
// the Snapshot constants or empty for SnapshotAll.
func (s *Store) Snapshot(filter string) ([]byte, error) {
	var keep func(*Record) bool
	switch filter {
	case "", SnapshotAll:
		keep = func(r *Record) bool { return r.Indexed && !r.Prerelease }
	case SnapshotLatest:
		keep = func(r *Record) bool { return r.Indexed && r.Latest }
	case SnapshotPrerelease:
		keep = func(r *Record) bool { return r.Indexed && r.Prerelease }
	default:
		return nil, &NotFoundError{Kind: "snapshot", Name: filter}
	}

	var selected []*Record
	for _, r := range s.records {
		if keep(r) {
			selected = append(selected, r)
		}
	}
	SortSnapshot(selected)
	return RenderSnapshot(selected)
}

// SortSnapshot orders records by name, then oldest position first, then
// platform in reverse byte order. This matches the legacy byte layout
// clients already cache.
func SortSnapshot(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Position != b.Position {
			return a.Position > b.Position
		}
		return strings.Compare(a.Platform, b.Platform) > 0
	})
}
