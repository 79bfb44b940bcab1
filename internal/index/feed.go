package index

import (
	"sort"
	"strings"
	"time"
)

// View selects records for the versions document. At most one of Since and
// Before may be set; the zero View selects every record.
type View struct {
	// Since selects events strictly after the given time.
	Since time.Time
	// Before selects the state as of the given time, inclusive.
	Before time.Time
}

// Entries returns the entries of every package selected by v, ordered by
// effective time then publish order. Yanks inside the view also yield a
// live copy of the yanked version, placed after all real records.
//
// Entries panics with *ContractViolation if both Since and Before are set.
func (s *Store) Entries(v View) []Entry {
	return entries(s.records, v)
}

type candidate struct {
	record  *Record
	indexed bool
	yanked  time.Time
	yankSum string
	order   int
}

func (c candidate) effectiveTime() time.Time {
	if !c.yanked.IsZero() {
		return c.yanked
	}
	return c.record.PublishedAt
}

func entries(records []*Record, v View) []Entry {
	since, before := !v.Since.IsZero(), !v.Before.IsZero()
	if since && before {
		panic(&ContractViolation{Msg: "Since and Before cannot be used together"})
	}

	all := make([]candidate, 0, len(records))
	for _, r := range records {
		all = append(all, candidate{
			record:  r,
			indexed: r.Indexed,
			yanked:  r.YankedAt,
			yankSum: r.YankedInfoChecksum,
			order:   r.seq,
		})
	}

	if since || before {
		cutoff := v.Since
		if before {
			cutoff = v.Before
		}
		next := maxSeq(records) + 1
		for _, r := range records {
			if r.Yanked() && r.YankedAt.After(cutoff) {
				all = append(all, candidate{
					record:  r,
					indexed: true,
					order:   next,
				})
				next++
			}
		}
	}

	kept := all[:0]
	for _, c := range all {
		switch {
		case since:
			if c.record.PublishedAt.After(v.Since) || (!c.yanked.IsZero() && c.yanked.After(v.Since)) {
				kept = append(kept, c)
			}
		case before:
			if !c.effectiveTime().After(v.Before) {
				kept = append(kept, c)
			}
		default:
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ti, tj := kept[i].effectiveTime(), kept[j].effectiveTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return kept[i].order < kept[j].order
	})

	out := make([]Entry, 0, len(kept))
	for _, c := range kept {
		sum := c.yankSum
		if sum == "" {
			sum = c.record.InfoChecksum
		}
		out = append(out, entryFor(c.record, c.indexed, sum))
	}
	return out
}

func maxSeq(records []*Record) int {
	m := -1
	for _, r := range records {
		if r.seq > m {
			m = r.seq
		}
	}
	return m
}

// Versions renders the versions document: the last rebuilt document
// followed by one line per event since the rebuild.
func (s *Store) Versions() ([]byte, error) {
	var b strings.Builder
	if s.rebuilt {
		doc, err := s.feed.Read()
		if err != nil {
			return nil, err
		}
		b.Write(doc)
	} else {
		b.WriteString(VersionsHeader(s.checkpoint))
	}

	for _, e := range s.Entries(View{Since: s.checkpoint}) {
		b.WriteString(VersionsLine(e.Name, []Entry{e}))
	}
	return []byte(b.String()), nil
}

// Rebuild writes a fresh versions document describing the state as of now
// and moves the checkpoint to now.
//
// Every line of a package carries the checksum of the package's most
// recent event, and yanked versions are dropped. Packages with no live
// versions are omitted.
func (s *Store) Rebuild(now time.Time) error {
	groups := make(map[string][]Entry)
	for _, e := range s.Entries(View{Before: now}) {
		groups[e.Name] = append(groups[e.Name], e)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(VersionsHeader(now))
	for _, name := range names {
		group := groups[name]
		sum := group[len(group)-1].InfoChecksum

		live := group[:0]
		for _, e := range group {
			if e.Tombstone() {
				continue
			}
			e.InfoChecksum = sum
			live = append(live, e)
		}
		b.WriteString(VersionsLine(name, live))
	}

	if err := s.feed.Write([]byte(b.String())); err != nil {
		return err
	}
	s.checkpoint = now
	s.rebuilt = true
	return nil
}
