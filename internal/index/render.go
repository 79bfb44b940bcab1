package index

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/rmarshal"
)

// VersionsHeader renders the first two lines of a versions document.
func VersionsHeader(createdAt time.Time) string {
	return fmt.Sprintf("created_at: %s\n---\n", createdAt.UTC().Format(time.RFC3339))
}

// VersionsLine renders one line of the versions document. The checksum is
// taken from the last entry.
func VersionsLine(name string, entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	numbers := make([]string, len(entries))
	for i, e := range entries {
		numbers[i] = e.NumberAndPlatform()
	}
	return name + " " + strings.Join(numbers, ",") + " " + entries[len(entries)-1].InfoChecksum + "\n"
}

// RenderInfo renders the info document for a package's live entries.
func RenderInfo(entries []Entry) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	for _, e := range entries {
		b.WriteString(infoLine(e))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func infoLine(e Entry) string {
	deps := make([]string, 0, len(e.Dependencies))
	for _, d := range e.Dependencies {
		reqs := strings.Split(d.Requirements, ", ")
		sort.Strings(reqs)
		deps = append(deps, d.Name+":"+strings.Join(reqs, "&"))
	}

	line := e.NumberAndPlatform() + " " + strings.Join(deps, ",") + "|checksum:" + e.ContentChecksum
	if e.RequiredRubyVersion != "" && e.RequiredRubyVersion != gemfile.DefaultRequirement {
		line += ",ruby:" + e.RequiredRubyVersion
	}
	if e.RequiredRubygemsVersion != "" && e.RequiredRubygemsVersion != gemfile.DefaultRequirement {
		line += ",rubygems:" + e.RequiredRubygemsVersion
	}
	return line
}

// RenderNames renders the names document. names must already be sorted and
// unique.
func RenderNames(names []string) []byte {
	return []byte("---\n" + strings.Join(names, "\n") + "\n")
}

// RenderSnapshot renders records as a gzipped Marshal array of
// [name, Gem::Version, platform] tuples, in the given order.
func RenderSnapshot(records []*Record) ([]byte, error) {
	tuples := make([]any, 0, len(records))
	for _, r := range records {
		tuples = append(tuples, []any{
			r.Name,
			rmarshal.UserMarshal{Class: "Gem::Version", Data: []any{r.Number}},
			gemfile.NormalizePlatform(r.Platform),
		})
	}
	raw, err := rmarshal.Marshal(tuples)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
