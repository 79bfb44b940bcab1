// Package gemver parses and orders RubyGems version strings.
//
// Ordering follows Gem::Version: a version is split into numeric and
// alphabetic segments, numeric segments compare as numbers, an alphabetic
// segment sorts below any numeric one (so "1.0.0.pre" < "1.0.0"), and
// trailing zero segments carry no weight ("1.0" == "1.0.0").
package gemver

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	versionPattern = regexp.MustCompile(`^[0-9]+(?:\.[0-9a-zA-Z]+)*(?:-[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*)?$`)
	segmentPattern = regexp.MustCompile(`[0-9]+|[a-zA-Z]+`)
)

// Version is a parsed RubyGems version.
type Version struct {
	raw       string
	canonical []segment
	pre       bool
}

type segment struct {
	text    string
	numeric bool
}

var zero = segment{text: "0", numeric: true}

// Parse parses a version string. Surrounding whitespace is ignored and an
// empty string is treated as "0".
func Parse(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "0"
	}
	if !versionPattern.MatchString(s) {
		return nil, fmt.Errorf("malformed version number string %q", s)
	}
	normalized := strings.ReplaceAll(s, "-", ".pre.")

	var segs []segment
	for _, part := range segmentPattern.FindAllString(normalized, -1) {
		if isDigits(part) {
			segs = append(segs, segment{text: trimLeadingZeros(part), numeric: true})
		} else {
			segs = append(segs, segment{text: part})
		}
	}

	return &Version{
		raw:       s,
		canonical: canonicalize(segs),
		pre:       strings.IndexFunc(normalized, isLetter) >= 0,
	}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as it was given, trimmed.
func (v *Version) String() string {
	return v.raw
}

// Prerelease reports whether the version contains a letter.
func (v *Version) Prerelease() bool {
	return v.pre
}

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal to
// or after o.
func (v *Version) Compare(o *Version) int {
	limit := max(len(v.canonical), len(o.canonical))
	for i := 0; i < limit; i++ {
		lhs, rhs := zero, zero
		if i < len(v.canonical) {
			lhs = v.canonical[i]
		}
		if i < len(o.canonical) {
			rhs = o.canonical[i]
		}
		if lhs == rhs {
			continue
		}
		switch {
		case !lhs.numeric && rhs.numeric:
			return -1
		case lhs.numeric && !rhs.numeric:
			return 1
		case lhs.numeric:
			return compareDigits(lhs.text, rhs.text)
		default:
			return strings.Compare(lhs.text, rhs.text)
		}
	}
	return 0
}

// Compare orders two version strings. Malformed versions sort below
// well-formed ones and compare lexically among themselves.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// IsPrerelease reports whether s is a prerelease version string.
func IsPrerelease(s string) bool {
	v, err := Parse(s)
	if err != nil {
		return strings.IndexFunc(s, isLetter) >= 0
	}
	return v.Prerelease()
}

// Valid reports whether s is a well-formed version string.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// canonicalize drops trailing zeros from the release part and from the
// prerelease part independently.
func canonicalize(segs []segment) []segment {
	split := len(segs)
	for i, s := range segs {
		if !s.numeric {
			split = i
			break
		}
	}
	release := dropTrailingZeros(segs[:split])
	pre := dropTrailingZeros(segs[split:])
	out := make([]segment, 0, len(release)+len(pre))
	out = append(out, release...)
	return append(out, pre...)
}

func dropTrailingZeros(segs []segment) []segment {
	end := len(segs)
	for end > 0 && segs[end-1] == zero {
		end--
	}
	return segs[:end]
}

func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
