package gemfile

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/rmarshal"
)

// RenderDescriptor returns the deflated Marshal form of the abbreviated
// specification, as served from /quick/Marshal.4.8/<full_name>.gemspec.rz.
func RenderDescriptor(spec *Spec) ([]byte, error) {
	dump, err := descriptorDump(spec)
	if err != nil {
		return nil, err
	}
	inner, err := rmarshal.Marshal(dump)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", spec.FullName(), err)
	}
	outer, err := rmarshal.Marshal(rmarshal.UserDefined{Class: "Gem::Specification", Data: inner})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(outer); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// descriptorDump builds the array Gem::Specification#_dump marshals.
func descriptorDump(spec *Spec) ([]any, error) {
	requiredRuby, err := marshalRequirement(spec.RequiredRubyVersion)
	if err != nil {
		return nil, fmt.Errorf("required_ruby_version: %w", err)
	}
	requiredRubygems, err := marshalRequirement(spec.RequiredRubygemsVersion)
	if err != nil {
		return nil, fmt.Errorf("required_rubygems_version: %w", err)
	}

	deps := make([]any, 0, len(spec.Dependencies))
	for _, d := range spec.Dependencies {
		req, err := marshalRequirement(d.Requirements)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", d.Name, err)
		}
		scope := string(d.Scope)
		if scope == "" {
			scope = "runtime"
		}
		deps = append(deps, rmarshal.Object{
			Class: "Gem::Dependency",
			Ivars: []rmarshal.Ivar{
				{Name: "@name", Value: d.Name},
				{Name: "@requirement", Value: req},
				{Name: "@type", Value: rmarshal.Symbol(scope)},
				{Name: "@prerelease", Value: false},
				{Name: "@version_requirements", Value: req},
			},
		})
	}

	metadata := rmarshal.Hash{}
	for _, k := range sortedKeys(spec.Metadata) {
		metadata = append(metadata, rmarshal.Pair{Key: k, Value: spec.Metadata[k]})
	}

	platform := NormalizePlatform(spec.Platform)
	date := spec.Date.UTC().Truncate(24 * time.Hour)

	return []any{
		spec.RubygemsVersion,
		spec.SpecificationVersion,
		spec.Name,
		marshalVersion(spec.Version),
		rmarshal.Time(date),
		spec.Summary,
		requiredRuby,
		requiredRubygems,
		platform,
		deps,
		"",
		marshalEmail(spec.Email),
		stringsOrEmpty(spec.Authors),
		optionalString(spec.Description),
		optionalString(spec.Homepage),
		true,
		marshalPlatform(platform),
		stringsOrEmpty(spec.Licenses),
		metadata,
	}, nil
}

func marshalVersion(v string) rmarshal.UserMarshal {
	return rmarshal.UserMarshal{Class: "Gem::Version", Data: []any{v}}
}

func marshalRequirement(req string) (rmarshal.UserMarshal, error) {
	var pairs []any
	for _, c := range SplitRequirements(req) {
		op, version, err := splitConstraint(c)
		if err != nil {
			return rmarshal.UserMarshal{}, err
		}
		pairs = append(pairs, []any{op, marshalVersion(version)})
	}
	return rmarshal.UserMarshal{Class: "Gem::Requirement", Data: []any{pairs}}, nil
}

// marshalPlatform returns the "ruby" string for the default platform and a
// Gem::Platform object otherwise.
func marshalPlatform(platform string) any {
	if platform == DefaultPlatform {
		return platform
	}
	var cpu, os, version any
	parts := strings.SplitN(platform, "-", 3)
	switch len(parts) {
	case 1:
		os = parts[0]
	case 2:
		cpu, os = parts[0], parts[1]
	default:
		cpu, os, version = parts[0], parts[1], parts[2]
	}
	return rmarshal.Object{
		Class: "Gem::Platform",
		Ivars: []rmarshal.Ivar{
			{Name: "@cpu", Value: cpu},
			{Name: "@os", Value: os},
			{Name: "@version", Value: version},
		},
	}
}

func marshalEmail(email []string) any {
	switch len(email) {
	case 0:
		return nil
	case 1:
		return email[0]
	default:
		return email
	}
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
