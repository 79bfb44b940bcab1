package core

import (
	"github.com/git-pkgs/purl"
	packageurl "github.com/package-url/packageurl-go"
)

// PURL is a parsed Package URL with gem helpers.
type PURL struct {
	*purl.PURL
}

// VersionWithPlatform returns the version with the platform qualifier
// appended the way RubyGems spells full names ("1.0.0-java").
func (p PURL) VersionWithPlatform() string {
	platform := p.Qualifier("platform")
	if p.Version == "" || platform == "" || platform == "ruby" {
		return p.Version
	}
	return p.Version + "-" + platform
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:gem/rails) and version PURLs (pkg:gem/rails@7.1.0).
func ParsePURL(s string) (*PURL, error) {
	p, err := purl.Parse(s)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// GemPURL builds the Package URL of a gem version. The platform is carried
// as a qualifier and omitted for the ruby platform.
func GemPURL(name, number, platform string) string {
	var qualifiers packageurl.Qualifiers
	if platform != "" && platform != "ruby" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"platform": platform})
	}
	return packageurl.NewPackageURL(packageurl.TypeGem, "", name, number, qualifiers, "").ToString()
}
