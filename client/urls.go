package client

import "strings"

// URLBuilder constructs the URLs a registry publishes for a gem. version is
// number[-platform]; an empty version addresses the gem itself.
type URLBuilder interface {
	Registry(name, version string) string
	Download(name, version string) string
	Documentation(name, version string) string
	PURL(name, version string) string
}

// GemFilename returns the archive name of a gem version, as served under
// /gems/ by RubyGems-compatible hosts.
func GemFilename(name, version string) string {
	return name + "-" + version + ".gem"
}

// SplitPlatform separates number[-platform]. Gem version numbers never
// contain "-", so the first one starts the platform. The ruby platform is
// reported as "".
func SplitPlatform(version string) (number, platform string) {
	number, platform, _ = strings.Cut(version, "-")
	if platform == "ruby" {
		platform = ""
	}
	return number, platform
}
