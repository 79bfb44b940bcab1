package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/gemindex/internal/core"
)

var (
	ErrUnsupportedEcosystem = errors.New("unsupported ecosystem")
	ErrNoDownloadURL        = errors.New("no download URL available")
)

// Registry provides version metadata and URL information for artifact resolution.
// This interface is satisfied by core.Registry implementations.
type Registry interface {
	Ecosystem() string
	FetchVersions(ctx context.Context, name string) ([]core.Version, error)
	URLs() core.URLBuilder
}

// Resolver determines download URLs for package artifacts.
type Resolver struct {
	registries map[string]Registry
}

// NewResolver creates a new URL resolver.
func NewResolver() *Resolver {
	return &Resolver{
		registries: make(map[string]Registry),
	}
}

// RegisterRegistry adds a registry for URL resolution.
func (r *Resolver) RegisterRegistry(reg Registry) {
	r.registries[reg.Ecosystem()] = reg
}

// ArtifactInfo contains information about a downloadable artifact.
type ArtifactInfo struct {
	URL       string
	Filename  string
	Integrity string // sha256-<hex>, empty when the registry publishes none
}

// SHA256 returns the hex digest carried by Integrity, or "".
func (a *ArtifactInfo) SHA256() string {
	if digest, ok := strings.CutPrefix(a.Integrity, "sha256-"); ok {
		return digest
	}
	return ""
}

// Resolve returns the download URL, filename and integrity of a package
// artifact. For gems, version is number[-platform].
func (r *Resolver) Resolve(ctx context.Context, ecosystem, name, version string) (*ArtifactInfo, error) {
	reg, ok := r.registries[ecosystem]
	if !ok {
		return r.resolveWithoutRegistry(ecosystem, name, version)
	}
	return r.resolveFromMetadata(ctx, reg, name, version)
}

// resolveWithoutRegistry handles ecosystems with predictable URLs
// when no registry client is configured. No integrity is known.
func (r *Resolver) resolveWithoutRegistry(ecosystem, name, version string) (*ArtifactInfo, error) {
	switch ecosystem {
	case "gem":
		filename := core.GemFilename(name, version)
		return &ArtifactInfo{
			URL:      "https://rubygems.org/gems/" + filename,
			Filename: filename,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEcosystem, ecosystem)
	}
}

// resolveFromMetadata looks the version up on the registry so the
// artifact carries its published integrity.
func (r *Resolver) resolveFromMetadata(ctx context.Context, reg Registry, name, version string) (*ArtifactInfo, error) {
	versions, err := reg.FetchVersions(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching versions: %w", err)
	}

	v, ok := core.FindVersion(versions, version)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", name, version, ErrNotFound)
	}

	url, _ := v.Metadata["download_url"].(string)
	if url == "" {
		url = reg.URLs().Download(name, version)
	}
	if url == "" {
		return nil, ErrNoDownloadURL
	}

	return &ArtifactInfo{
		URL:       url,
		Filename:  filenameFromURL(url),
		Integrity: v.Integrity,
	}, nil
}

func filenameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
