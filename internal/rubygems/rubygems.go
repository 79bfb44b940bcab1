// Package rubygems provides the upstream client for a RubyGems registry API.
package rubygems

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/git-pkgs/gemindex/internal/core"
)

const (
	DefaultURL = "https://rubygems.org"
	ecosystem  = "gem"
)

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, client *core.Client) core.Registry {
		return New(baseURL, client)
	})
}

type Registry struct {
	baseURL string
	client  *core.Client
	urls    *URLs
}

func New(baseURL string, client *core.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = core.DefaultClient()
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() core.URLBuilder {
	return r.urls
}

type dependenciesBlock struct {
	Development []gemDep `json:"development"`
	Runtime     []gemDep `json:"runtime"`
}

type gemDep struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements"`
}

type versionResponse struct {
	Number          string            `json:"number"`
	Platform        string            `json:"platform"`
	CreatedAt       string            `json:"created_at"`
	Licenses        []string          `json:"licenses"`
	SHA             string            `json:"sha"`
	RubyVersion     string            `json:"ruby_version"`
	RubygemsVersion string            `json:"rubygems_version"`
	Prerelease      bool              `json:"prerelease"`
	Metadata        map[string]string `json:"metadata"`
}

type dependencyVersionResponse struct {
	Dependencies dependenciesBlock `json:"dependencies"`
}

// FetchVersions lists the live versions of name. Platform gems carry the
// platform in Number ("1.13.6-java") so Number matches the gem's full
// name suffix.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	url := fmt.Sprintf("%s/api/v1/versions/%s.json", r.baseURL, name)

	var resp []versionResponse
	if err := r.client.GetJSON(ctx, url, &resp); err != nil {
		if httpErr, ok := err.(*core.HTTPError); ok && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		return nil, err
	}

	versions := make([]core.Version, len(resp))
	for i, v := range resp {
		var publishedAt time.Time
		if v.CreatedAt != "" {
			publishedAt, _ = time.Parse(time.RFC3339, v.CreatedAt)
		}

		platform := v.Platform
		if platform == "" {
			platform = "ruby"
		}
		number := v.Number
		if platform != "ruby" {
			number = fmt.Sprintf("%s-%s", v.Number, platform)
		}

		var integrity string
		if v.SHA != "" {
			integrity = "sha256-" + v.SHA
		}

		versions[i] = core.Version{
			Number:      number,
			PublishedAt: publishedAt,
			Licenses:    strings.Join(v.Licenses, ","),
			Integrity:   integrity,
			Metadata: map[string]any{
				"platform":         platform,
				"ruby_version":     v.RubyVersion,
				"rubygems_version": v.RubygemsVersion,
				"prerelease":       v.Prerelease,
			},
		}
	}

	return versions, nil
}

// FetchDependencies returns the declared dependencies of one version.
// version is number[-platform]; the platform selects the platform gem.
func (r *Registry) FetchDependencies(ctx context.Context, name, version string) ([]core.Dependency, error) {
	number, platform := core.SplitPlatform(version)
	endpoint := fmt.Sprintf("%s/api/v2/rubygems/%s/versions/%s.json", r.baseURL, name, number)
	if platform != "" {
		endpoint += "?platform=" + url.QueryEscape(platform)
	}

	var resp dependencyVersionResponse
	if err := r.client.GetJSON(ctx, endpoint, &resp); err != nil {
		if httpErr, ok := err.(*core.HTTPError); ok && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name, Version: version}
		}
		return nil, err
	}

	var deps []core.Dependency

	for _, d := range resp.Dependencies.Runtime {
		deps = append(deps, core.Dependency{
			Name:         d.Name,
			Requirements: d.Requirements,
			Scope:        core.Runtime,
		})
	}

	for _, d := range resp.Dependencies.Development {
		deps = append(deps, core.Dependency{
			Name:         d.Name,
			Requirements: d.Requirements,
			Scope:        core.Development,
		})
	}

	return deps, nil
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/gems/%s/versions/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/gems/%s", u.baseURL, name)
}

// Download returns the archive URL; version is number[-platform].
func (u *URLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	return u.baseURL + "/gems/" + core.GemFilename(name, version)
}

func (u *URLs) Documentation(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.rubydoc.info/gems/%s/%s", name, version)
	}
	return fmt.Sprintf("https://www.rubydoc.info/gems/%s", name)
}

func (u *URLs) PURL(name, version string) string {
	return core.GemPURL(name, version, "")
}
