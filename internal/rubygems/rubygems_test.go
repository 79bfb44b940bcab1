package rubygems

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/gemindex/internal/core"
)

func TestFetchVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/versions/nokogiri.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := []versionResponse{
			{
				Number:    "1.13.6",
				Platform:  "ruby",
				CreatedAt: "2022-05-08T14:34:51.113Z",
				Licenses:  []string{"MIT"},
				SHA:       "b1512fdc0aba446e1ee30de3e0671518eb363e75fab53486e99e8891d44b8587",
			},
			{
				Number:    "1.13.6",
				Platform:  "x86_64-linux",
				CreatedAt: "2022-05-08T14:34:45.502Z",
				Licenses:  []string{"MIT"},
				SHA:       "3fa37b0c3b5744af45f9da3e4ae9cbd89480b35e12ae36b5e87a0452e0b38335",
			},
			{
				Number:     "1.14.0.rc1",
				Platform:   "",
				Prerelease: true,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	versions, err := reg.FetchVersions(context.Background(), "nokogiri")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}

	if versions[0].Number != "1.13.6" {
		t.Errorf("expected version '1.13.6', got %q", versions[0].Number)
	}
	if versions[1].Number != "1.13.6-x86_64-linux" {
		t.Errorf("expected version '1.13.6-x86_64-linux', got %q", versions[1].Number)
	}
	if versions[1].Platform() != "x86_64-linux" {
		t.Errorf("expected platform 'x86_64-linux', got %q", versions[1].Platform())
	}
	if versions[0].Integrity != "sha256-b1512fdc0aba446e1ee30de3e0671518eb363e75fab53486e99e8891d44b8587" {
		t.Errorf("unexpected integrity: %q", versions[0].Integrity)
	}
	if versions[2].Platform() != "ruby" || !versions[2].Prerelease() {
		t.Errorf("prerelease version = %+v", versions[2])
	}

	latest := core.LatestVersion(versions)
	if latest == nil || latest.Number != "1.13.6" {
		t.Errorf("LatestVersion = %v", latest)
	}
}

func TestFetchVersionsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	_, err := reg.FetchVersions(context.Background(), "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *core.NotFoundError
	if !errors.As(err, &nf) || nf.Name != "missing" || nf.Ecosystem != "gem" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestFetchDependencies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/rubygems/rails/versions/7.1.0.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := dependencyVersionResponse{
			Dependencies: dependenciesBlock{
				Runtime: []gemDep{
					{Name: "activesupport", Requirements: "= 7.1.0"},
					{Name: "actionpack", Requirements: "= 7.1.0"},
				},
				Development: []gemDep{
					{Name: "minitest", Requirements: "~> 5.15"},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	deps, err := reg.FetchDependencies(context.Background(), "rails", "7.1.0")
	if err != nil {
		t.Fatalf("FetchDependencies failed: %v", err)
	}

	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies, got %d", len(deps))
	}

	runtimeCount := 0
	devCount := 0
	for _, d := range deps {
		switch d.Scope {
		case core.Runtime:
			runtimeCount++
		case core.Development:
			devCount++
		}
	}

	if runtimeCount != 2 {
		t.Errorf("expected 2 runtime deps, got %d", runtimeCount)
	}
	if devCount != 1 {
		t.Errorf("expected 1 dev dep, got %d", devCount)
	}
}

func TestFetchDependenciesPlatform(t *testing.T) {
	var gotPath, gotPlatform string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPlatform = r.URL.Query().Get("platform")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dependencyVersionResponse{
			Dependencies: dependenciesBlock{
				Runtime: []gemDep{{Name: "racc", Requirements: "~> 1.4"}},
			},
		})
	}))
	defer server.Close()

	reg := New(server.URL, core.NewClient(core.WithMaxRetries(0)))
	deps, err := reg.FetchDependencies(context.Background(), "nokogiri", "1.13.6-x86_64-linux")
	if err != nil {
		t.Fatalf("FetchDependencies failed: %v", err)
	}
	if gotPath != "/api/v2/rubygems/nokogiri/versions/1.13.6.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPlatform != "x86_64-linux" {
		t.Errorf("platform = %q, want x86_64-linux", gotPlatform)
	}
	if len(deps) != 1 || deps[0].Name != "racc" || deps[0].Scope != core.Runtime {
		t.Errorf("deps = %+v", deps)
	}
}

func TestFetchDependenciesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := New(server.URL, core.NewClient(core.WithMaxRetries(0)))
	_, err := reg.FetchDependencies(context.Background(), "missing", "1.0.0")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestURLBuilder(t *testing.T) {
	reg := New("https://rubygems.org/", nil)
	urls := reg.URLs()

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry", func() string { return urls.Registry("rails", "7.1.0") }, "https://rubygems.org/gems/rails/versions/7.1.0"},
		{"download", func() string { return urls.Download("rails", "7.1.0") }, "https://rubygems.org/gems/rails-7.1.0.gem"},
		{"download platform", func() string { return urls.Download("nokogiri", "1.13.6-java") }, "https://rubygems.org/gems/nokogiri-1.13.6-java.gem"},
		{"download unversioned", func() string { return urls.Download("rails", "") }, ""},
		{"documentation", func() string { return urls.Documentation("rails", "7.1.0") }, "https://www.rubydoc.info/gems/rails/7.1.0"},
		{"purl", func() string { return urls.PURL("rails", "7.1.0") }, "pkg:gem/rails@7.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	reg, err := core.New("gem", "", nil)
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}
	if reg.Ecosystem() != "gem" {
		t.Errorf("expected ecosystem 'gem', got %q", reg.Ecosystem())
	}
	if got := core.DefaultURL("gem"); got != DefaultURL {
		t.Errorf("DefaultURL = %q", got)
	}
}
