package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/git-pkgs/gemindex/fetch"
	"github.com/git-pkgs/gemindex/internal/checksum"
	"github.com/git-pkgs/gemindex/internal/core"
	"github.com/git-pkgs/gemindex/internal/gemfile"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/rubygems"
	"github.com/git-pkgs/gemindex/internal/service"
)

var t0 = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

type upstreamGem struct {
	name, number, platform string
	prerelease             bool
	sha                    string   // overrides the real digest when set
	deps                   []string // runtime dependencies packed in the archive
	listed                 []string // runtime dependencies the API reports
	serveDeps              bool     // whether the dependency API answers
}

// newUpstream serves the versions API and archives for gems.
func newUpstream(t *testing.T, gems ...upstreamGem) *httptest.Server {
	t.Helper()

	type version struct {
		Number     string `json:"number"`
		Platform   string `json:"platform"`
		SHA        string `json:"sha"`
		Prerelease bool   `json:"prerelease"`
	}
	type dep struct {
		Name         string `json:"name"`
		Requirements string `json:"requirements"`
	}
	type depsResponse struct {
		Dependencies struct {
			Runtime     []dep `json:"runtime"`
			Development []dep `json:"development"`
		} `json:"dependencies"`
	}
	versions := map[string][]version{}
	archives := map[string][]byte{}
	depsAPI := map[string]depsResponse{}

	for _, g := range gems {
		var specDeps []core.Dependency
		for _, name := range g.deps {
			specDeps = append(specDeps, core.Dependency{Name: name, Requirements: ">= 0", Scope: core.Runtime})
		}
		b, err := gemfile.Build(&gemfile.Spec{
			Name:                 g.name,
			Version:              g.number,
			Platform:             g.platform,
			Summary:              "mirrored",
			Authors:              []string{"upstream"},
			Date:                 time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC),
			Dependencies:         specDeps,
			RubygemsVersion:      "3.5.11",
			SpecificationVersion: 4,
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		platform := gemfile.NormalizePlatform(g.platform)
		if g.serveDeps {
			var resp depsResponse
			for _, name := range g.listed {
				resp.Dependencies.Runtime = append(resp.Dependencies.Runtime, dep{Name: name, Requirements: ">= 0"})
			}
			resp.Dependencies.Development = []dep{{Name: "rake", Requirements: "~> 13.0"}}
			depsAPI["/api/v2/rubygems/"+g.name+"/versions/"+g.number+".json?platform="+platform] = resp
		}
		sha := g.sha
		if sha == "" {
			sha = checksum.Strong(b)
		}
		versions[g.name] = append(versions[g.name], version{g.number, platform, sha, g.prerelease})
		archives["/gems/"+gemfile.FullName(g.name, g.number, g.platform)+".gem"] = b
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, ok := strings.CutPrefix(r.URL.Path, "/api/v1/versions/"); ok {
			vs, found := versions[strings.TrimSuffix(name, ".json")]
			if !found {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(vs)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/v2/rubygems/") {
			platform := r.URL.Query().Get("platform")
			if platform == "" {
				platform = "ruby"
			}
			resp, found := depsAPI[r.URL.Path+"?platform="+platform]
			if !found {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		if b, ok := archives[r.URL.Path]; ok {
			_, _ = w.Write(b)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func newMirror(t *testing.T, upstream *httptest.Server) (*Mirror, *service.Service) {
	t.Helper()
	svc := service.New(index.NewStore(nil), t0, nil)
	reg := rubygems.New(upstream.URL, core.NewClient(core.WithMaxRetries(0)))
	fetcher := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0), fetch.WithBaseDelay(0), fetch.WithMaxBytes(1<<20)))
	return New(Config{Registry: reg, Fetcher: fetcher, Publisher: svc, Concurrency: 2}), svc
}

func TestSyncVersion(t *testing.T) {
	upstream := newUpstream(t,
		upstreamGem{name: "rack", number: "2.2.8"},
		upstreamGem{name: "rack", number: "3.0.0"},
	)
	m, svc := newMirror(t, upstream)

	res, err := m.Sync(context.Background(), "rack", "2.2.8")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.FullName != "rack-2.2.8" || res.Skipped {
		t.Errorf("result = %+v", res)
	}
	if res.PURL != "pkg:gem/rack@2.2.8" {
		t.Errorf("PURL = %q", res.PURL)
	}
	if !svc.Has("rack-2.2.8") {
		t.Error("mirrored gem not indexed")
	}
	if svc.Has("rack-3.0.0") {
		t.Error("unrequested version indexed")
	}
}

func TestSyncLatest(t *testing.T) {
	upstream := newUpstream(t,
		upstreamGem{name: "nokogiri", number: "1.9.0"},
		upstreamGem{name: "nokogiri", number: "1.10.0"},
		upstreamGem{name: "nokogiri", number: "1.11.0", platform: "java"},
		upstreamGem{name: "nokogiri", number: "2.0.0.rc1", prerelease: true},
	)
	m, svc := newMirror(t, upstream)

	res, err := m.Sync(context.Background(), "nokogiri", "")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.FullName != "nokogiri-1.10.0" {
		t.Errorf("FullName = %q, want nokogiri-1.10.0", res.FullName)
	}
	if !svc.Has("nokogiri-1.10.0") {
		t.Error("latest not indexed")
	}
}

func TestSyncPlatform(t *testing.T) {
	upstream := newUpstream(t, upstreamGem{name: "nokogiri", number: "1.13.6", platform: "java"})
	m, svc := newMirror(t, upstream)

	ref, err := ParseRef("pkg:gem/nokogiri@1.13.6?platform=java")
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Sync(context.Background(), ref.Name, ref.Version)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.PURL != "pkg:gem/nokogiri@1.13.6?platform=java" {
		t.Errorf("PURL = %q", res.PURL)
	}
	if !svc.Has("nokogiri-1.13.6-java") {
		t.Error("platform gem not indexed")
	}
}

func TestSyncSkipsIndexed(t *testing.T) {
	upstream := newUpstream(t, upstreamGem{name: "rack", number: "3.0.0"})
	m, svc := newMirror(t, upstream)

	if _, err := m.Sync(context.Background(), "rack", "3.0.0"); err != nil {
		t.Fatal(err)
	}
	res, err := m.Sync(context.Background(), "rack", "3.0.0")
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if !res.Skipped {
		t.Error("second sync should be skipped")
	}
	if got := svc.Stats().Records; got != 1 {
		t.Errorf("Records = %d, want 1", got)
	}
}

func TestSyncIntegrityMismatch(t *testing.T) {
	upstream := newUpstream(t, upstreamGem{name: "rack", number: "3.0.0", sha: strings.Repeat("0", 64)})
	m, svc := newMirror(t, upstream)

	_, err := m.Sync(context.Background(), "rack", "3.0.0")
	var ie *fetch.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if svc.Has("rack-3.0.0") {
		t.Error("corrupt archive was indexed")
	}
}

func TestSyncDependencies(t *testing.T) {
	upstream := newUpstream(t,
		upstreamGem{name: "rails", number: "7.1.0", deps: []string{"rack", "activesupport"}, listed: []string{"activesupport", "rack"}, serveDeps: true},
		upstreamGem{name: "nokogiri", number: "1.13.6", platform: "java", deps: []string{"racc"}, listed: []string{"racc"}, serveDeps: true},
		upstreamGem{name: "evil", number: "1.0.0", deps: []string{"backdoor"}, listed: []string{"json"}, serveDeps: true},
		upstreamGem{name: "legacy", number: "0.1.0", deps: []string{"json"}},
	)
	m, svc := newMirror(t, upstream)

	for _, ref := range []Ref{{"rails", "7.1.0"}, {"nokogiri", "1.13.6-java"}, {"legacy", "0.1.0"}} {
		if _, err := m.Sync(context.Background(), ref.Name, ref.Version); err != nil {
			t.Errorf("Sync(%s) failed: %v", ref, err)
		}
	}

	_, err := m.Sync(context.Background(), "evil", "1.0.0")
	var dm *DependencyMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DependencyMismatchError, got %v", err)
	}
	if len(dm.Missing) != 1 || dm.Missing[0] != "json" || len(dm.Extra) != 1 || dm.Extra[0] != "backdoor" {
		t.Errorf("mismatch = %+v", dm)
	}
	if svc.Has("evil-1.0.0") {
		t.Error("gem with mismatched dependencies was indexed")
	}
}

func TestSyncTooLarge(t *testing.T) {
	upstream := newUpstream(t, upstreamGem{name: "rack", number: "3.0.0"})
	svc := service.New(index.NewStore(nil), t0, nil)
	reg := rubygems.New(upstream.URL, core.NewClient(core.WithMaxRetries(0)))
	m := New(Config{
		Registry:  reg,
		Fetcher:   fetch.NewFetcher(fetch.WithMaxRetries(0), fetch.WithMaxBytes(64)),
		Publisher: svc,
	})

	_, err := m.Sync(context.Background(), "rack", "3.0.0")
	if !errors.Is(err, fetch.ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	if svc.Has("rack-3.0.0") {
		t.Error("oversized archive was indexed")
	}
}

func TestSeedListsImportsInVersions(t *testing.T) {
	upstream := newUpstream(t,
		upstreamGem{name: "rack", number: "3.0.0"},
		upstreamGem{name: "rake", number: "13.0.6"},
	)
	svc := service.New(index.NewStore(nil), index.Epoch, nil)
	reg := rubygems.New(upstream.URL, core.NewClient(core.WithMaxRetries(0)))
	m := New(Config{Registry: reg, Fetcher: fetch.NewFetcher(fetch.WithMaxRetries(0)), Publisher: svc})

	results, err := m.Seed(context.Background(), []Ref{{Name: "rack"}, {Name: "rake", Version: "13.0.6"}})
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}

	versions, err := svc.Versions()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"\nrack 3.0.0 ", "\nrake 13.0.6 "} {
		if !strings.Contains(string(versions), want) {
			t.Errorf("versions missing %q:\n%s", want, versions)
		}
	}
	if got := strings.Count(string(versions), "rack 3.0.0 "); got != 1 {
		t.Errorf("rack listed %d times, want 1", got)
	}
	if names := string(svc.Names()); names != "---\nrack\nrake\n" {
		t.Errorf("names = %q", names)
	}

	// Nothing new to import leaves the versions document alone.
	if _, err := m.Seed(context.Background(), []Ref{{Name: "rack"}}); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}
	again, _ := svc.Versions()
	if string(again) != string(versions) {
		t.Errorf("versions changed on a no-op seed:\n%s", again)
	}
}

func TestSyncNotFound(t *testing.T) {
	upstream := newUpstream(t, upstreamGem{name: "rack", number: "3.0.0"})
	m, _ := newMirror(t, upstream)

	tests := []struct {
		name, version string
	}{
		{"missing", ""},
		{"missing", "1.0.0"},
		{"rack", "9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"@"+tt.version, func(t *testing.T) {
			_, err := m.Sync(context.Background(), tt.name, tt.version)
			if !errors.Is(err, core.ErrNotFound) && !errors.Is(err, fetch.ErrNotFound) {
				t.Errorf("err = %v, want a not found error", err)
			}
		})
	}
}

func TestSyncAll(t *testing.T) {
	upstream := newUpstream(t,
		upstreamGem{name: "a", number: "1.0.0"},
		upstreamGem{name: "b", number: "2.0.0"},
		upstreamGem{name: "c", number: "0.1.0"},
	)
	m, svc := newMirror(t, upstream)

	refs := []Ref{{Name: "a"}, {Name: "b", Version: "2.0.0"}, {Name: "c"}}
	results, err := m.SyncAll(context.Background(), refs)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != len(refs) {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []string{"a-1.0.0", "b-2.0.0", "c-0.1.0"} {
		if results[i].FullName != want {
			t.Errorf("results[%d] = %q, want %q", i, results[i].FullName, want)
		}
		if !svc.Has(want) {
			t.Errorf("%s not indexed", want)
		}
	}

	_, err = m.SyncAll(context.Background(), []Ref{{Name: "a"}, {Name: "missing"}})
	if err == nil || !strings.Contains(err.Error(), "mirroring missing") {
		t.Errorf("SyncAll error = %v", err)
	}
}

func TestRefString(t *testing.T) {
	if got := (Ref{Name: "rack"}).String(); got != "rack" {
		t.Errorf("String() = %q", got)
	}
	if got := (Ref{Name: "rack", Version: "3.0.0"}).String(); got != "rack@3.0.0" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		input   string
		want    Ref
		wantErr bool
	}{
		{"rack", Ref{Name: "rack"}, false},
		{"rack@3.0.0", Ref{Name: "rack", Version: "3.0.0"}, false},
		{"nokogiri@1.13.6-java", Ref{Name: "nokogiri", Version: "1.13.6-java"}, false},
		{"pkg:gem/rails@7.1.0", Ref{Name: "rails", Version: "7.1.0"}, false},
		{"pkg:gem/nokogiri@1.13.6?platform=x86_64-linux", Ref{Name: "nokogiri", Version: "1.13.6-x86_64-linux"}, false},
		{"pkg:gem/rails@7.1.0?repository_url=https://rubygems.org", Ref{Name: "rails", Version: "7.1.0"}, false},
		{"pkg:gem/rails@7.1.0?repository_url=https://gems.example.com", Ref{}, true},
		{"pkg:npm/lodash@4.17.21", Ref{}, true},
		{"@1.0.0", Ref{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
