// Command gemindex serves a RubyGems index.
//
//	gemindex serve [name[@version] | pkg:gem/name@version ...]
//
// Gems named on the command line are mirrored from GEMINDEX_UPSTREAM_URL
// before the server starts accepting requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/git-pkgs/gemindex/fetch"
	"github.com/git-pkgs/gemindex/internal/config"
	"github.com/git-pkgs/gemindex/internal/core"
	"github.com/git-pkgs/gemindex/internal/index"
	"github.com/git-pkgs/gemindex/internal/logger"
	"github.com/git-pkgs/gemindex/internal/mirror"
	"github.com/git-pkgs/gemindex/internal/server"
	"github.com/git-pkgs/gemindex/internal/service"

	_ "github.com/git-pkgs/gemindex/internal/rubygems"
)

const (
	usage     = "usage: gemindex serve [name[@version] | pkg:gem/name@version ...]"
	userAgent = "gemindex/1.0"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log, os.Args[2:]); err != nil {
		log.Error("gemindex stopped", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger, args []string) error {
	refs := make([]mirror.Ref, 0, len(args))
	for _, arg := range args {
		ref, err := mirror.ParseRef(arg)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	var feed index.FeedStore
	if cfg.FeedPath != "" {
		feed = index.NewFileFeedStore(cfg.FeedPath)
		log.Info("versions document on disk", "path", cfg.FeedPath)
	}
	svc := service.New(index.NewStore(feed), cfg.StartTime, log.With("component", "service"))

	breakers := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
		fetch.WithMaxBytes(cfg.MaxUploadBytes),
		fetch.WithUserAgent(userAgent),
	))
	if len(refs) > 0 {
		api := core.NewClient(core.WithTimeout(30 * time.Second)).WithUserAgent(userAgent)
		upstream, err := core.New("gem", cfg.UpstreamURL, api)
		if err != nil {
			return err
		}
		m := mirror.New(mirror.Config{
			Registry:    upstream,
			Fetcher:     breakers,
			Publisher:   svc,
			Log:         log.With("component", "mirror"),
			Concurrency: cfg.MirrorConcurrency,
		})
		log.Info("mirroring", "upstream", cfg.UpstreamURL, "gems", len(refs))
		results, err := m.Seed(ctx, refs)
		if err != nil {
			return err
		}
		for _, r := range results {
			log.Info("mirror result", "gem", r.FullName, "skipped", r.Skipped)
		}
	}

	srv := server.NewServer(server.RouterConfig{
		Service:        svc,
		Log:            log.With("component", "http"),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Breakers:       breakers,
	})
	log.Info("listening", "addr", cfg.Addr, "clock", svc.Now())
	return srv.Run(ctx, cfg.Addr)
}
