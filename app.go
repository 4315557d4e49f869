package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/duration"
	"github.com/tilawa-app/tilawa/internal/fetch"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/quran"
	"github.com/tilawa-app/tilawa/internal/source"
	"github.com/tilawa-app/tilawa/internal/store"
)

// app wires the full stack for one CLI invocation: config, local stores, the
// optional remote timeline table, the duration resolver, and the offline
// download manager.
type app struct {
	cfg      config.Config
	kv       *store.PebbleStore
	blobs    *store.BlobCache
	remote   *store.RemoteTimelines
	client   *fetch.Client
	urls     *source.Resolver
	resolver *duration.Resolver
	metadata *quran.Client
	offline  *offline.Manager
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	kv, err := store.OpenPebble(filepath.Join(cfg.Storage.DataDir, "tilawa.db"))
	if err != nil {
		return nil, err
	}

	blobs, err := store.NewBlobCache(cfg.Storage.CacheDir, cfg.Storage.CompressionLevel)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		kv:    kv,
		blobs: blobs,
		urls:  source.NewResolver(cfg.Source.AudioBaseURL),
	}

	a.client = fetch.NewClient(blobs, cfg.Probe.RequestsPerSecond)
	a.metadata = quran.NewClient(cfg.Source.QuranAPIURL, a.client)

	// The shared timeline tier is optional; a dial failure downgrades to
	// local tiers rather than failing the command.
	var remoteTier duration.RemoteTier
	if rt, err := store.DialRemoteTimelines(ctx, cfg.Remote.DatabaseURL); err != nil {
		log.Warn("shared timeline table unreachable, using local tiers only", "error", err)
	} else if rt != nil {
		a.remote = rt
		remoteTier = rt
	}

	a.resolver = duration.NewResolver(kv, kv, remoteTier,
		duration.NewClipProber(a.client), a.urls, duration.Options{
			FallbackSeconds: cfg.Probe.FallbackSeconds,
			ProbeTimeout:    cfg.Probe.Timeout,
			BatchSize:       cfg.Probe.BatchSize,
		})

	a.offline = offline.NewManager(a.client, blobs, kv, a.resolver, a.urls,
		a.metadata.SurahURL, cfg.Probe.FallbackSeconds)

	return a, nil
}

func (a *app) close() {
	if a.remote != nil {
		a.remote.Close()
	}
	if err := a.blobs.Close(); err != nil {
		log.Warn("blob cache close failed", "error", err)
	}
	if err := a.kv.Close(); err != nil {
		log.Warn("store close failed", "error", err)
	}
}

// surahMeta fetches and validates the metadata for one surah argument.
func (a *app) surahMeta(ctx context.Context, number int) (quran.Surah, error) {
	meta, err := a.metadata.Surah(ctx, number)
	if err != nil {
		return quran.Surah{}, fmt.Errorf("load surah %d metadata: %w", number, err)
	}
	if meta.TotalAyah < 1 {
		return quran.Surah{}, fmt.Errorf("surah %d metadata reports no ayahs", number)
	}
	return meta, nil
}
