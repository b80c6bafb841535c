// Command gatherer is the CLI entry point for the proxy discovery,
// validation and enrichment engine: it harvests candidates from configured
// sources, validates them against a judge endpoint, and reports pool state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"proxyward/internal/shared/config"
	"proxyward/internal/shared/logger"
	"proxyward/internal/shared/types"
	"proxyward/proxypool/judge"
	"proxyward/proxypool/manager"
	"proxyward/proxypool/model"
	"proxyward/proxypool/requestor"
	"proxyward/proxypool/scraper"
	"proxyward/proxypool/sleuth"
	"proxyward/proxypool/storage"
)

const (
	exitOK           = 0
	exitConfigError  = 1
	exitIOError      = 2
	exitNoAliveProxy = 3
)

func main() {
	configDir := flag.String("config", "configs", "path to config directory")
	concurrency := flag.Int("concurrency", 0, "override parallel_validations from config")
	timeoutSecs := flag.Int("timeout", 0, "override judge timeout_secs from config")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gatherer [--config dir] [--concurrency n] [--timeout secs] [--verbose] <gather|check <url>|enrich <url>|list|stats>")
		os.Exit(exitConfigError)
	}

	iniPath := filepath.Join(*configDir, "gatherer.ini")
	sourcesPath := filepath.Join(*configDir, "sources.json")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to load config file %q: %v\n", iniPath, err)
		os.Exit(exitConfigError)
	}
	if *verbose {
		cfg.LogConf.Level = "debug"
	}
	if *concurrency > 0 {
		cfg.ProxiesConf.ParallelValidations = *concurrency
	}
	if *timeoutSecs > 0 {
		cfg.JudgeConf.TimeoutSecs = *timeoutSecs
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to initialize logger: %v\n", err)
		os.Exit(exitConfigError)
	}

	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to load sources file %q", sourcesPath)
	}

	r := requestor.New()
	j := judge.New(r, cfg.JudgeConf.URLs, time.Duration(cfg.JudgeConf.TimeoutSecs)*time.Second)

	ctx := context.Background()
	if err := j.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to establish judge baseline")
	}

	s := sleuth.New(time.Duration(cfg.HTTPConf.TimeoutSecs) * time.Second)
	store := storage.NewFileStorage(cfg.StorageConf.ProxiesPath)
	m := manager.New(cfg, store, j, s)

	registerHarvesters(m, sources)

	if err := m.Load(); err != nil {
		logger.Error().Err(err).Msg("failed to load persisted pool, starting with an empty one")
	}

	code := run(ctx, m, args)
	os.Exit(code)
}

func registerHarvesters(m *manager.Manager, sources []*types.SourceProfile) {
	m.AddHarvester(scraper.NewKuaidailiScraper())
	m.AddHarvester(scraper.NewIP3366Scraper())
	m.AddHarvester(scraper.NewQiyunipScraper())
	m.AddHarvester(scraper.NewProxydbScraper())
	m.AddHarvester(scraper.NewProxyListDownloadScraper())

	forwardProxy := ""
	for _, src := range sources {
		if src.Name == "zdaye.com" {
			forwardProxy = src.ForwardProxyURL
			break
		}
	}
	m.AddHarvester(scraper.NewZdayeScraper(forwardProxy))
}

func run(ctx context.Context, m *manager.Manager, args []string) int {
	l := logger.WithComponent("cli")

	switch args[0] {
	case "gather":
		m.HarvestAndValidate(ctx)
		stats := m.Stats()
		fmt.Printf("harvested pool: total=%d alive=%d failing=%d dead=%d\n", stats.Total, stats.Alive, stats.Failing, stats.Dead)
		if stats.Alive == 0 {
			return exitNoAliveProxy
		}
		return exitOK

	case "check":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: gatherer check <proxy-url>")
			return exitConfigError
		}
		fp, err := model.ParseFingerprint(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid proxy url %q: %v\n", args[1], err)
			return exitConfigError
		}
		rec := m.Ingest(fp)
		if err := m.Check(ctx, rec.Key); err != nil {
			l.Error().Err(err).Msg("check failed")
			return exitIOError
		}
		got, _ := m.Get(rec.Key)
		fmt.Printf("%s state=%s anonymity=%s latency_ms=%d\n", got.Key, got.State, got.Anonymity, got.LatencyMs)
		if got.State != model.Alive {
			return exitNoAliveProxy
		}
		return exitOK

	case "enrich":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: gatherer enrich <proxy-url>")
			return exitConfigError
		}
		fp, err := model.ParseFingerprint(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid proxy url %q: %v\n", args[1], err)
			return exitConfigError
		}
		rec := m.Ingest(fp)
		if err := m.Enrich(ctx, rec.Key); err != nil {
			l.Error().Err(err).Msg("enrich failed")
			return exitIOError
		}
		if err := m.Save(); err != nil {
			l.Error().Err(err).Msg("failed to persist pool")
			return exitIOError
		}
		got, _ := m.Get(rec.Key)
		fmt.Printf("%s country=%s region=%s city=%s asn=%s org=%s\n",
			got.Key, got.Metadata.Country, got.Metadata.Region, got.Metadata.City, got.Metadata.ASN, got.Metadata.Organization)
		return exitOK

	case "list":
		for _, p := range m.List() {
			fmt.Printf("%s state=%s anonymity=%s latency_ms=%d success_rate=%.2f\n",
				p.Key, p.State, p.Anonymity, p.LatencyMs, p.SuccessRate())
		}
		return exitOK

	case "stats":
		stats := m.Stats()
		fmt.Printf("total=%d untested=%d alive=%d failing=%d dead=%d\n",
			stats.Total, stats.Untested, stats.Alive, stats.Failing, stats.Dead)
		for kind, count := range stats.ByKind {
			fmt.Printf("  kind %s: %d\n", kind, count)
		}
		for country, count := range stats.ByCountry {
			fmt.Printf("  country %s: %d\n", country, count)
		}
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return exitConfigError
	}
}
