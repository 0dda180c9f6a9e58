package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"showtime-scraper/browser"
	"showtime-scraper/diagnostics"
	"showtime-scraper/directory"
	"showtime-scraper/models"
	"showtime-scraper/reconcile"
	"showtime-scraper/scraper"
	"showtime-scraper/storage"
	"showtime-scraper/taxonomy"
	"showtime-scraper/utils"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "showtimes", "Run mode: showtimes, prices, or reconcile")
	market := flag.String("market", utils.EnvOrDefault("MARKET", ""), "Market name in the theater directory")
	date := flag.String("date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "Schedule date (YYYY-MM-DD)")
	baseURL := flag.String("base-url", utils.EnvOrDefault("SITE_BASE_URL", ""), "Ticketing site base URL (reconcile mode)")
	directoryPath := flag.String("directory", utils.EnvOrDefault("THEATER_DIRECTORY", "theaters.json"), "Theater directory file")
	taxonomyPath := flag.String("taxonomy", utils.EnvOrDefault("TAXONOMY_FILE", ""), "Ticket taxonomy YAML (empty = built-in)")
	diagDir := flag.String("diagnostics", utils.EnvOrDefault("DIAGNOSTICS_DIR", "diagnostics"), "Diagnostics output directory (empty = disabled)")
	maxPages := flag.Int("max-pages", utils.EnvIntOrDefault("MAX_PAGES", 6), "Concurrent browser page cap")
	navTimeoutSec := flag.Int("nav-timeout-sec", utils.EnvIntOrDefault("NAV_TIMEOUT_SEC", 15), "Per-page navigation timeout (seconds)")
	rateLimit := flag.Float64("rate", utils.EnvFloatOrDefault("RATE_PER_SEC", 1.0), "Page-task starts per second")
	burst := flag.Int("burst", utils.EnvIntOrDefault("RATE_BURST", 2), "Rate-limit burst")
	headless := flag.Bool("headless", true, "Run browser in headless mode")
	output := flag.String("output", utils.EnvOrDefault("OUTPUT_FILE", "showtimes.csv"), "Output CSV file path")
	verbose := flag.Bool("verbose", false, "Debug logging")
	dbHost := flag.String("db-host", utils.EnvOrDefault("DB_HOST", ""), "PostgreSQL host (empty = CSV only)")
	dbPort := flag.Int("db-port", utils.EnvIntOrDefault("DB_PORT", 5432), "PostgreSQL port")
	dbUser := flag.String("db-user", utils.EnvOrDefault("DB_USER", "postgres"), "PostgreSQL user")
	dbPassword := flag.String("db-password", utils.EnvOrDefault("DB_PASSWORD", "postgres"), "PostgreSQL password")
	dbName := flag.String("db-name", utils.EnvOrDefault("DB_NAME", "showtime_scraper"), "PostgreSQL database name")
	dbSSLMode := flag.String("db-sslmode", utils.EnvOrDefault("DB_SSLMODE", "disable"), "PostgreSQL sslmode")
	flag.Parse()

	initSlog(*verbose)

	tax, err := loadTaxonomy(*taxonomyPath)
	if err != nil {
		fatal("load taxonomy", err)
	}
	dir, err := directory.Load(*directoryPath)
	if err != nil {
		fatal("load theater directory", err)
	}

	storeCfg := storage.Config{
		OutputFile: *output,
		DBHost:     *dbHost,
		DBPort:     *dbPort,
		DBUser:     *dbUser,
		DBPassword: *dbPassword,
		DBName:     *dbName,
		DBSSLMode:  *dbSSLMode,
	}

	ctx := context.Background()
	pool, err := browser.New(ctx, browser.Config{
		MaxPages:      *maxPages,
		NavTimeout:    time.Duration(*navTimeoutSec) * time.Second,
		RatePerSecond: *rateLimit,
		RateBurst:     *burst,
		Headless:      *headless,
	})
	if err != nil {
		fatal("start browser pool", err)
	}
	defer pool.Close()

	diag := diagnostics.NewSink(*diagDir)
	classifier := taxonomy.NewClassifier(tax, diag.LogFragment)
	showtimes := scraper.NewShowtimeHarvester(pool, tax, diag)
	prices := scraper.NewPriceHarvester(pool, classifier)
	agg := scraper.NewAggregator(showtimes, prices, pool.MaxPages())

	switch *mode {
	case "showtimes":
		err = runShowtimes(ctx, agg, dir, *directoryPath, *market, *date, storeCfg)
	case "prices":
		err = runPrices(ctx, agg, dir, *market, *date, storeCfg)
	case "reconcile":
		err = runReconcile(ctx, pool, tax, dir, *directoryPath, *baseURL, *date)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fatal(*mode, err)
	}
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(path)
}

func runShowtimes(ctx context.Context, agg *scraper.Aggregator, dir *directory.Directory, dirPath, market, date string, storeCfg storage.Config) error {
	theaters := dir.Theaters(market)
	if len(theaters) == 0 {
		return fmt.Errorf("no active theaters for market %q", market)
	}

	results := agg.HarvestShowtimes(ctx, theaters, date, logProgress("discover"))

	var all []models.Showing
	for _, t := range theaters {
		r := results[t.CanonicalName]
		if r.Err != nil {
			dir.RecordFailure(market, t.CanonicalName)
			continue
		}
		dir.RecordSuccess(market, t.CanonicalName)
		all = append(all, r.Showings...)
	}
	if err := dir.Save(dirPath); err != nil {
		slog.Warn("could not persist theater directory", "error", err)
	}

	printRunSummary(results)
	if len(all) == 0 {
		return fmt.Errorf("no showings discovered for market %q on %s", market, date)
	}
	return storage.SaveShowings(all, date, storeCfg)
}

func runPrices(ctx context.Context, agg *scraper.Aggregator, dir *directory.Directory, market, date string, storeCfg storage.Config) error {
	theaters := dir.Theaters(market)
	if len(theaters) == 0 {
		return fmt.Errorf("no active theaters for market %q", market)
	}

	results := agg.HarvestShowtimes(ctx, theaters, date, logProgress("discover"))
	printRunSummary(results)

	var all []models.TicketLineItem
	for _, t := range theaters {
		r := results[t.CanonicalName]
		if r.Err != nil || len(r.Showings) == 0 {
			continue
		}
		run := agg.HarvestPrices(ctx, t, r.Showings, logProgress("price"))
		fmt.Printf("%-40s attempted=%d collected=%d failed=%d\n",
			t.CanonicalName, run.Attempted, len(run.LineItems), len(run.Failed))
		for _, key := range run.Failed {
			fmt.Printf("  failed: %s\n", key)
		}
		all = append(all, run.LineItems...)
	}
	if len(all) == 0 {
		return fmt.Errorf("no ticket prices collected for market %q on %s", market, date)
	}
	return storage.SaveLineItems(all, date, storeCfg)
}

func runReconcile(ctx context.Context, pool *browser.Pool, tax *taxonomy.Taxonomy, dir *directory.Directory, dirPath, baseURL, date string) error {
	if baseURL == "" {
		return fmt.Errorf("reconcile mode requires -base-url")
	}
	searcher := reconcile.NewLiveSearcher(pool, baseURL)
	rec := reconcile.New(searcher, tax)

	matched, unmatched := 0, 0
	for market, byName := range dir.Markets {
		for name, theater := range byName {
			m, err := rec.Reconcile(ctx, theater, date)
			if err != nil {
				// NoMatch (and failed stages) leave the record for manual
				// review rather than dropping it.
				theater.Active = false
				dir.Markets[market][name] = theater
				unmatched++
				fmt.Printf("NO MATCH  %-40s market=%s\n", name, market)
				continue
			}
			theater.LiveName = m.Name
			theater.URL = m.URL
			theater.Active = true
			theater.FailCount = 0
			dir.Markets[market][name] = theater
			matched++
			fmt.Printf("MATCHED   %-40s -> %s (score %.1f)\n", name, m.Name, m.Score)
		}
	}
	fmt.Printf("reconciliation complete: matched=%d unmatched=%d\n", matched, unmatched)
	return dir.Save(dirPath)
}

func logProgress(unitKind string) scraper.Progress {
	return func(done, total int, unit string) {
		slog.Info("progress", "kind", unitKind, "done", done, "total", total, "last", unit)
	}
}

func printRunSummary(results map[string]scraper.TheaterResult) {
	total, ok := 0, 0
	for _, r := range results {
		total++
		if r.Err == nil {
			ok++
		}
	}
	fmt.Printf("showtime run: %d/%d theaters succeeded\n", ok, total)
	for _, name := range scraper.FailedTheaters(results) {
		fmt.Printf("  failed: %s (%v)\n", name, results[name].Err)
	}
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
