// Command scanonce runs one scanner tick and exits — useful for cron-less
// manual invocation and for exercising the scanner outside the daemon.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shinigamiapp/automirror/internal/clients/catalog"
	"github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/internal/events"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/internal/scanner"
	"github.com/shinigamiapp/automirror/pkg/config"
	"github.com/shinigamiapp/automirror/pkg/database"
)

func main() {
	seriesID := flag.String("series", "", "internal series id to scan; empty scans every due series")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	cfg := config.Load()

	db := database.MustOpen(database.Config{Path: cfg.DBPath})
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	repo := registry.NewRepo(db)
	hub := events.NewHub()
	pub := events.NewPublisher(hub, "", "")

	scraperClient := scraper.New(cfg.ScraperBaseURL, cfg.ScrapeTimeout)
	catalogClient := catalog.New(cfg.CatalogBaseURL, cfg.CatalogAPIKey, cfg.FetchTimeout)
	sc := scanner.New(repo, scraperClient, catalogClient, pub, cfg.MaxConcurrentScans)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *seriesID == "" {
		if err := sc.Tick(ctx); err != nil {
			log.Fatalf("scan tick failed: %v", err)
		}
		log.Println("[scanonce] tick complete")
		return
	}

	series, err := repo.Get(ctx, *seriesID)
	if err != nil {
		log.Fatalf("load series: %v", err)
	}
	if err := sc.Scan(ctx, *series); err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	log.Printf("[scanonce] scan complete for %s", series.ExternalID)
}
