// Command syncd is the primary daemon: it runs the admin API, the realtime
// event relay, and the scanner/processor tickers, and recovers stale tasks
// once at boot.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shinigamiapp/automirror/internal/api"
	"github.com/shinigamiapp/automirror/internal/clients/cache"
	"github.com/shinigamiapp/automirror/internal/clients/catalog"
	"github.com/shinigamiapp/automirror/internal/clients/notify"
	"github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/internal/clients/stager"
	"github.com/shinigamiapp/automirror/internal/clients/uploader"
	"github.com/shinigamiapp/automirror/internal/events"
	"github.com/shinigamiapp/automirror/internal/processor"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/internal/scanner"
	"github.com/shinigamiapp/automirror/internal/scheduler"
	"github.com/shinigamiapp/automirror/pkg/config"
	"github.com/shinigamiapp/automirror/pkg/database"
)

func main() {
	cfg := config.Load()

	dbCfg := database.Config{Path: cfg.DBPath}
	db := database.MustOpen(dbCfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	repo := registry.NewRepo(db)
	if err := repo.RecoverStaleTasks(context.Background()); err != nil {
		log.Fatalf("stale task recovery failed: %v", err)
	}

	hub := events.NewHub()
	publisher := events.NewPublisher(hub, cfg.EventBusBaseURL, cfg.EventBusKey)
	tokens := events.TokenService{Secret: []byte(cfg.EventTokenSecret), Issuer: "automirror", Duration: time.Hour}

	scraperClient := scraper.New(cfg.ScraperBaseURL, cfg.ScrapeTimeout)
	stagerClient := stager.New(cfg.StagerBaseURL, cfg.UploadTimeout)
	uploaderClient := uploader.New(cfg.UploaderBaseURL, cfg.UploaderAPIKey, cfg.UploadTimeout)
	catalogClient := catalog.New(cfg.CatalogBaseURL, cfg.CatalogAPIKey, cfg.FetchTimeout)
	cacheClient := cache.New(cfg.CachePurgeBaseURL, cfg.CachePurgeAPIKey)
	notifyClient := notify.New(cfg.NotifyBaseURL, cfg.NotifyChannelKey, cfg.NotifyAfterFailures, cfg.NotificationCooldown)
	invalidator := events.NewInvalidator(cacheClient)

	sc := scanner.New(repo, scraperClient, catalogClient, publisher, cfg.MaxConcurrentScans)
	proc := processor.New(repo, scraperClient, stagerClient, uploaderClient, catalogClient, publisher, invalidator, notifyClient, cfg.MaxConcurrentSyncs)
	proc.DefaultThumbnailURL = cfg.DefaultThumbnailURL

	invalidatingProc := &flushingProcessor{Processor: proc, invalidator: invalidator}

	sched := scheduler.New(sc, cfg.ScannerInterval, invalidatingProc, cfg.ProcessorInterval)

	h := api.NewHandler(repo, sc, db)
	router := api.NewRouter(h, hub, tokens, cfg.AdminAPIKey)

	httpSrv := &http.Server{Addr: cfg.Host + ":" + cfg.Port, Handler: router}
	tcpSrv := events.NewServer(":7070", hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[syncd] admin api listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[syncd] shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("[syncd] server error: %v", err)
	}

	log.Println("[syncd] shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[syncd] http shutdown error: %v", err)
	}
	if err := tcpSrv.Close(); err != nil {
		log.Printf("[syncd] tcp shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("[syncd] stopped")
}

// flushingProcessor wraps the processor's Tick with a cache-invalidation
// flush, so tags queued while draining tasks are purged once per tick
// rather than once per chapter.
type flushingProcessor struct {
	*processor.Processor
	invalidator *events.Invalidator
}

func (f *flushingProcessor) Tick(ctx context.Context) error {
	err := f.Processor.Tick(ctx)
	if flushErr := f.invalidator.Flush(ctx); flushErr != nil {
		log.Printf("[syncd] cache invalidation flush failed: %v", flushErr)
	}
	return err
}
