package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"linkstash/internal/api"
	"linkstash/internal/bot"
	"linkstash/internal/config"
	"linkstash/internal/events"
	"linkstash/internal/imagecache"
	"linkstash/internal/pipeline"
	"linkstash/internal/scraper"
	"linkstash/internal/storage"
	"linkstash/internal/storage/sqlstore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.Level())

	log.WithFields(logrus.Fields{
		"store_driver":   cfg.StoreDriver,
		"image_cache":    cfg.ImageCache,
		"fetch_renderer": cfg.FetchRenderer,
		"fetch_window":   cfg.FetchWindow,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Database
	repo, err := openStore(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	// Image cache
	images, err := openImageCache(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize image cache: %v", err)
	}
	if closer, ok := images.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.WithError(err).Error("Error closing image cache")
			}
		}()
	}

	// Fetchers
	httpFetcher := scraper.NewHTTPFetcher(cfg.HTTPFetch(), log)
	var pages scraper.Fetcher = httpFetcher
	if cfg.FetchRenderer == config.RendererRod {
		rodScraper := scraper.NewRodScraper(cfg.FetchTimeout, log)
		defer func() {
			if err := rodScraper.Close(); err != nil {
				log.WithError(err).Error("Error closing rod browser")
			}
		}()
		pages = rodScraper
	}

	// Event bus and pipeline
	bus := events.NewBus(log)
	logEvents(bus, log)

	p, err := pipeline.New(pipeline.Deps{
		Store:         repo,
		Images:        images,
		Pages:         pages,
		ImagesFetcher: httpFetcher,
		Bus:           bus,
		Window:        cfg.FetchWindow,
		Logger:        log,
	})
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	// --- Application Startup ---
	log.Info("Starting linkstash...")

	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		server = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(api.NewHandler(p, repo, images, log)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.HTTPAddr).Info("HTTP API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server failed")
				stop()
			}
		}()
	}

	if cfg.TelegramBotToken != "" {
		botHandler, err := bot.NewHandler(cfg.TelegramBotToken, p, repo, log)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram bot handler: %v", err)
		}
		go botHandler.Start(ctx)
	}

	log.Info("linkstash is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down linkstash...")
	stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Error shutting down HTTP server")
		}
		cancel()
	}
	p.Close()

	// The deferred image cache and database Close calls run now.
	log.Info("linkstash shut down gracefully.")
}

func openStore(cfg config.Config, log *logrus.Logger) (storage.Repository, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		return sqlstore.Open(cfg.SQLitePath, log)
	}
	return storage.NewBadgerRepository(cfg.BadgerDBPath, log)
}

func openImageCache(cfg config.Config, log *logrus.Logger) (imagecache.Cache, error) {
	if cfg.ImageCache == config.ImageCacheS3 {
		return imagecache.NewS3(imagecache.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		}, log)
	}
	return imagecache.NewBadger(cfg.ImageCachePath, log)
}

// logEvents traces every entity event at debug level.
func logEvents(bus *events.Bus, log logrus.FieldLogger) {
	log = log.WithField("component", "events")
	for _, name := range events.Names {
		bus.Subscribe(name, func(e events.Event) {
			entry := log.WithField("event", e.Name)
			if e.Payload.Link != nil {
				entry = entry.WithField("link_id", e.Payload.Link.ID)
			}
			entry.Debug("Event published")
		})
	}
}
