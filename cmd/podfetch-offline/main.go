package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/httpapi"
	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/memorybus"
	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/netcheck"
	"github.com/SamTV12345/PodFetch-sub001/internal/adapters/sqlite"
	"github.com/SamTV12345/PodFetch-sub001/internal/app"
	"github.com/SamTV12345/PodFetch-sub001/internal/buildinfo"
	"github.com/SamTV12345/PodFetch-sub001/internal/config"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
)

func main() {
	def := config.Default()
	addr := flag.String("addr", def.Addr, "listen address (e.g. 127.0.0.1:8912)")
	dbPath := flag.String("db", def.DBPath, "SQLite path (e.g. podfetch-offline.db)")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "podfetch-offline").Logger()
	log.Logger = logger

	logger.Info().Interface("build", buildinfo.Current()).Str("db", *dbPath).Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	bus := memorybus.New()
	progressRepo := sqlite.NewProgressRepository(db.SQL)
	downloadsRepo := sqlite.NewDownloadsRepository(db.SQL)
	queueRepo := sqlite.NewQueueRepository(db.SQL)
	settingsRepo := sqlite.NewSettingsRepository(db.SQL)
	settingsSvc := app.NewSettingsService(settingsRepo)

	settings, err := settingsSvc.Get(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load settings")
	}

	// Shared ceiling for concurrent transfers, adjustable via the
	// settings API.
	downloadLimiter := app.NewDynamicLimiter(settings.MaxConcurrentDownloads)

	downloads := app.NewDownloadManager(logger.With().Str("component", "downloads").Logger(), downloadsRepo, bus, app.DownloadManagerOptions{
		Limiter: downloadLimiter,
		DestinationFunc: func(ctx context.Context) (string, error) {
			s, err := settingsSvc.Get(ctx)
			if err != nil {
				return "", err
			}
			return s.DownloadDir, nil
		},
		CredentialsFunc: settingsSvc.Credentials,
	})

	reach := netcheck.New(func(ctx context.Context) string {
		creds, err := settingsSvc.Credentials(ctx)
		if err != nil {
			return ""
		}
		return creds.BaseURL
	})

	syncSvc := app.NewSyncService(logger.With().Str("component", "sync").Logger(),
		progressRepo, queueRepo, reach, settingsSvc.Credentials, bus)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncSvc.StartAutoSync(shutdownCtx, time.Duration(settings.SyncIntervalSec)*time.Second)
	defer syncSvc.StopAutoSync()

	srv := httpapi.NewServer(logger, downloads, syncSvc, settingsSvc, bus, downloadLimiter, func(updated domain.Settings) {
		syncSvc.StartAutoSync(shutdownCtx, time.Duration(updated.SyncIntervalSec)*time.Second)
	})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
