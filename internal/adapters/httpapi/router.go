package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/SamTV12345/PodFetch-sub001/internal/app"
	"github.com/SamTV12345/PodFetch-sub001/internal/domain"
	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

type Server struct {
	logger    zerolog.Logger
	downloads *app.DownloadManager
	sync      *app.SyncService
	settings  *app.SettingsService
	bus       ports.EventBus
	// downloadLimiter is optional and applies maxConcurrentDownloads at runtime.
	downloadLimiter *app.DynamicLimiter
	// onSettingsUpdated is optional (e.g. retune the auto-sync interval).
	onSettingsUpdated func(domain.Settings)
}

func NewServer(logger zerolog.Logger, downloads *app.DownloadManager, syncSvc *app.SyncService, settings *app.SettingsService, bus ports.EventBus, downloadLimiter *app.DynamicLimiter, onSettingsUpdated func(domain.Settings)) *Server {
	return &Server{
		logger:            logger,
		downloads:         downloads,
		sync:              syncSvc,
		settings:          settings,
		bus:               bus,
		downloadLimiter:   downloadLimiter,
		onSettingsUpdated: onSettingsUpdated,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Head("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/events", s.handleEvents)

		if s.downloads != nil {
			NewDownloadsHandler(s.downloads).Routes(r)
		}
		if s.sync != nil {
			NewSyncHandler(s.sync).Routes(r)
		}
		if s.settings != nil {
			NewSettingsHandler(s.settings, func(updated domain.Settings) {
				if s.downloadLimiter != nil && updated.MaxConcurrentDownloads > 0 {
					s.downloadLimiter.SetLimit(updated.MaxConcurrentDownloads)
				}
				if s.onSettingsUpdated != nil {
					s.onSettingsUpdated(updated)
				}
			}).Routes(r)
		}
	})

	return r
}
