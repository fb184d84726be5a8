package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	apimw "github.com/tunedrift/tunedrift/internal/api/middleware"
	"github.com/tunedrift/tunedrift/internal/bridge"
	"github.com/tunedrift/tunedrift/internal/catalog"
	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/coverart"
	"github.com/tunedrift/tunedrift/internal/forensics"
	"github.com/tunedrift/tunedrift/internal/ingest"
	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/lyrics"
	"github.com/tunedrift/tunedrift/internal/mediainfo"
	"github.com/tunedrift/tunedrift/internal/musicbrainz"
	"github.com/tunedrift/tunedrift/internal/network"
	"github.com/tunedrift/tunedrift/internal/network/mock"
	"github.com/tunedrift/tunedrift/internal/network/slskd"
	"github.com/tunedrift/tunedrift/internal/progress"
	"github.com/tunedrift/tunedrift/internal/romanize"
	"github.com/tunedrift/tunedrift/internal/scheduler"
	"github.com/tunedrift/tunedrift/internal/scheduler/tasks"
	"github.com/tunedrift/tunedrift/internal/search"
	"github.com/tunedrift/tunedrift/internal/startup"
	"github.com/tunedrift/tunedrift/internal/transfers"
	"github.com/tunedrift/tunedrift/internal/watcher"
	"github.com/tunedrift/tunedrift/internal/websocket"
)

// Server handles HTTP requests for the TuneDrift API and owns the
// background components behind it.
type Server struct {
	echo      *echo.Echo
	db        *sql.DB
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	logs      LogsProvider
	startTime time.Time

	// Services
	client         network.Client
	bridge         *bridge.Bridge
	registry       *search.Registry
	sockets        *websocket.SearchSockets
	tracker        *transfers.Tracker
	store          *library.Store
	pipeline       *ingest.Pipeline
	syncer         *library.Syncer
	watcherService *watcher.Service
	scheduler      *scheduler.Scheduler
	shareRescan    *tasks.ShareRescan
	catalog        *catalog.Service
	romanizer      *romanize.Romanizer
	activities     *progress.Manager
}

// NewServer creates a new API server instance. hub may be nil.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		db:        db,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		startTime: time.Now(),
	}

	sched, err := scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	s.scheduler = sched

	s.client = newNetworkClient(cfg.Network, logger)
	s.shareRescan = tasks.NewShareRescan(sched, s.client, logger)

	// The bridge is the login gate for searches and downloads, but it also
	// needs the registry and tracker as sinks; the gate is resolved lazily.
	gate := &bridgeGate{}
	s.registry = search.NewRegistry(s.client, gate, cfg.Search.GraceWindow, logger)
	s.tracker = transfers.NewTracker(s.client, gate, s.shareRescan, transfers.NewHintStore(), cfg.Library.Root, logger)
	s.bridge = bridge.New(s.client, s.registry, s.tracker, cfg.Network.PollInterval, logger)
	gate.bridge = s.bridge

	s.sockets = websocket.NewSearchSockets(s.registry, logger)
	s.registry.OnStopped(s.sockets.Forget)

	// One client so every MusicBrainz caller shares the rate limit.
	mb := musicbrainz.NewClient(cfg.Metadata, logger)

	fs := afero.NewOsFs()
	s.store = library.NewStore(db, logger)
	s.pipeline = s.newPipeline(fs, mb)
	s.syncer = library.NewSyncer(s.store, fs, cfg.Library.Root, s.pipeline, cfg.Library.SyncWorkers, logger)

	if hub != nil {
		s.tracker.SetBroadcaster(hub)
		s.pipeline.SetBroadcaster(hub)
		s.activities = progress.NewManager(hub, logger)
	} else {
		s.activities = progress.NewManager(nil, logger)
	}
	s.syncer.SetProgress(s.activities)
	s.shareRescan.SetProgress(s.activities)

	if cfg.Library.Watch {
		watcherSvc, err := watcher.NewService(cfg.Library.Root, s.pipeline, 0, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize watcher service")
		} else {
			s.watcherService = watcherSvc
		}
	}

	s.catalog = catalog.NewService(logger,
		catalog.NewAppleMusic(cfg.Metadata, logger),
		catalog.NewMusicBrainz(mb, cfg.Metadata, logger),
	)

	if err := s.registerTasks(); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// newPipeline builds the ingestion pipeline with its enrichment collaborators.
func (s *Server) newPipeline(fs afero.Fs, mb *musicbrainz.Client) *ingest.Pipeline {
	cfg := s.cfg
	pipeline := ingest.NewPipeline(s.store, fs, cfg.Library.Root, s.logger)
	pipeline.SetHints(s.tracker.Hints())

	probeCfg := mediainfo.DefaultConfig()
	probeCfg.FFprobePath = cfg.Probe.FFprobePath
	probeCfg.MediaInfoPath = cfg.Probe.MediaInfoPath
	pipeline.SetProber(mediainfo.NewService(probeCfg, &s.logger))

	s.romanizer = romanize.New()
	pipeline.SetRomanizer(s.romanizer)

	if analyzer := forensics.NewAnalyzer(cfg.Forensics, s.logger); analyzer.IsAvailable() {
		pipeline.SetAnalyzer(analyzer)
	}

	if cfg.Metadata.DisableEnrichment {
		pipeline.SetCovers(coverart.NewService(cfg.Metadata, fs, cfg.Library.CoversDir, nil, s.logger), nil)
		return pipeline
	}

	covers := coverart.NewService(cfg.Metadata, fs, cfg.Library.CoversDir, mb, s.logger)
	pipeline.SetRecordingFinder(mb)
	pipeline.SetCovers(covers, covers)
	pipeline.SetLyrics(lyrics.NewClient(cfg.Metadata, s.logger))
	return pipeline
}

func (s *Server) registerTasks() error {
	if err := tasks.RegisterLibrarySyncTask(s.scheduler, s.syncer, s.cfg.Library.SyncInterval, s.logger); err != nil {
		return err
	}
	if err := tasks.RegisterSearchPushTask(s.scheduler, s.sockets, s.cfg.Search.PushInterval); err != nil {
		return err
	}
	return tasks.RegisterSearchPruneTask(s.scheduler, s.registry, s.cfg.Search.SessionTTL, s.logger)
}

func newNetworkClient(cfg config.NetworkConfig, logger zerolog.Logger) network.Client {
	if cfg.Mode == "mock" {
		return mock.New("tunedrift")
	}
	return slskd.New(slskd.Config{
		URL:          cfg.URL,
		APIKey:       cfg.APIKey,
		PollInterval: cfg.SyncInterval,
		Timeout:      cfg.Timeout,
	}, logger)
}

// bridgeGate reports the bridge's login state once the bridge exists.
type bridgeGate struct {
	bridge *bridge.Bridge
}

func (g *bridgeGate) LoggedIn() bool {
	return g.bridge != nil && g.bridge.LoggedIn()
}

func (g *bridgeGate) Username() string {
	if g.bridge == nil {
		return ""
	}
	return g.bridge.Username()
}

// SetLogsProvider exposes recent logs at /api/v1/system/logs.
func (s *Server) SetLogsProvider(p LogsProvider) {
	s.logs = p
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(apimw.Metrics())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("requestId", v.RequestID).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// Run starts the background components: the event bridge, the scheduler,
// the file watcher and the network connection. Once the first login
// succeeds the library is reconciled with the disk. Run returns immediately.
func (s *Server) Run(ctx context.Context) error {
	go s.bridge.Run(ctx)

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if s.watcherService != nil {
		if err := s.watcherService.Start(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to start watcher service")
		}
	}

	go func() {
		err := startup.WithRetry(ctx, "network connect", startup.DefaultRetryConfig(), s.client.Connect, s.logger)
		if err != nil {
			s.logger.Error().Err(err).Msg("Could not connect to the peer network")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-s.bridge.FirstLogin():
		}
		if err := s.scheduler.RunNow(tasks.LibrarySyncTaskID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to start initial library sync")
		}
	}()

	return nil
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server and its background components.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.watcherService != nil {
		if err := s.watcherService.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop watcher service")
		}
	}
	if err := s.scheduler.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop scheduler")
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close network client")
	}

	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Syncer returns the library syncer, for one-off syncs from the CLI.
func (s *Server) Syncer() *library.Syncer {
	return s.syncer
}
