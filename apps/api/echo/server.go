package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
)

type (
	ServerDeps struct {
		Conf    *core.Config
		Logger  core.Logger
		Storage core.Storage
		Cache   *offline.Service
		Queue   *queue.Queue
		Sender  queue.Sender // optional; actions are not replayed on sync when nil
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home(conf))
	s.app.GET("/health", health(s.deps.Storage, s.deps.Logger))

	v1 := s.app.Group("/v1")
	registerCacheAPI(v1, s.deps.Cache, s.deps.Logger)
	registerSyncAPI(v1, s.deps.Cache, s.deps.Queue, s.deps.Sender, s.deps.Logger)
	registerActionAPI(v1, s.deps.Queue)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" offline agent!")
	}
}

// health checks the storage backend when it can be pinged.
func health(store core.Storage, logger core.Logger) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if p, ok := store.(core.Pinger); ok {
			if err := p.Ping(ctx.Request().Context()); err != nil {
				logger.Error("storage ping failed", err)
				return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"storage": "unreachable"})
			}
		}
		return ctx.JSON(http.StatusOK, echo.Map{"storage": "ok"})
	}
}
