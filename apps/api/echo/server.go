package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fieldkey"
	"github.com/trezcool/academia/core/marksheet"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/services/metrics"
)

// Deps are the services the API serves.
type Deps struct {
	dig.In

	Conf         *core.Config
	Logger       core.Logger
	Store        core.DocumentStore
	Validate     *validator.Validate
	Translator   ut.Translator
	Metrics      *metrics.Metrics
	FieldSvc     *fieldkey.Service
	MarksheetSvc *marksheet.Service
	RecordSvc    *record.Service
}

type Server struct {
	deps     Deps
	app      *echo.Echo
	shutdown chan os.Signal
	errors   chan error
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.deps.Metrics.Middleware())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)
	s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(jwtConfig(conf)), tenantMiddleware)
	registerFieldsAPI(v1, s.deps.FieldSvc, s.deps.Metrics)
	registerRecordsAPI(v1, s.deps.RecordSvc)
	registerMarksheetsAPI(v1, s.deps.MarksheetSvc, s.deps.Metrics)
}

// Start blocks serving requests. Listener failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	resp := HealthResponse{Status: "ok", Build: s.deps.Conf.Build}
	if err := s.deps.Store.Ping(ctx.Request().Context()); err != nil {
		s.deps.Logger.Warn("health check failed", err)
		resp.Status = "db unavailable"
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}
