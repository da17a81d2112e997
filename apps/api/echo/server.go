package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/backup"
	"github.com/trezcool/calisma/core/dualstore"
	"github.com/trezcool/calisma/core/evaluation"
	"github.com/trezcool/calisma/core/group"
	"github.com/trezcool/calisma/core/legacydoc"
	"github.com/trezcool/calisma/core/student"
	"github.com/trezcool/calisma/core/study"
)

type (
	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		Students    *student.Service
		Studies     *study.Service
		Evaluations *evaluation.Service
		Groups      *group.Service
		Documents   *legacydoc.Documents
		Store       *dualstore.Store
		Backup      *backup.Codec
		Validate    *validator.Validate
		Translator  ut.Translator
	}

	Server struct {
		app      *echo.Echo
		address  string
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		address:  deps.Conf.Server.Host,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	s.app.HideBanner = true
	s.app.Debug = deps.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !deps.Conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(deps.Conf.Debug || deps.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.SignalShutdown)

	s.app.GET("/", home)

	registerDocumentAPI(s.app, deps)
	registerStudyAPI(s.app, deps)
	registerEvaluationAPI(s.app, deps)
	registerStudentAPI(s.app, deps)
	registerBackupAPI(s.app, deps)
}

// Start listens until the server is shut down. Listener failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to stop gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Sunucu çalışıyor ✅")
}
