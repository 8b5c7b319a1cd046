package server

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-mediaserver/internal/metrics"
	"github.com/m1k1o/go-mediaserver/internal/utils"
)

const metricsPath = "/metrics"

type ServerManagerCtx struct {
	logger  zerolog.Logger
	config  *Config
	router  *chi.Mux
	server  *http.Server
	metrics *metrics.Metrics
}

func New(config *Config, m *metrics.Metrics) *ServerManagerCtx {
	logger := log.With().Str("module", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID) // Create a request ID for each request

	// get real users ip
	if config.Proxy {
		router.Use(middleware.RealIP)
	}

	// add http logger
	router.Use(middleware.RequestLogger(&logformatter{logger}))

	// before Recoverer, so recovered panics are counted as errors
	if m != nil {
		router.Use(metrics.RequestMiddleware(m))
	}

	router.Use(middleware.Recoverer) // Recover from panics without crashing server

	// mount pprof endpoint
	if config.PProf {
		withPProf(router)
		logger.Info().Msgf("with pprof endpoint at %s", pprofPath)
	}

	// use custom 404
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 not found", http.StatusNotFound)
	})

	return &ServerManagerCtx{
		logger:  logger,
		config:  config,
		router:  router,
		metrics: m,
		server: &http.Server{
			Addr:              config.Bind,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          stdlog.New(utils.LogWriter(logger, zerolog.WarnLevel), "", 0),
		},
	}
}

// WithMetrics exposes the metrics registry, updateGauges runs on each scrape.
func (s *ServerManagerCtx) WithMetrics(updateGauges func()) {
	if s.metrics == nil {
		return
	}

	s.router.Method(http.MethodGet, metricsPath, s.metrics.Handler(updateGauges))
	s.logger.Info().Msgf("with metrics endpoint at %s", metricsPath)
}

// WithStatic serves client files for any route nobody else claimed.
// Must be called after all other routes are mounted.
func (s *ServerManagerCtx) WithStatic() {
	if s.config.Static == "" {
		return
	}

	root := s.config.Static
	fs := http.FileServer(http.Dir(root))
	s.router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		// unknown paths fall back to the index, like single page apps expect
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(r.URL.Path))); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(root, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})

	s.logger.Info().Str("dir", root).Msg("serving static files")
}

func (s *ServerManagerCtx) Start() {
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Warn().Msg("TLS support is provided for convenience, but you should never use it in production. Use a reverse proxy (apache nginx caddy) instead!")
		go func() {
			if err := s.server.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey); err != http.ErrServerClosed {
				s.logger.Panic().Err(err).Msg("unable to start https server")
			}
		}()
		s.logger.Info().Msgf("https listening on %s", s.server.Addr)
	} else {
		go func() {
			if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
				s.logger.Panic().Err(err).Msg("unable to start http server")
			}
		}()
		s.logger.Info().Msgf("http listening on %s", s.server.Addr)
	}
}

func (s *ServerManagerCtx) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *ServerManagerCtx) Mount(fn func(r chi.Router)) {
	fn(s.router)
}

func (s *ServerManagerCtx) Handler() http.Handler {
	return s.router
}
