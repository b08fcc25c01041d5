package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/auth"
	"github.com/marmos91/dittosmb/pkg/controlplane/api/handlers"
	apiMiddleware "github.com/marmos91/dittosmb/pkg/controlplane/api/middleware"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// NewRouter builds the management API:
//
//	GET  /health               liveness
//	GET  /health/ready         readiness, pings the credential store
//	GET  /metrics              Prometheus exposition, metrics enabled only
//	POST /api/v1/auth/login    bearer token, JWT secret set only
//	GET  /api/v1/auth/me       account behind the token
//	GET  /api/v1/sessions      SMB session table
//	GET  /api/v1/sessions/{id} one SMB session
//	GET  /api/v1/users         credential store accounts
//
// With a non-nil jwtService every /api/v1 route except login needs a
// bearer token.
func NewRouter(deps Dependencies, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		tracing(),
		requestLogger,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)

	// A nil *session.Manager must not become a non-nil interface.
	var sessions handlers.SessionLister
	if deps.Sessions != nil {
		sessions = deps.Sessions
	}

	health := handlers.NewHealthHandler(deps.Store, sessions, deps.Version)
	r.Get("/health", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/", http.RedirectHandler("/health", http.StatusTemporaryRedirect).ServeHTTP)
	if h := metrics.Handler(); h != nil {
		r.Method(http.MethodGet, "/metrics", h)
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		protected := v1
		if jwtService != nil {
			ah := handlers.NewAuthHandler(deps.Store, jwtService)
			v1.Post("/auth/login", ah.Login)

			protected = v1.With(apiMiddleware.JWTAuth(jwtService))
			protected.Get("/auth/me", ah.Me)
		}
		if sessions != nil {
			sh := handlers.NewSessionHandler(sessions)
			protected.Get("/sessions", sh.List)
			protected.Get("/sessions/{id}", sh.Get)
		}
		protected.Get("/users", handlers.NewUserHandler(deps.Store).List)
	})

	return r
}

// tracing opens one span per request named after method and path. Probes
// and scrapes are not traced.
func tracing() func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware("dittosmb-api",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbe(r.URL.Path) }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func isProbe(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger writes one line per request; probes only at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)

		log := logger.Info
		if isProbe(r.URL.Path) {
			log = logger.Debug
		}
		log("API request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(float64(time.Since(began).Microseconds())/1000),
			logger.ClientAddr(r.RemoteAddr))
	})
}
