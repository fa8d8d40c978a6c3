package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/middleware/ratelimit"
	"notaspese/internal/middleware/security"
	"notaspese/internal/middleware/trace"
	"notaspese/internal/objectstore"
	"notaspese/internal/services"
	appweb "notaspese/web"
)

// Authenticator is the identity collaborator.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (core.User, string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (core.User, error)
	SignOut(ctx context.Context, token string) error
	SessionTTL() time.Duration
}

// ExpenseManager runs the expense lifecycle.
type ExpenseManager interface {
	Create(ctx context.Context, userID string, fields core.Expense, file *services.Upload) (core.Expense, error)
	Update(ctx context.Context, userID string, req services.UpdateRequest) (core.Expense, error)
	Delete(ctx context.Context, userID, id string) error
	Get(ctx context.Context, userID, id string) (core.Expense, error)
	List(ctx context.Context, userID string) ([]core.Expense, error)
	Categories(ctx context.Context, userID string) ([]string, error)
}

// ReportGenerator builds the monthly report and attachment bundle.
type ReportGenerator interface {
	Months(ctx context.Context, userID string) ([]core.MonthCount, error)
	MonthRows(ctx context.Context, userID string, m core.Month) ([]services.ReportRow, error)
	MonthAttachments(ctx context.Context, userID string, m core.Month) ([]core.Expense, error)
	WriteMonthCSV(ctx context.Context, w io.Writer, userID string, m core.Month) error
	WriteAttachmentBundle(ctx context.Context, w io.Writer, userID string, m core.Month) (services.BundleResult, error)
	CanExport() bool
	ExportMonth(ctx context.Context, userID string, m core.Month) (string, error)
}

// ProfileManager deletes accounts.
type ProfileManager interface {
	DeleteProfile(ctx context.Context, userID, sessionToken string) error
}

// FileSigner issues and checks the short-lived attachment links.
type FileSigner interface {
	CreateSignedURL(path string, ttl time.Duration) (string, error)
	Verify(token string) (string, error)
}

// BlobReader serves attachments behind signed links.
type BlobReader interface {
	Download(ctx context.Context, path string) (*objectstore.Object, error)
}

// Pinger reports whether a dependency is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Auth     Authenticator
	Expenses ExpenseManager
	Reports  ReportGenerator
	Profiles ProfileManager
	Blobs    BlobReader
	Signer   FileSigner
	DB       Pinger
	Logger   *log.Logger
}

// Options tune the server.
type Options struct {
	Addr               string
	SecureCookies      bool
	MaxUploadBytes     int64
	SignedURLTTL       time.Duration
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	deps     Deps
	opts     Options
	pages    pages
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time
	logger   *log.Logger
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Minute
	}

	p, err := parsePages(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    64 << 10,
		},
		deps:     deps,
		opts:     opts,
		pages:    p,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(deps.Logger),
		started:  time.Now(),
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.limiter.Stop()
			return nil, err
		}
	}

	s.tracer = trace.NewMiddleware(deps.Logger, s.detector.ExtractClientIP)
	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(log.Middleware(s.deps.Logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	}))
	r.Use(s.loadSession)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(http.MethodGet + ", " + http.MethodPost).Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Handle("/static/*", s.staticHandler())

	r.Get("/", s.handleIndex)
	r.Get("/files", s.handleFile)
	r.Post("/auth/signout", s.handleSignOut)

	r.Group(func(r chi.Router) {
		r.Use(s.redirectIfAuthenticated)
		r.Get("/login", s.handleLoginForm)
		r.Post("/login", s.handleLogin)
		r.Get("/signup", s.handleSignupForm)
		r.Post("/signup", s.handleSignup)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Group(func(r chi.Router) {
			r.Use(log.ComponentMiddleware(log.ComponentExpense))
			r.Get("/expenses", s.handleListExpenses)
			r.Get("/expense/new", s.handleNewExpenseForm)
			r.Post("/expense/new", s.handleCreateExpense)
			r.Get("/expense/edit/{id}", s.handleEditExpenseForm)
			r.Post("/expense/edit/{id}", s.handleUpdateExpense)
			r.Post("/expense/delete", s.handleDeleteExpense)
		})

		r.Get("/profile", s.handleProfile)
		r.Post("/profile/delete", s.handleDeleteProfile)

		r.Group(func(r chi.Router) {
			r.Use(log.ComponentMiddleware(log.ComponentReport))
			r.Get("/report", s.handleReport)
			r.Get("/report/{month}.csv", s.handleReportCSV)
			r.Get("/report/{month}/attachments.zip", s.handleReportAttachments)
			r.Post("/report/{month}/export", s.handleReportExport)
		})
	})

	return r
}

func (s *Server) staticHandler() http.Handler {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		// embed guarantees the directory exists
		panic(err)
	}
	return security.StaticAssetMiddleware(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
}

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	err := s.Server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().BodyString("ok").Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			NewResponse().Status(http.StatusServiceUnavailable).BodyString("database unavailable").Write(w)
			return
		}
	}
	NewResponse().BodyString("ready").Write(w)
}

// handleMetrics reports request and security counters in a Prometheus-like
// text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traffic := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	detection := s.detector.GetMetrics()

	var b strings.Builder
	metric := func(name, help, kind string, value int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traffic.TotalRequests)
	metric("http_response_time_microseconds", "Average response time", "gauge", traffic.AverageResponseTime)
	metric("rate_limit_hits_total", "Requests counted by the rate limiter", "counter", limits.TotalHits)
	metric("rate_limit_clients", "Clients tracked by the rate limiter", "gauge", limits.ClientCount)
	metric("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", detection.SuspiciousRequests)
	metric("security_invalid_ip_total", "Requests with an unparseable client IP", "counter", detection.InvalidIPAttempts)
	metric("uptime_seconds", "Seconds since the server was created", "gauge", int64(time.Since(s.started).Seconds()))

	NewResponse().BodyString(b.String()).Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8").Write(w)
}
