// Package server exposes outreach-platform webhooks and read-only status
// endpoints over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/replies"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// Suppressions is the part of the suppression gate the server uses.
type Suppressions interface {
	Add(ctx context.Context, identity string, reason model.SuppressionReason, source string) (model.SuppressionEntry, error)
	Lookup(identity string) (model.SuppressionEntry, bool)
	Len() int
}

// ReplyHandler classifies and routes a prospect reply.
type ReplyHandler interface {
	Handle(ctx context.Context, reply replies.Reply) (replies.Result, error)
}

// Deps are the server's collaborators. Replies, Costs, and Health may be nil;
// their routes then answer 503.
type Deps struct {
	Suppressions Suppressions
	Replies      ReplyHandler
	Costs        cost.Ledger
	Health       func(ctx context.Context, campaignID string) (monitoring.Verdict, error)
}

// Options configure the server.
type Options struct {
	// Secret, when set, is required on every webhook request.
	Secret         string
	AllowedOrigins []string
}

// Server routes HTTP requests.
type Server struct {
	deps    Deps
	opts    Options
	now     func() time.Time
	started time.Time
}

// New creates a Server.
func New(deps Deps, opts Options) *Server {
	return &Server{deps: deps, opts: opts, now: time.Now, started: time.Now()}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", SecretHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/costs", s.handleCosts)
	r.Get("/campaigns/{campaignID}/health", s.handleCampaignHealth)
	r.Get("/suppressions/{email}", s.handleSuppressionLookup)

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/unsubscribe", s.handleSuppress(model.ReasonOptOut))
		r.Post("/spam", s.handleSuppress(model.ReasonSpamComplaint))
		r.Post("/bounce", s.handleBounce)
		r.Post("/reply", s.handleReply)
		r.Post("/instantly", s.handleInstantly)
	})
	return r
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Secret != "" {
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
