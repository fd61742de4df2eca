// Package httpapi is the REST surface of the engine: command routes
// that feed the scoring pipeline, query routes over the projections and
// the event log, and the WebSocket attach point for the hub.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/config"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/hub"
	"github.com/thirdumpire/crease/internal/scoring"
)

type ctxKey int

const correlationKey ctxKey = iota

// Server wires the scoring service and the hub onto HTTP routes.
type Server struct {
	svc    *scoring.Service
	hub    *hub.Hub
	signer *auth.Signer
	cfg    *config.Config

	// snapshots collapses concurrent reads of the same match into one
	// marshal on the match goroutine.
	snapshots singleflight.Group

	now func() time.Time
}

func New(svc *scoring.Service, h *hub.Hub, signer *auth.Signer, cfg *config.Config) *Server {
	return &Server{svc: svc, hub: h, signer: signer, cfg: cfg, now: time.Now}
}

// Handler builds the route table. Commands and queries require a
// credential; health does not, and the socket route runs the hub's own
// admission.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/matches/{id}/live", s.hub.HandleWS)

	mux.Handle("POST /v1/matches", s.authed(s.handleCreateMatch))
	mux.Handle("GET /v1/matches", s.authed(s.handleListMatches))
	mux.Handle("GET /v1/matches/{id}", s.authed(s.handleGetMatch))
	mux.Handle("GET /v1/matches/{id}/snapshot", s.authed(s.handleSnapshot))
	mux.Handle("POST /v1/matches/{id}/toss", s.authed(s.handleToss))
	mux.Handle("POST /v1/matches/{id}/xi", s.authed(s.handleSetXI))
	mux.Handle("POST /v1/matches/{id}/innings", s.authed(s.handleOpenInnings))
	mux.Handle("GET /v1/matches/{id}/innings", s.authed(s.handleListInnings))
	mux.Handle("POST /v1/matches/{id}/innings/{inningsId}/declare", s.authed(s.handleDeclare))
	mux.Handle("POST /v1/matches/{id}/overs", s.authed(s.handleOpenOver))
	mux.Handle("POST /v1/matches/{id}/batsmen", s.authed(s.handleSetBatsmen))
	mux.Handle("POST /v1/matches/{id}/bowler", s.authed(s.handleSetBowler))
	mux.Handle("POST /v1/matches/{id}/balls", s.authed(s.handleSubmitBall))
	mux.Handle("POST /v1/matches/{id}/corrections", s.authed(s.handleCorrection))
	mux.Handle("GET /v1/matches/{id}/disputes", s.authed(s.handleListDisputes))
	mux.Handle("POST /v1/matches/{id}/disputes/{disputeId}/resolve", s.authed(s.handleResolveDispute))
	mux.Handle("POST /v1/matches/{id}/abandon", s.authed(s.handleAbandon))
	mux.Handle("GET /v1/matches/{id}/events", s.authed(s.handleEvents))
	mux.Handle("GET /v1/matches/{id}/verify", s.authed(s.handleVerifyChain))
	mux.Handle("GET /v1/innings/{id}/balls", s.authed(s.handleBalls))

	return s.correlate(mux)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, c auth.Claims)

// authed verifies the bearer credential and hands its claims to the
// handler. Per-match authorization happens inside the scoring service,
// where the officials table is.
func (s *Server) authed(h authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, domain.E(domain.ErrUnauthenticated, "credential required"))
			return
		}
		claims, err := s.signer.Verify(token, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		h(w, r, claims)
	})
}

// correlate tags every request with an id that comes back in error
// bodies, so a bench's bug report can be matched to server logs.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = domain.NewID()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey, id)))
	})
}

func correlationID(r *http.Request) string {
	if id, ok := r.Context().Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
