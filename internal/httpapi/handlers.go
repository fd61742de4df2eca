package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/scoring"
	"github.com/thirdumpire/crease/internal/telemetry"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"metrics": telemetry.MetricsSnapshot(),
	})
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var params scoring.CreateMatchParams
	if err := decode(r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.svc.CreateMatch(r.Context(), c, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, domain.E(domain.ErrInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	matches, err := s.svc.Matches(r.Context(), domain.MatchState(r.URL.Query().Get("state")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	m, err := s.svc.Match(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	matchID := r.PathValue("id")
	raw, err, _ := s.snapshots.Do(matchID, func() (any, error) {
		return s.svc.Snapshot(r.Context(), matchID)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw.(json.RawMessage))
}

func (s *Server) handleToss(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		WonByTeamID string            `json:"wonByTeamId"`
		Elected     domain.TossChoice `json:"elected"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.ConductToss(r.Context(), c, r.PathValue("id"), body.WonByTeamID, body.Elected); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetXI(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var xi domain.PlayingXI
	if err := decode(r, &xi); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetPlayingXI(r.Context(), c, r.PathValue("id"), &xi); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpenInnings(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	inn, err := s.svc.OpenInnings(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inn)
}

func (s *Server) handleListInnings(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	innings, err := s.svc.Innings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("current") == "true" {
		current := innings[:0:0]
		for _, inn := range innings {
			if inn.Open() {
				current = append(current, inn)
			}
		}
		innings = current
	}
	writeJSON(w, http.StatusOK, map[string]any{"innings": innings})
}

func (s *Server) handleDeclare(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	if err := s.svc.CloseInnings(r.Context(), c, r.PathValue("id"), r.PathValue("inningsId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpenOver(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		InningsID string `json:"inningsId"`
		Number    int    `json:"number"`
		BowlerID  string `json:"bowlerId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	over, err := s.svc.OpenOver(r.Context(), c, r.PathValue("id"), body.InningsID, body.Number, body.BowlerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, over)
}

func (s *Server) handleSetBatsmen(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		InningsID    string `json:"inningsId"`
		StrikerID    string `json:"strikerId"`
		NonStrikerID string `json:"nonStrikerId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetBatsmen(r.Context(), c, r.PathValue("id"), body.InningsID, body.StrikerID, body.NonStrikerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetBowler(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		InningsID string `json:"inningsId"`
		BowlerID  string `json:"bowlerId"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetBowler(r.Context(), c, r.PathValue("id"), body.InningsID, body.BowlerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitBall accepts one bench's call. A dispute is not a
// failure of the request: the event is logged, so the 409 body carries
// the dispute id alongside the accepted event id.
func (s *Server) handleSubmitBall(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var p domain.BallPayload
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.SubmitBall(r.Context(), c, r.PathValue("id"), &p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var corr domain.CorrectionPayload
	if err := decode(r, &corr); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.CorrectBall(r.Context(), c, r.PathValue("id"), &corr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	disputes, err := s.svc.Disputes(r.Context(), r.PathValue("id"),
		domain.DisputeStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": disputes})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		Final domain.BallPayload `json:"final"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.svc.ResolveDispute(r.Context(), c, r.PathValue("id"), r.PathValue("disputeId"), &body.Final)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request, c auth.Claims) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.AbandonMatch(r.Context(), c, r.PathValue("id"), body.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	from, to := int64(1), int64(0)
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, domain.E(domain.ErrInvalidArgument, "from must be an integer"))
			return
		}
		from = n
	}
	if v := r.URL.Query().Get("to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, domain.E(domain.ErrInvalidArgument, "to must be an integer"))
			return
		}
		to = n
	}
	evs, err := s.svc.Events(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	ok, brokenSeq, err := s.svc.VerifyChain(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := map[string]any{"intact": ok}
	if !ok {
		body["brokenSeq"] = brokenSeq
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleBalls(w http.ResponseWriter, r *http.Request, _ auth.Claims) {
	balls, err := s.svc.Balls(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balls": balls})
}
