package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/replies"
	"github.com/sells-group/leadgen-cli/internal/suppression"
)

const webhookSource = "webhook"

// event is the union of the webhook payloads we accept. Instantly sends
// lead_email and reply_text; the typed endpoints accept email and body.
type event struct {
	EventType  string `json:"event_type"`
	Email      string `json:"email"`
	LeadEmail  string `json:"lead_email"`
	BounceType string `json:"bounce_type"`
	Body       string `json:"body"`
	ReplyText  string `json:"reply_text"`
	CampaignID string `json:"campaign_id"`
}

func (e event) address() string {
	if e.Email != "" {
		return e.Email
	}
	return e.LeadEmail
}

func (e event) text() string {
	if e.Body != "" {
		return e.Body
	}
	return e.ReplyText
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (event, bool) {
	var ev event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return ev, false
	}
	if ev.address() == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return ev, false
	}
	return ev, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"suppressions": s.deps.Suppressions.Len(),
		"uptime":       s.now().Sub(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Costs == nil {
		writeError(w, http.StatusServiceUnavailable, "cost ledger not configured")
		return
	}
	since, err := ParseSince(r.URL.Query().Get("since"), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := cost.History(r.Context(), s.deps.Costs, since)
	if err != nil {
		zap.L().Error("server: cost history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cost history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since, "summary": sum})
}

func (s *Server) handleCampaignHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "campaign health not configured")
		return
	}
	id := chi.URLParam(r, "campaignID")
	v, err := s.deps.Health(r.Context(), id)
	if err != nil {
		zap.L().Warn("server: campaign health check failed", zap.String("campaign_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSuppressionLookup(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	e, ok := s.deps.Suppressions.Lookup(email)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"email": email, "suppressed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": email, "suppressed": true, "entry": e})
}

func (s *Server) handleSuppress(reason model.SuppressionReason) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, ok := decodeEvent(w, r)
		if !ok {
			return
		}
		s.suppress(w, r, ev.address(), reason)
	}
}

func (s *Server) suppress(w http.ResponseWriter, r *http.Request, email string, reason model.SuppressionReason) {
	if !model.ValidEmail(suppression.Normalize(email)) {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	e, err := s.deps.Suppressions.Add(r.Context(), email, reason, webhookSource)
	if err != nil {
		zap.L().Error("server: suppression write failed", zap.String("reason", string(reason)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "suppression write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppressed": true, "entry": e})
}

// Soft bounces are transient and do not suppress.
func (s *Server) handleBounce(w http.ResponseWriter, r *http.Request) {
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	s.bounce(w, r, ev)
}

func (s *Server) bounce(w http.ResponseWriter, r *http.Request, ev event) {
	if strings.EqualFold(ev.BounceType, "soft") {
		writeJSON(w, http.StatusOK, map[string]any{"suppressed": false, "ignored": "soft bounce"})
		return
	}
	s.suppress(w, r, ev.address(), model.ReasonHardBounce)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	s.reply(w, r, ev)
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, ev event) {
	if s.deps.Replies == nil {
		writeError(w, http.StatusServiceUnavailable, "reply handling not configured")
		return
	}
	res, err := s.deps.Replies.Handle(r.Context(), replies.Reply{Email: ev.address(), Body: ev.text(), CampaignID: ev.CampaignID})
	if err != nil {
		zap.L().Error("server: reply handling failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reply handling failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleInstantly dispatches Instantly's generic webhook by event type.
func (s *Server) handleInstantly(w http.ResponseWriter, r *http.Request) {
	ev, ok := decodeEvent(w, r)
	if !ok {
		return
	}
	switch ev.EventType {
	case "lead_unsubscribed":
		s.suppress(w, r, ev.address(), model.ReasonOptOut)
	case "email_bounced":
		s.bounce(w, r, ev)
	case "lead_marked_as_spam", "spam_complaint":
		s.suppress(w, r, ev.address(), model.ReasonSpamComplaint)
	case "reply_received":
		s.reply(w, r, ev)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "event_type": ev.EventType})
	}
}

// ParseSince accepts an RFC 3339 timestamp, a YYYY-MM-DD date, or a
// duration such as 720h counted back from now. Empty means the start of the
// current month.
func ParseSince(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		y, m, _ := now.UTC().Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, eris.Errorf("server: invalid since %q: want RFC 3339, YYYY-MM-DD, or a duration", v)
}
