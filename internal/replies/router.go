package replies

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/suppression"
)

// Action is what the router did with a reply.
type Action string

const (
	ActionAlert      Action = "alert"
	ActionSuppress   Action = "suppress"
	ActionDecline    Action = "decline"
	ActionDraft      Action = "draft_response"
	ActionReschedule Action = "reschedule"
)

const replySource = "reply"

// Reply is an inbound message from a prospect.
type Reply struct {
	Email      string `json:"email"`
	Body       string `json:"body"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// Result describes a routed reply.
type Result struct {
	Email    string   `json:"email"`
	Category Category `json:"category"`
	Action   Action   `json:"action"`
	Draft    string   `json:"draft,omitempty"`
	Alerted  bool     `json:"alerted,omitempty"`
}

// Notifier posts a message to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Suppressor records do-not-contact entries.
type Suppressor interface {
	Add(ctx context.Context, identity string, reason model.SuppressionReason, source string) (model.SuppressionEntry, error)
}

// Labeler classifies reply bodies and drafts answers.
type Labeler interface {
	Classify(ctx context.Context, body string) (Category, error)
	Draft(ctx context.Context, body string) (string, error)
}

// Router classifies replies and applies the matching action.
type Router struct {
	labeler    Labeler
	suppressor Suppressor
	notifier   Notifier
}

var _ Suppressor = (*suppression.Gate)(nil)

// NewRouter creates a Router. notifier may be nil.
func NewRouter(labeler Labeler, suppressor Suppressor, notifier Notifier) *Router {
	return &Router{labeler: labeler, suppressor: suppressor, notifier: notifier}
}

// Handle classifies and routes one reply. Suppression write failures are
// returned because a lost opt-out is a compliance problem; alert and draft
// failures are logged only.
func (r *Router) Handle(ctx context.Context, reply Reply) (Result, error) {
	if !model.ValidEmail(reply.Email) {
		return Result{}, eris.Errorf("replies: invalid sender %q", reply.Email)
	}
	cat, err := r.labeler.Classify(ctx, reply.Body)
	if err != nil {
		return Result{}, eris.Wrap(err, "replies: classify")
	}
	return r.Route(ctx, reply, cat)
}

// Route applies the action for an already classified reply.
func (r *Router) Route(ctx context.Context, reply Reply, cat Category) (Result, error) {
	log := zap.L().With(zap.String("component", "replies"), zap.String("category", string(cat)))
	res := Result{Email: reply.Email, Category: cat}

	switch cat {
	case Interested, MeetingRequest:
		res.Action = ActionAlert
		res.Alerted = r.alert(ctx, reply, cat)
	case Unsubscribe:
		res.Action = ActionSuppress
		if _, err := r.suppressor.Add(ctx, reply.Email, model.ReasonOptOut, replySource); err != nil {
			return res, eris.Wrap(err, "replies: suppress opt-out")
		}
	case NotInterested:
		res.Action = ActionDecline
		if _, err := r.suppressor.Add(ctx, reply.Email, model.ReasonDeclined, replySource); err != nil {
			return res, eris.Wrap(err, "replies: suppress declined")
		}
	case OutOfOffice:
		res.Action = ActionReschedule
	default:
		res.Action = ActionDraft
		draft, err := r.labeler.Draft(ctx, reply.Body)
		if err != nil {
			log.Warn("replies: draft failed", zap.Error(err))
		}
		res.Draft = draft
	}

	log.Info("replies: routed reply", zap.String("action", string(res.Action)))
	return res, nil
}

func (r *Router) alert(ctx context.Context, reply Reply, cat Category) bool {
	if r.notifier == nil {
		return false
	}
	body := reply.Body
	if len(body) > 500 {
		body = body[:500]
	}
	text := fmt.Sprintf(":email: *%s* reply from `%s`\n```%s```", cat, reply.Email, body)
	if err := r.notifier.Notify(ctx, text); err != nil {
		zap.L().Warn("replies: alert failed", zap.Error(err))
		return false
	}
	return true
}
