// Package replies classifies inbound prospect replies and routes them to
// suppression, alerting, or a drafted response.
package replies

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// Category is the intent label of a reply.
type Category string

const (
	Interested     Category = "INTERESTED"
	NotInterested  Category = "NOT_INTERESTED"
	MeetingRequest Category = "MEETING_REQUEST"
	OutOfOffice    Category = "OUT_OF_OFFICE"
	Unsubscribe    Category = "UNSUBSCRIBE"
	Question       Category = "QUESTION"
)

var categories = []Category{Interested, NotInterested, MeetingRequest, OutOfOffice, Unsubscribe, Question}

// ParseCategory maps model output onto a Category. Anything unrecognized
// becomes Question so a human looks at it.
func ParseCategory(s string) Category {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Trim(s, ".\"'`* ")
	s = strings.ReplaceAll(s, " ", "_")
	for _, c := range categories {
		if s == string(c) {
			return c
		}
	}
	return Question
}

// Classifier labels replies using the LLM.
type Classifier struct {
	client anthropic.Client
	exec   *resilience.Executor
	model  string
}

// NewClassifier creates a Classifier.
func NewClassifier(client anthropic.Client, exec *resilience.Executor, model string) *Classifier {
	return &Classifier{client: client, exec: exec, model: model}
}

const classifyPrompt = `Classify this email reply into exactly one category: INTERESTED, NOT_INTERESTED, MEETING_REQUEST, OUT_OF_OFFICE, UNSUBSCRIBE, QUESTION.
Reply with ONLY the category.

Reply: %q`

// Classify returns the category for a reply body.
func (c *Classifier) Classify(ctx context.Context, body string) (Category, error) {
	text, err := c.complete(ctx, "classify_reply", 100, fmt.Sprintf(classifyPrompt, body))
	if err != nil {
		return "", err
	}
	cat := ParseCategory(text)
	if string(cat) != strings.ToUpper(strings.TrimSpace(text)) {
		zap.L().Warn("replies: unexpected category, using fallback",
			zap.String("raw", text),
			zap.String("category", string(cat)),
		)
	}
	return cat, nil
}

const draftPrompt = `A prospect replied to our cold email with a question. Draft a helpful, concise reply (2-3 sentences max) that a sales rep can review and send. Be professional but conversational.

Prospect reply: %q`

// Draft writes a suggested answer to a question for human review.
func (c *Classifier) Draft(ctx context.Context, body string) (string, error) {
	return c.complete(ctx, "draft_reply", 300, fmt.Sprintf(draftPrompt, body))
}

func (c *Classifier) complete(ctx context.Context, op string, maxTokens int64, prompt string) (string, error) {
	resp, err := resilience.Execute(ctx, c.exec, resilience.Call{
		Provider:  "anthropic",
		Operation: op,
	}, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		r, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: maxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		return r, resilience.Classify(err)
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogUsage(c.model, op)
	return strings.TrimSpace(resp.Text()), nil
}
