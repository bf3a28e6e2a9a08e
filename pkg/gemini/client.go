// Package gemini extracts structured business facts from scraped website
// content with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// maxContentChars bounds the page text sent in a single prompt.
const maxContentChars = 12000

// Config configures the analyzer.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Facts are the fields extracted from a company website.
type Facts struct {
	MainService    string `json:"main_service"`
	SpecificDetail string `json:"specific_detail"`
	PainPoint      string `json:"pain_point"`
	TechStack      string `json:"tech_stack"`
}

// Analyzer extracts Facts from website content.
type Analyzer interface {
	WebsiteFacts(ctx context.Context, businessName, content string) (*Facts, error)
}

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode returns the response status.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

type client struct {
	genai *genai.Client
	model string
}

// New creates a Gemini-backed Analyzer.
func New(ctx context.Context, cfg Config) (Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &client{genai: gc, model: model}, nil
}

var factsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"main_service":    {Type: genai.TypeString},
		"specific_detail": {Type: genai.TypeString},
		"pain_point":      {Type: genai.TypeString},
		"tech_stack":      {Type: genai.TypeString},
	},
	Required: []string{"main_service", "specific_detail", "pain_point", "tech_stack"},
}

func (c *client) WebsiteFacts(ctx context.Context, businessName, content string) (*Facts, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, eris.New("gemini: empty website content")
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	resp, err := c.genai.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(buildPrompt(businessName, content)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   factsSchema,
		},
	)
	if err != nil {
		return nil, mapErr(err)
	}

	var f Facts
	if err := json.Unmarshal([]byte(resp.Text()), &f); err != nil {
		return nil, eris.Wrap(err, "gemini: parse structured json")
	}
	f.MainService = strings.TrimSpace(f.MainService)
	f.SpecificDetail = strings.TrimSpace(f.SpecificDetail)
	f.PainPoint = strings.TrimSpace(f.PainPoint)
	f.TechStack = strings.TrimSpace(f.TechStack)
	return &f, nil
}

func buildPrompt(businessName, content string) string {
	return strings.TrimSpace(`
You analyze a local business website for a sales researcher.

Return ONLY a JSON object with these keys:
- main_service: the primary service the business sells, a few words
- specific_detail: one concrete, verifiable detail from the site (an award, a years-in-business claim, a named project)
- pain_point: one operational problem a business like this likely has
- tech_stack: booking, CRM or website tools visible on the site, comma separated

Use an empty string when the site gives no evidence for a field.

Business: ` + businessName + `

Website content:
` + content)
}

func mapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return eris.Wrap(err, "gemini: generate content")
}
