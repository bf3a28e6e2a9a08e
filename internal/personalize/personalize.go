// Package personalize researches a lead's website and writes the opening
// line of the outreach email. Every step degrades to empty fields.
package personalize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/firecrawl"
	"github.com/sells-group/leadgen-cli/pkg/gemini"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// Notes explain why personalization came back empty or partial.
const (
	NoteNoWebsite     = "no_website"
	NoteScrapeFailed  = "scrape_failed"
	NoteEmptyContent  = "empty_content"
	NoteFactsFailed   = "facts_failed"
	NoteNoFacts       = "no_facts"
	NoteWriterFailed  = "first_line_failed"
	NoteWriterMissing = "writer_unconfigured"
)

const firstLineSystem = `You write the first line of a cold email.
Write ONLY one sentence under 20 words that references the given website detail naturally.
Do not use generic compliments. Do not mention AI. Sound like a real person who visited the website.`

// Options configures a Personalizer.
type Options struct {
	Model     string
	MaxTokens int64
	// Reader fetches the page when the scraper fails or returns nothing.
	Reader jina.Client
}

// Personalizer composes website scraping, fact extraction, and line writing.
// Any collaborator may be nil, in which case its step is skipped.
type Personalizer struct {
	scraper  firecrawl.Client
	analyzer gemini.Analyzer
	writer   anthropic.Client
	exec     *resilience.Executor
	opts     Options
}

// New creates a Personalizer.
func New(scraper firecrawl.Client, analyzer gemini.Analyzer, writer anthropic.Client, exec *resilience.Executor, opts Options) *Personalizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 200
	}
	return &Personalizer{scraper: scraper, analyzer: analyzer, writer: writer, exec: exec, opts: opts}
}

// Personalize returns a copy of lead carrying derived facts and an opening
// line, plus notes for every step that degraded. The only error returned is
// the context's, when the run is cancelled mid-lead.
func (p *Personalizer) Personalize(ctx context.Context, lead model.Lead) (model.Lead, []string, error) {
	log := zap.L().With(zap.String("component", "personalize"), zap.String("lead_id", lead.ID))

	if lead.Website == "" || (p.scraper == nil && p.opts.Reader == nil) {
		return lead, []string{NoteNoWebsite}, nil
	}

	var notes []string
	content, err := p.fetch(ctx, lead.Website)
	if err != nil {
		if ctx.Err() != nil {
			return lead, nil, ctx.Err()
		}
		log.Warn("personalize: scrape failed", zap.String("url", lead.Website), zap.Error(err))
		return lead, []string{NoteScrapeFailed}, nil
	}
	if strings.TrimSpace(content) == "" {
		return lead, []string{NoteEmptyContent}, nil
	}

	var facts model.WebsiteFacts
	if p.analyzer != nil {
		f, err := p.facts(ctx, lead.BusinessName, content)
		switch {
		case err != nil && ctx.Err() != nil:
			return lead, nil, ctx.Err()
		case err != nil:
			log.Warn("personalize: fact extraction failed", zap.Error(err))
			notes = append(notes, NoteFactsFailed)
		default:
			facts = f
		}
	}
	if facts.Empty() {
		if len(notes) == 0 {
			notes = append(notes, NoteNoFacts)
		}
		return lead.WithPersonalization(facts, ""), notes, nil
	}

	if p.writer == nil {
		return lead.WithPersonalization(facts, ""), append(notes, NoteWriterMissing), nil
	}
	line, err := p.firstLine(ctx, lead.BusinessName, facts)
	if err != nil {
		if ctx.Err() != nil {
			return lead, nil, ctx.Err()
		}
		log.Warn("personalize: first line failed", zap.Error(err))
		return lead.WithPersonalization(facts, ""), append(notes, NoteWriterFailed), nil
	}
	return lead.WithPersonalization(facts, line), notes, nil
}

// fetch scrapes url, falling back to the reader on error or empty content.
func (p *Personalizer) fetch(ctx context.Context, url string) (string, error) {
	var (
		content string
		err     error
	)
	if p.scraper != nil {
		content, err = p.scrape(ctx, url)
		if err == nil && strings.TrimSpace(content) != "" {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if p.opts.Reader == nil {
		return content, err
	}
	if err != nil {
		zap.L().Debug("personalize: scraper failed, trying reader", zap.String("url", url), zap.Error(err))
	}

	resp, rerr := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "jina",
		Operation: "read",
		Budget:    resilience.Budget{Timeout: resilience.TimeoutLong},
	}, func(ctx context.Context) (*jina.ReadResponse, error) {
		r, err := p.opts.Reader.Read(ctx, url)
		return r, resilience.Classify(err)
	})
	if rerr != nil {
		return "", rerr
	}
	return resp.Data.Content, nil
}

func (p *Personalizer) scrape(ctx context.Context, url string) (string, error) {
	resp, err := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "firecrawl",
		Operation: "scrape",
		Budget:    resilience.Budget{Timeout: resilience.TimeoutLong},
	}, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		r, err := p.scraper.Scrape(ctx, firecrawl.ScrapeRequest{URL: url, OnlyMainContent: true})
		return r, resilience.Classify(err)
	})
	if err != nil {
		return "", err
	}
	return resp.Data.Markdown, nil
}

func (p *Personalizer) facts(ctx context.Context, businessName, content string) (model.WebsiteFacts, error) {
	f, err := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "gemini",
		Operation: "website_facts",
		Budget:    resilience.Budget{Timeout: resilience.TimeoutLong},
	}, func(ctx context.Context) (*gemini.Facts, error) {
		f, err := p.analyzer.WebsiteFacts(ctx, businessName, content)
		return f, resilience.Classify(err)
	})
	if err != nil {
		return model.WebsiteFacts{}, err
	}
	return model.WebsiteFacts{
		MainService:    strings.TrimSpace(f.MainService),
		SpecificDetail: strings.TrimSpace(f.SpecificDetail),
		PainPoint:      strings.TrimSpace(f.PainPoint),
		TechStack:      strings.TrimSpace(f.TechStack),
	}, nil
}

func (p *Personalizer) firstLine(ctx context.Context, businessName string, facts model.WebsiteFacts) (string, error) {
	detail := facts.SpecificDetail
	if detail == "" {
		detail = facts.MainService
	}
	prompt := fmt.Sprintf("Prospect: %s\nWebsite detail: %s\nPain point: %s", businessName, detail, facts.PainPoint)

	resp, err := resilience.Execute(ctx, p.exec, resilience.Call{
		Provider:  "anthropic",
		Operation: "first_line",
	}, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		r, err := p.writer.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.opts.Model,
			MaxTokens: p.opts.MaxTokens,
			System:    anthropic.CachedSystem(firstLineSystem),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		return r, resilience.Classify(err)
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogUsage(p.opts.Model, "first_line")
	return cleanLine(resp.Text()), nil
}

// cleanLine strips wrapping quotes and keeps the first line of output.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, `"'`)
}
