package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/google"
)

// Places Text Search returns at most 20 results per page.
const googlePageSize = 20

// GoogleSource queries the Places Text Search API directly.
type GoogleSource struct {
	client   google.Client
	exec     *resilience.Executor
	language string
}

// NewGoogleSource creates a GoogleSource.
func NewGoogleSource(client google.Client, exec *resilience.Executor, language string) *GoogleSource {
	return &GoogleSource{client: client, exec: exec, language: language}
}

func (s *GoogleSource) Name() string { return "google" }

// Search pages through results until limit listings are collected or the
// API stops returning a page token.
func (s *GoogleSource) Search(ctx context.Context, query string, limit int) ([]model.Lead, error) {
	var (
		leads []model.Lead
		token string
	)
	for limit <= 0 || len(leads) < limit {
		size := googlePageSize
		if limit > 0 && limit-len(leads) < size {
			size = limit - len(leads)
		}
		req := google.SearchRequest{TextQuery: query, PageSize: size, PageToken: token, LanguageCode: s.language}

		resp, err := resilience.Execute(ctx, s.exec, resilience.Call{
			Provider:  "google",
			Operation: "text_search",
		}, func(ctx context.Context) (*google.TextSearchResponse, error) {
			r, err := s.client.TextSearch(ctx, req)
			return r, resilience.Classify(err)
		})
		if err != nil {
			if len(leads) > 0 {
				return leads, eris.Wrapf(err, "scrape: google search %q stopped after %d results", query, len(leads))
			}
			return nil, eris.Wrapf(err, "scrape: google search %q", query)
		}

		for _, p := range resp.Places {
			if p.DisplayName.Text == "" {
				continue
			}
			l := model.NewLead(p.DisplayName.Text, p.FormattedAddress)
			l.Phone = p.NationalPhoneNumber
			l.Website = p.WebsiteURI
			l.Category = p.PrimaryType
			l.Rating = p.Rating
			l.ReviewCount = p.UserRatingCount
			l.Query = query
			leads = append(leads, l)
		}
		if resp.NextPageToken == "" || len(resp.Places) == 0 {
			break
		}
		token = resp.NextPageToken
	}
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}
