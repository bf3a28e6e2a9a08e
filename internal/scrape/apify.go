package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/apify"
)

// ApifySource runs the Google Places crawler actor.
type ApifySource struct {
	client   apify.Client
	exec     *resilience.Executor
	actorID  string
	language string
	poll     []apify.PollOption
}

// NewApifySource creates an ApifySource. An empty actorID uses the
// default Places crawler.
func NewApifySource(client apify.Client, exec *resilience.Executor, actorID, language string, poll ...apify.PollOption) *ApifySource {
	if actorID == "" {
		actorID = apify.PlacesActor
	}
	if language == "" {
		language = "en"
	}
	return &ApifySource{client: client, exec: exec, actorID: actorID, language: language, poll: poll}
}

func (s *ApifySource) Name() string { return "apify" }

// Search starts an actor run, waits for it, and reads its dataset. The
// start call is charged per requested place.
func (s *ApifySource) Search(ctx context.Context, query string, limit int) ([]model.Lead, error) {
	input := apify.PlacesInput{
		SearchStrings:     []string{query},
		MaxPlacesPerQuery: limit,
		Language:          s.language,
		ScrapeContacts:    true,
	}
	run, err := resilience.Execute(ctx, s.exec, resilience.Call{
		Provider:  "apify",
		Operation: "places_search",
		Units:     limit,
	}, func(ctx context.Context) (*apify.Run, error) {
		r, err := s.client.StartRun(ctx, s.actorID, input)
		return r, resilience.Classify(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: start apify run for %q", query)
	}

	if _, err := apify.PollRun(ctx, s.client, run.ID, s.poll...); err != nil {
		return nil, eris.Wrapf(err, "scrape: wait for apify run %s", run.ID)
	}

	places, err := resilience.Execute(ctx, s.exec, resilience.Call{
		Provider:  "apify",
		Operation: "dataset_items",
		Budget:    resilience.Budget{Timeout: resilience.TimeoutLong},
	}, func(ctx context.Context) ([]apify.Place, error) {
		p, err := s.client.DatasetItems(ctx, run.ID)
		return p, resilience.Classify(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read apify dataset for run %s", run.ID)
	}

	leads := make([]model.Lead, 0, len(places))
	for _, p := range places {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		l := model.NewLead(p.Title, p.Address)
		l.Phone = p.Phone
		l.Website = p.Website
		l.City = p.City
		l.Category = p.CategoryName
		l.Rating = p.TotalScore
		l.ReviewCount = p.ReviewsCount
		l.Email = p.BestEmail()
		l.Query = query
		leads = append(leads, l)
	}
	return leads, nil
}
