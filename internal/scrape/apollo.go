package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
)

// ApolloFilter narrows an Apollo people search to an ideal customer
// profile. The query string is sent as keywords alongside it.
type ApolloFilter struct {
	Titles         []string
	Locations      []string
	EmployeeRanges []string
	IndustryIDs    []string
}

// ApolloSource finds decision-makers at matching companies. Each person
// becomes a lead for their employer; people without one are skipped.
type ApolloSource struct {
	client apollo.Client
	exec   *resilience.Executor
	filter ApolloFilter
}

// NewApolloSource creates an ApolloSource.
func NewApolloSource(client apollo.Client, exec *resilience.Executor, filter ApolloFilter) *ApolloSource {
	return &ApolloSource{client: client, exec: exec, filter: filter}
}

func (s *ApolloSource) Name() string { return "apollo" }

// Search pages through people until limit leads are collected or the
// result set is exhausted. Each page is charged once.
func (s *ApolloSource) Search(ctx context.Context, query string, limit int) ([]model.Lead, error) {
	size := apollo.MaxPerPage
	if limit > 0 && limit < size {
		size = limit
	}
	var leads []model.Lead
	for page := 1; limit <= 0 || len(leads) < limit; page++ {
		req := apollo.SearchRequest{
			Titles:         s.filter.Titles,
			Locations:      s.filter.Locations,
			EmployeeRanges: s.filter.EmployeeRanges,
			IndustryIDs:    s.filter.IndustryIDs,
			Keywords:       query,
			Page:           page,
			PerPage:        size,
		}

		resp, err := resilience.Execute(ctx, s.exec, resilience.Call{
			Provider:  "apollo",
			Operation: "people_search",
		}, func(ctx context.Context) (*apollo.SearchResponse, error) {
			r, err := s.client.SearchPeople(ctx, req)
			return r, resilience.Classify(err)
		})
		if err != nil {
			if len(leads) > 0 {
				return leads, eris.Wrapf(err, "scrape: apollo search %q stopped after %d results", query, len(leads))
			}
			return nil, eris.Wrapf(err, "scrape: apollo search %q", query)
		}

		for _, p := range resp.People {
			if l, ok := personLead(p, query); ok {
				leads = append(leads, l)
			}
		}
		if len(resp.People) == 0 || page >= resp.Pagination.TotalPages {
			break
		}
	}
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func personLead(p apollo.Person, query string) (model.Lead, bool) {
	org := p.Company()
	name := strings.TrimSpace(org.Name)
	if name == "" {
		return model.Lead{}, false
	}
	city := p.City
	if city == "" {
		city = org.City
	}
	addr := org.RawAddress
	if addr == "" {
		addr = city
	}

	l := model.NewLead(name, addr)
	l.City = city
	l.Website = org.WebsiteURL
	if l.Website == "" {
		l.Website = org.PrimaryDomain
	}
	l.Phone = p.BestPhone()
	l.Email = p.UsableEmail()
	l.Category = org.Industry
	l.Query = query
	return l, true
}
