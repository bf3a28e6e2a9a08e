// Package apollo searches the Apollo.io people database for B2B
// decision-makers matching an ideal customer profile.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// MaxPerPage is the largest page the search endpoint serves.
const MaxPerPage = 100

// Client defines the Apollo operations used for lead sourcing.
type Client interface {
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the body for POST /mixed_people/search. Empty filters
// are omitted.
type SearchRequest struct {
	Titles         []string `json:"person_titles,omitempty"`
	Locations      []string `json:"person_locations,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	IndustryIDs    []string `json:"organization_industry_tag_ids,omitempty"`
	Keywords       string   `json:"q_keywords,omitempty"`
	Page           int      `json:"page"`
	PerPage        int      `json:"per_page"`
}

// SearchResponse is one page of people.
type SearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// Pagination reports where a page sits in the full result set.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// Person is one contact returned by the search.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	EmailStatus  string        `json:"email_status"`
	PhoneNumber  string        `json:"phone_number"`
	City         string        `json:"city"`
	State        string        `json:"state"`
	Organization *Organization `json:"organization"`
}

// Organization is the employer attached to a Person. It may be absent.
type Organization struct {
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	PrimaryDomain         string `json:"primary_domain"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	RawAddress            string `json:"raw_address"`
	City                  string `json:"city"`
	PrimaryPhone          *Phone `json:"primary_phone"`
	SanitizedPhone        string `json:"sanitized_phone"`
}

// Phone is a formatted phone number.
type Phone struct {
	Number string `json:"number"`
}

// Company returns the person's organization, never nil.
func (p Person) Company() Organization {
	if p.Organization == nil {
		return Organization{}
	}
	return *p.Organization
}

// Email placeholders Apollo returns for contacts it has not unlocked.
const lockedEmailDomain = "domain.com"

// UsableEmail returns the person's email unless it is missing or one of
// the locked placeholders.
func (p Person) UsableEmail() string {
	e := strings.TrimSpace(p.Email)
	if e == "" || strings.HasSuffix(strings.ToLower(e), "@"+lockedEmailDomain) {
		return ""
	}
	return e
}

// BestPhone prefers the person's direct number over the company line.
func (p Person) BestPhone() string {
	if p.PhoneNumber != "" {
		return p.PhoneNumber
	}
	org := p.Company()
	if org.PrimaryPhone != nil && org.PrimaryPhone.Number != "" {
		return org.PrimaryPhone.Number
	}
	return org.SanitizedPhone
}

// APIError is returned when Apollo responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchPeople fetches one page. Page defaults to 1 and PerPage to 25,
// capped at MaxPerPage.
func (c *httpClient) SearchPeople(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if sr.Page <= 0 {
		sr.Page = 1
	}
	switch {
	case sr.PerPage <= 0:
		sr.PerPage = 25
	case sr.PerPage > MaxPerPage:
		sr.PerPage = MaxPerPage
	}
	buf, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mixed_people/search", bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	var resp SearchResponse
	if err := c.do(req, &resp); err != nil {
		return nil, eris.Wrapf(err, "apollo: search people page %d", sr.Page)
	}
	return &resp, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
