// Package apify is a client for the Apify actor API, used to run the Google
// Places crawler actor and fetch its dataset.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.apify.com/v2"

	// PlacesActor is the Google Places crawler actor.
	PlacesActor = "compass~crawler-google-places"
)

// Run statuses reported by the API.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
	StatusTimedOut  = "TIMED-OUT"
)

// Client defines the Apify operations used by scraping.
type Client interface {
	StartRun(ctx context.Context, actorID string, input PlacesInput) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	DatasetItems(ctx context.Context, runID string) ([]Place, error)
}

// PlacesInput is the input of the Google Places actor.
type PlacesInput struct {
	SearchStrings     []string `json:"searchStringsArray"`
	MaxPlacesPerQuery int      `json:"maxCrawledPlacesPerSearch"`
	Language          string   `json:"language"`
	IncludeWebResults bool     `json:"includeWebResults"`
	ScrapeContacts    bool     `json:"scrapeContacts"`
	ScrapeReviews     bool     `json:"scrapeReviews"`
}

// Run is an actor run.
type Run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Terminal reports whether the run has finished.
func (r *Run) Terminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

type runEnvelope struct {
	Data Run `json:"data"`
}

// Place is one dataset item produced by the Places actor.
type Place struct {
	Title        string       `json:"title"`
	Email        string       `json:"email"`
	Emails       []string     `json:"emails"`
	Phone        string       `json:"phone"`
	Website      string       `json:"website"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	CategoryName string       `json:"categoryName"`
	TotalScore   float64      `json:"totalScore"`
	ReviewsCount int          `json:"reviewsCount"`
	ContactInfo  *ContactInfo `json:"contactInfo,omitempty"`
	SearchString string       `json:"searchString"`
}

// ContactInfo is the optional contact block scraped from the website.
type ContactInfo struct {
	Email string `json:"email"`
}

// BestEmail returns the first email the actor found for the place.
func (p Place) BestEmail() string {
	switch {
	case p.Email != "":
		return p.Email
	case len(p.Emails) > 0:
		return p.Emails[0]
	case p.ContactInfo != nil:
		return p.ContactInfo.Email
	}
	return ""
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) StartRun(ctx context.Context, actorID string, input PlacesInput) (*Run, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal input")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/acts/"+url.PathEscape(actorID)+"/runs", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var env runEnvelope
	if err := c.do(req, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: start run %s", actorID)
	}
	return &env.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/actor-runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	var env runEnvelope
	if err := c.do(req, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: get run %s", runID)
	}
	return &env.Data, nil
}

func (c *httpClient) DatasetItems(ctx context.Context, runID string) ([]Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/actor-runs/"+url.PathEscape(runID)+"/dataset/items?clean=true", nil)
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	var items []Place
	if err := c.do(req, &items); err != nil {
		return nil, eris.Wrapf(err, "apify: dataset items %s", runID)
	}
	return items, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

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
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
