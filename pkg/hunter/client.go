// Package hunter is a client for the Hunter.io domain search and verifier.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client defines the Hunter operations used by enrichment.
type Client interface {
	DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error)
	VerifyEmail(ctx context.Context, email string) (*VerifyResponse, error)
	Account(ctx context.Context) (*AccountResponse, error)
}

// DomainSearchResponse is the response from GET /domain-search.
type DomainSearchResponse struct {
	Data DomainData      `json:"data"`
	Raw  json.RawMessage `json:"-"`
}

// DomainData holds the emails Hunter knows for a domain.
type DomainData struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Emails       []Email `json:"emails"`
}

// Email is one address with Hunter's confidence score.
type Email struct {
	Value        string       `json:"value"`
	Type         string       `json:"type"`
	Confidence   int          `json:"confidence"`
	Verification Verification `json:"verification"`
}

// Verification is Hunter's last known check of an address.
type Verification struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// VerifyResponse is the response from GET /email-verifier.
type VerifyResponse struct {
	Data VerifyData      `json:"data"`
	Raw  json.RawMessage `json:"-"`
}

// VerifyData holds the verifier verdict.
type VerifyData struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Result string `json:"result"`
	Score  int    `json:"score"`
}

// Valid reports whether the address is deliverable.
func (v *VerifyResponse) Valid() bool {
	return v.Data.Status == "valid"
}

// AccountResponse is the response from GET /account.
type AccountResponse struct {
	Data struct {
		Email string `json:"email"`
		Plan  string `json:"plan_name"`
	} `json:"data"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hunter: HTTP %d: %s", e.StatusCode, e.Body)
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hunter client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error) {
	var out DomainSearchResponse
	raw, err := c.get(ctx, "/domain-search", url.Values{"domain": {domain}}, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "hunter: domain search %s", domain)
	}
	out.Raw = raw
	return &out, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*VerifyResponse, error) {
	var out VerifyResponse
	raw, err := c.get(ctx, "/email-verifier", url.Values{"email": {email}}, &out)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: verify email")
	}
	out.Raw = raw
	return &out, nil
}

func (c *httpClient) Account(ctx context.Context) (*AccountResponse, error) {
	var out AccountResponse
	if _, err := c.get(ctx, "/account", url.Values{}, &out); err != nil {
		return nil, eris.Wrap(err, "hunter: account")
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) ([]byte, error) {
	q.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return data, nil
}
