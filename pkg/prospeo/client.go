// Package prospeo is a client for the Prospeo email finder and verifier.
package prospeo

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

const defaultBaseURL = "https://api.prospeo.io"

// Client defines the Prospeo operations used by enrichment.
type Client interface {
	DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error)
	VerifyEmail(ctx context.Context, email string) (*VerifyResponse, error)
}

// DomainSearchResponse is the response from POST /domain-search.
type DomainSearchResponse struct {
	Error    bool               `json:"error"`
	Response DomainSearchResult `json:"response"`
	Raw      json.RawMessage    `json:"-"`
}

// DomainSearchResult holds the emails found for a domain.
type DomainSearchResult struct {
	Emails []Email `json:"emails"`
}

// Email is a single address returned by a domain search.
type Email struct {
	Email        string `json:"email"`
	Verification string `json:"verification"`
	Type         string `json:"type"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// Verified reports whether Prospeo already verified the address.
func (e Email) Verified() bool {
	return strings.EqualFold(e.Verification, "valid") || strings.EqualFold(e.Verification, "verified")
}

// VerifyResponse is the response from GET /email-verifier.
type VerifyResponse struct {
	Error    bool            `json:"error"`
	Response VerifyResult    `json:"response"`
	Raw      json.RawMessage `json:"-"`
}

// VerifyResult holds the verdict for one address.
type VerifyResult struct {
	Email  string `json:"email"`
	Result string `json:"result"`
}

// Valid reports whether the verifier accepted the address.
func (v *VerifyResponse) Valid() bool {
	return strings.EqualFold(v.Response.Result, "valid")
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prospeo: HTTP %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a Prospeo client.
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
	body, err := json.Marshal(map[string]string{"domain": domain})
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/domain-search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out DomainSearchResponse
	raw, err := c.do(req, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "prospeo: domain search %s", domain)
	}
	out.Raw = raw
	return &out, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/email-verifier", nil)
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: create request")
	}
	q := req.URL.Query()
	q.Set("email", email)
	req.URL.RawQuery = q.Encode()

	var out VerifyResponse
	raw, err := c.do(req, &out)
	if err != nil {
		return nil, eris.Wrap(err, "prospeo: verify email")
	}
	out.Raw = raw
	return &out, nil
}

func (c *httpClient) do(req *http.Request, out any) ([]byte, error) {
	req.Header.Set("X-KEY", c.apiKey)

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
