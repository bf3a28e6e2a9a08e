// Package instantly is a client for the Instantly outreach platform.
package instantly

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

const defaultBaseURL = "https://api.instantly.ai/api/v1"

// Client defines the Instantly operations used by the pipeline.
type Client interface {
	AddLeads(ctx context.Context, campaignID string, leads []Lead) (*AddLeadsResponse, error)
	CampaignSummary(ctx context.Context, campaignID string) (*CampaignSummary, error)
	ListCampaigns(ctx context.Context) ([]Campaign, error)
}

// Lead is one contact pushed into a campaign.
type Lead struct {
	Email           string            `json:"email"`
	FirstName       string            `json:"first_name,omitempty"`
	LastName        string            `json:"last_name,omitempty"`
	CompanyName     string            `json:"company_name,omitempty"`
	Personalization string            `json:"personalization,omitempty"`
	Website         string            `json:"website,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
}

type addLeadsRequest struct {
	APIKey            string `json:"api_key"`
	CampaignID        string `json:"campaign_id"`
	SkipIfInWorkspace bool   `json:"skip_if_in_workspace"`
	Leads             []Lead `json:"leads"`
}

// AddLeadsResponse is the response from POST /lead/add.
type AddLeadsResponse struct {
	Status            string `json:"status"`
	TotalSent         int    `json:"total_sent"`
	LeadsUploaded     int    `json:"leads_uploaded"`
	AlreadyInCampaign int    `json:"already_in_campaign"`
	InBlocklist       int    `json:"in_blocklist"`
	SkippedCount      int    `json:"skipped_count"`
	InvalidEmailCount int    `json:"invalid_email_count"`
}

// Accepted reports whether the lead is now in the campaign, whether it was
// uploaded by this call or already present from an earlier one.
func (r *AddLeadsResponse) Accepted() bool {
	return r.LeadsUploaded+r.AlreadyInCampaign+r.SkippedCount > 0 && r.InBlocklist == 0 && r.InvalidEmailCount == 0
}

// CampaignSummary is the response from GET /analytics/campaign/summary.
type CampaignSummary struct {
	CampaignID      string `json:"campaign_id"`
	CampaignName    string `json:"campaign_name"`
	TotalLeads      int    `json:"total_leads"`
	Contacted       int    `json:"contacted"`
	LeadsWhoRead    int    `json:"leads_who_read"`
	LeadsWhoReplied int    `json:"leads_who_replied"`
	Bounced         int    `json:"bounced"`
	Unsubscribed    int    `json:"unsubscribed"`
	Completed       int    `json:"completed"`
}

// Campaign is one entry of GET /campaign/list.
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instantly: HTTP %d: %s", e.StatusCode, e.Body)
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

// NewClient creates an Instantly client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddLeads pushes leads with skip_if_in_workspace set, so re-sending a lead
// that is already known never creates a second outreach sequence.
func (c *httpClient) AddLeads(ctx context.Context, campaignID string, leads []Lead) (*AddLeadsResponse, error) {
	body, err := json.Marshal(addLeadsRequest{
		APIKey:            c.apiKey,
		CampaignID:        campaignID,
		SkipIfInWorkspace: true,
		Leads:             leads,
	})
	if err != nil {
		return nil, eris.Wrap(err, "instantly: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lead/add", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "instantly: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out AddLeadsResponse
	if err := c.do(req, &out); err != nil {
		return nil, eris.Wrapf(err, "instantly: add leads to %s", campaignID)
	}
	return &out, nil
}

func (c *httpClient) CampaignSummary(ctx context.Context, campaignID string) (*CampaignSummary, error) {
	q := url.Values{"api_key": {c.apiKey}, "campaign_id": {campaignID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analytics/campaign/summary?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "instantly: create request")
	}
	var out CampaignSummary
	if err := c.do(req, &out); err != nil {
		return nil, eris.Wrapf(err, "instantly: campaign summary %s", campaignID)
	}
	return &out, nil
}

func (c *httpClient) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	q := url.Values{"api_key": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/campaign/list?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "instantly: create request")
	}
	var out []Campaign
	if err := c.do(req, &out); err != nil {
		return nil, eris.Wrap(err, "instantly: list campaigns")
	}
	return out, nil
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
