package monitoring

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/instantly"
)

type fakeInstantly struct {
	summary *instantly.CampaignSummary
	err     error
	calls   int
}

func (f *fakeInstantly) AddLeads(context.Context, string, []instantly.Lead) (*instantly.AddLeadsResponse, error) {
	return nil, nil
}

func (f *fakeInstantly) CampaignSummary(_ context.Context, id string) (*instantly.CampaignSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.summary
	s.CampaignID = id
	return &s, nil
}

func (f *fakeInstantly) ListCampaigns(context.Context) ([]instantly.Campaign, error) {
	return nil, nil
}

type staticSource struct {
	metrics model.CampaignMetrics
	err     error
}

func (s staticSource) CampaignMetrics(_ context.Context, id string) (model.CampaignMetrics, error) {
	if s.err != nil {
		return model.CampaignMetrics{}, s.err
	}
	m := s.metrics
	m.CampaignID = id
	return m, nil
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{MaxAttempts: 1})
}

func TestCollector_CampaignMetrics(t *testing.T) {
	fake := &fakeInstantly{summary: &instantly.CampaignSummary{
		Contacted:       1000,
		LeadsWhoReplied: 40,
		Bounced:         12,
		Unsubscribed:    3,
	}}
	c := NewCollector(fake, testExecutor())

	m, err := c.CampaignMetrics(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", m.CampaignID)
	assert.Equal(t, 1000, m.Sent)
	assert.Equal(t, 40, m.Replied)
	assert.Equal(t, 12, m.Bounced)
	assert.Equal(t, 3, m.Unsubscribed)
	assert.False(t, m.WindowEnd.IsZero())
}

func TestCollector_RequiresCampaign(t *testing.T) {
	c := NewCollector(&fakeInstantly{}, testExecutor())
	_, err := c.CampaignMetrics(context.Background(), "")
	require.Error(t, err)
}

func TestCollector_Error(t *testing.T) {
	fake := &fakeInstantly{err: &instantly.APIError{StatusCode: http.StatusUnauthorized, Body: "bad key"}}
	c := NewCollector(fake, testExecutor())

	_, err := c.CampaignMetrics(context.Background(), "camp-1")
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestMonitor_Check(t *testing.T) {
	m := NewMonitor(DefaultThresholds())

	v, err := m.Check(context.Background(), staticSource{metrics: model.CampaignMetrics{Sent: 100, Bounced: 5}}, "c1")
	require.NoError(t, err)
	assert.Equal(t, LevelBlock, v.Level)
	assert.Equal(t, "c1", v.Metrics.CampaignID)

	v, err = m.Check(context.Background(), staticSource{err: assert.AnError}, "c2")
	require.Error(t, err)
	assert.True(t, v.Blocked())
}
