package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/acts/compass~crawler-google-places/runs", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in PlacesInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"plumbers in austin"}, in.SearchStrings)
		assert.Equal(t, 50, in.MaxPlacesPerQuery)
		assert.True(t, in.ScrapeContacts)

		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"READY"}}`))
	}))
	defer srv.Close()

	run, err := NewClient("tok", WithBaseURL(srv.URL)).StartRun(context.Background(), PlacesActor, PlacesInput{
		SearchStrings: []string{"plumbers in austin"}, MaxPlacesPerQuery: 50, ScrapeContacts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.False(t, run.Terminal())
}

func TestDatasetItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actor-runs/run-1/dataset/items", r.URL.Path)
		_, _ = w.Write([]byte(`[{"title":"Acme Plumbing","website":"acme.com","totalScore":4.7,"reviewsCount":88,"contactInfo":{"email":"hi@acme.com"}},{"title":"Bare"}]`))
	}))
	defer srv.Close()

	items, err := NewClient("tok", WithBaseURL(srv.URL)).DatasetItems(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "hi@acme.com", items[0].BestEmail())
	assert.Equal(t, 88, items[0].ReviewsCount)
	assert.Empty(t, items[1].BestEmail())
}

func TestPollRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := StatusRunning
		if calls.Add(1) >= 3 {
			status = StatusSucceeded
		}
		_ = json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: status}})
	}))
	defer srv.Close()

	run, err := PollRun(context.Background(), NewClient("tok", WithBaseURL(srv.URL)), "run-1",
		WithPollInterval(time.Millisecond), WithPollCap(2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollRun_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: StatusAborted}})
	}))
	defer srv.Close()

	_, err := PollRun(context.Background(), NewClient("tok", WithBaseURL(srv.URL)), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ABORTED")
}

func TestPollRun_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: StatusRunning}})
	}))
	defer srv.Close()

	_, err := PollRun(context.Background(), NewClient("tok", WithBaseURL(srv.URL)), "run-1",
		WithPollInterval(time.Millisecond), WithPollTimeout(20*time.Millisecond))
	assert.Error(t, err)
}
