package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client for testing.
type mockClient struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	insertOneFn func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	updateOneFn func(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "00Q000000000001", nil
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, sObjectName, id, fields)
	}
	return nil
}

func TestUpsertLead_Creates(t *testing.T) {
	var inserted map[string]any
	c := &mockClient{
		queryFn: func(_ context.Context, soql string, _ any) error {
			assert.Contains(t, soql, "Email = 'owner@acme.com'")
			return nil
		},
		insertOneFn: func(_ context.Context, obj string, rec map[string]any) (string, error) {
			assert.Equal(t, "Lead", obj)
			inserted = rec
			return "00Qnew", nil
		},
	}

	id, err := UpsertLead(context.Background(), c, Lead{Company: "Acme", Email: "owner@acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "00Qnew", id)
	assert.Equal(t, "Acme", inserted["LastName"])
	assert.Equal(t, LeadSource, inserted["LeadSource"])
}

func TestUpsertLead_UpdatesExisting(t *testing.T) {
	c := &mockClient{
		queryFn: func(_ context.Context, _ string, out any) error {
			*(out.(*[]Lead)) = []Lead{{ID: "00Qold", Email: "owner@acme.com"}}
			return nil
		},
		insertOneFn: func(context.Context, string, map[string]any) (string, error) {
			t.Fatal("insert should not be called")
			return "", nil
		},
		updateOneFn: func(_ context.Context, _ string, id string, fields map[string]any) error {
			assert.Equal(t, "00Qold", id)
			assert.Equal(t, "Acme", fields["Company"])
			return nil
		},
	}

	id, err := UpsertLead(context.Background(), c, Lead{Company: "Acme", Email: "owner@acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "00Qold", id)
}

func TestUpsertLead_Validation(t *testing.T) {
	_, err := UpsertLead(context.Background(), &mockClient{}, Lead{Company: "Acme"})
	assert.Error(t, err)
	_, err = UpsertLead(context.Background(), &mockClient{}, Lead{Email: "a@b.com"})
	assert.Error(t, err)
}

func TestUpsertLead_QueryError(t *testing.T) {
	c := &mockClient{queryFn: func(context.Context, string, any) error { return errors.New("boom") }}
	_, err := UpsertLead(context.Background(), c, Lead{Company: "Acme", Email: "a@acme.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find lead by email")
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'brien@x.com`, escapeSoql("o'brien@x.com"))
}

func TestConnect_RequiresClientID(t *testing.T) {
	_, err := Connect(Creds{})
	assert.Error(t, err)
}
