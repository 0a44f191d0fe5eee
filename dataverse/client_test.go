package dataverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecordID = "8d68aa16-03a8-ee11-be37-000d3a1b2c3d"

// staticToken implements TokenProvider for testing.
type staticToken struct {
	token string
	err   error
}

func (p *staticToken) GetToken(_ context.Context) (string, error) {
	return p.token, p.err
}

// newTestClient builds a client pointed at a test server.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, &staticToken{token: "test-token"}, opts...)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	client, err := New("https://contoso.crm.dynamics.com", &staticToken{token: "tok"})

	require.NoError(t, err)
	assert.Equal(t, "https://contoso.crm.dynamics.com", client.EnvironmentURL())
	assert.Equal(t, DefaultAPIVersion, client.apiVersion)
	assert.NotNil(t, client.rateLimiter)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	client, err := New("https://contoso.crm.dynamics.com/", &staticToken{token: "tok"})

	require.NoError(t, err)
	assert.Equal(t, "https://contoso.crm.dynamics.com", client.EnvironmentURL())
	assert.Equal(t,
		"https://contoso.crm.dynamics.com/api/data/v9.2/leads",
		client.apiURL("leads"))
}

func TestNew_RequiresEnvironmentURL(t *testing.T) {
	_, err := New("", &staticToken{token: "tok"})
	assert.Error(t, err)
}

func TestNew_RequiresTokenProvider(t *testing.T) {
	_, err := New("https://contoso.crm.dynamics.com", nil)
	assert.Error(t, err)
}

func TestNew_WithAPIVersion(t *testing.T) {
	client, err := New("https://contoso.crm.dynamics.com",
		&staticToken{token: "tok"}, WithAPIVersion("v9.0"))

	require.NoError(t, err)
	assert.Equal(t,
		"https://contoso.crm.dynamics.com/api/data/v9.0/leads",
		client.apiURL("leads"))
}

func TestClient_Get(t *testing.T) {
	var gotPath, gotAuth, gotOData string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotOData = r.Header.Get("OData-Version")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"leadid": %q, "subject": "New enquiry", "statecode": 0}`, testRecordID)
	})

	record, err := client.Get(context.Background(), "leads", testRecordID, nil)

	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/api/data/v9.2/leads(%s)", testRecordID), gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "4.0", gotOData)
	assert.Equal(t, testRecordID, record.ID("leadid"))
	assert.Equal(t, "New enquiry", record.String("subject"))
	assert.Equal(t, 0.0, record.Float("statecode"))
}

func TestClient_Get_WithSelect(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{}`)
	})

	_, err := client.Get(context.Background(), "leads", testRecordID,
		&QueryOptions{Select: []string{"subject", "lastname"}})

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "%24select=subject%2Clastname")
}

func TestClient_Get_InvalidID(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for an invalid id")
	})

	_, err := client.Get(context.Background(), "leads", "not-a-guid", nil)

	assert.ErrorContains(t, err, "invalid record id")
}

func TestClient_Get_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": "0x80040217", "message": "lead does not exist"}}`)
	})

	_, err := client.Get(context.Background(), "leads", testRecordID, nil)

	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "0x80040217", apiErr.Code)
	assert.Equal(t, "lead does not exist", apiErr.Message)
}

func TestClient_Get_TokenProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected when token acquisition fails")
	}))
	t.Cleanup(server.Close)

	client, err := New(server.URL, &staticToken{err: errors.New("aad unreachable")})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "leads", testRecordID, nil)

	assert.ErrorContains(t, err, "get access token")
}

func TestClient_List(t *testing.T) {
	var gotPath, gotQuery, gotPrefer string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotPrefer = r.Header.Get("Prefer")
		fmt.Fprint(w, `{
			"@odata.context": "https://contoso.crm.dynamics.com/api/data/v9.2/$metadata#leads",
			"@odata.count": 2,
			"value": [{"subject": "a"}, {"subject": "b"}]
		}`)
	})

	page, err := client.List(context.Background(), "leads", &QueryOptions{
		Filter:      "statecode eq 0",
		Top:         10,
		Count:       true,
		MaxPageSize: 50,
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/data/v9.2/leads", gotPath)
	assert.Contains(t, gotQuery, "%24filter=statecode+eq+0")
	assert.Contains(t, gotQuery, "%24top=10")
	assert.Contains(t, gotQuery, "%24count=true")
	assert.Equal(t, "odata.maxpagesize=50", gotPrefer)

	require.NotNil(t, page.Count)
	assert.Equal(t, int64(2), *page.Count)
	require.Len(t, page.Value, 2)
	assert.Equal(t, "a", page.Value[0].String("subject"))
	assert.False(t, page.HasMore())
}

func TestClient_List_EmptyEntitySet(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for an empty entity set")
	})

	_, err := client.List(context.Background(), "  ", nil)

	assert.ErrorContains(t, err, "entity set name is required")
}

func TestClient_ListAll_FollowsNextLink(t *testing.T) {
	var requests int
	var prefers []string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		prefers = append(prefers, r.Header.Get("Prefer"))

		assert.Equal(t, "/api/data/v9.2/leads", r.URL.Path)
		// Pages share the path; only the skiptoken distinguishes them
		if r.URL.Query().Get("$skiptoken") == "" {
			fmt.Fprintf(w, `{"value": [{"subject": "page1"}], "@odata.nextLink": %q}`,
				server.URL+"/api/data/v9.2/leads?$skiptoken=abc")
			return
		}
		fmt.Fprint(w, `{"value": [{"subject": "page2"}]}`)
	}))
	t.Cleanup(server.Close)

	client, err := New(server.URL, &staticToken{token: "test-token"})
	require.NoError(t, err)

	records, err := client.ListAll(context.Background(), "leads",
		&QueryOptions{MaxPageSize: 1})

	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, records, 2)
	assert.Equal(t, "page1", records[0].String("subject"))
	assert.Equal(t, "page2", records[1].String("subject"))

	// The page size preference is a header, so every page fetch carries it
	assert.Equal(t, []string{"odata.maxpagesize=1", "odata.maxpagesize=1"}, prefers)
}

func TestClient_ListNext_EmptyLink(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {})

	_, err := client.ListNext(context.Background(), "", nil)

	assert.ErrorContains(t, err, "next link is empty")
}

func TestClient_Create(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("OData-EntityId",
			fmt.Sprintf("https://contoso.crm.dynamics.com/api/data/v9.2/leads(%s)", testRecordID))
		w.WriteHeader(http.StatusNoContent)
	})

	id, err := client.Create(context.Background(), "leads",
		map[string]any{"subject": "New enquiry"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json; charset=utf-8", gotContentType)
	assert.Equal(t, map[string]any{"subject": "New enquiry"}, gotBody)
	assert.Equal(t, testRecordID, id)
}

func TestClient_Create_MissingEntityIDHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.Create(context.Background(), "leads", map[string]any{"subject": "x"})

	assert.ErrorContains(t, err, "parse created record id")
}

func TestClient_CreateAndReturn(t *testing.T) {
	var gotPrefer string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"leadid": %q, "subject": "New enquiry"}`, testRecordID)
	})

	record, err := client.CreateAndReturn(context.Background(), "leads",
		map[string]any{"subject": "New enquiry"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "return=representation", gotPrefer)
	assert.Equal(t, testRecordID, record.ID("leadid"))
}

func TestClient_Update(t *testing.T) {
	var gotMethod, gotPath, gotIfMatch string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotIfMatch = r.Header.Get("If-Match")
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Update(context.Background(), "leads", testRecordID,
		map[string]any{"subject": "Follow up"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, fmt.Sprintf("/api/data/v9.2/leads(%s)", testRecordID), gotPath)
	assert.Equal(t, "*", gotIfMatch)
}

func TestClient_Update_MissingRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": "0x80040217", "message": "record not found"}}`)
	})

	err := client.Update(context.Background(), "leads", testRecordID,
		map[string]any{"subject": "x"})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Delete(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Delete(context.Background(), "leads", testRecordID)

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, fmt.Sprintf("/api/data/v9.2/leads(%s)", testRecordID), gotPath)
}

func TestClient_WhoAmI(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/data/v9.2/WhoAmI", r.URL.Path)
		fmt.Fprint(w, `{
			"UserId": "11111111-1111-1111-1111-111111111111",
			"BusinessUnitId": "22222222-2222-2222-2222-222222222222",
			"OrganizationId": "33333333-3333-3333-3333-333333333333"
		}`)
	})

	who, err := client.WhoAmI(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", who.UserID)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", who.BusinessUnitID)
	assert.Equal(t, "33333333-3333-3333-3333-333333333333", who.OrganizationID)
}

func TestClient_RateLimited_RecordsBackoff(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.List(context.Background(), "leads", nil)

	assert.ErrorIs(t, err, ErrRateLimited)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 30, apiErr.RetryAfter)

	// The limiter should now be in backoff
	assert.False(t, client.rateLimiter.Allow())
}

func TestClient_Unauthorised(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.WhoAmI(context.Background())

	assert.ErrorIs(t, err, ErrUnauthorised)
}

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{
			name:   "absolute url",
			header: fmt.Sprintf("https://contoso.crm.dynamics.com/api/data/v9.2/leads(%s)", testRecordID),
			want:   testRecordID,
		},
		{
			name:   "bare reference",
			header: fmt.Sprintf("leads(%s)", testRecordID),
			want:   testRecordID,
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "no parentheses",
			header:  "https://contoso.crm.dynamics.com/api/data/v9.2/leads",
			wantErr: true,
		},
		{
			name:    "not a guid",
			header:  "leads(42)",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseEntityID(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30, parseRetryAfter("30"))
	assert.Equal(t, 0, parseRetryAfter(""))
	assert.Equal(t, 0, parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"))
}
