package graphql

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

type payload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func TestDoDecodesData(t *testing.T) {
	var gotBody payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"hello":"world"}}`))
	}))
	defer srv.Close()

	var out struct {
		Hello string `json:"hello"`
	}
	err := NewClient(srv.URL).Do(context.Background(), "query { hello }", map[string]any{"id": 1}, &out)
	require.NoError(t, err)
	assert.Equal(t, "world", out.Hello)
	assert.Equal(t, "query { hello }", gotBody.Query)
	assert.Equal(t, float64(1), gotBody.Variables["id"])
}

func TestDoAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ctx-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.Header.Get("authVersion"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTokenSource(ContextToken{Fallback: StaticToken("static")}))
	ctx := WithToken(context.Background(), "ctx-token")
	require.NoError(t, c.Do(ctx, "q", nil, nil, WithAuth()))
}

func TestDoWithoutAuthOptionSkipsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTokenSource(StaticToken("static")))
	require.NoError(t, c.Do(context.Background(), "q", nil, nil))
}

func TestDoURLOverride(t *testing.T) {
	hit := false
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer other.Close()

	c := NewClient("http://127.0.0.1:1/unreachable")
	require.NoError(t, c.Do(context.Background(), "q", nil, nil, WithURL(other.URL)))
	assert.True(t, hit)
}

func TestDoErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantAuth   bool
		wantString string
	}{
		{
			name:       "joined messages",
			body:       `{"errors":[{"message":"first"},{"message":"second"}]}`,
			wantString: "first, second",
		},
		{
			name:       "authentication required",
			body:       `{"errors":[{"message":"Authentication required."}]}`,
			wantAuth:   true,
			wantString: "Authentication required. Please sign in.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL).Do(context.Background(), "q", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, errors.Is(err, ErrAuthRequired))
			assert.Contains(t, err.Error(), tt.wantString)
		})
	}
}

func TestDoMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Do(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestDoFailsOnNon2xxStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "json body without errors", status: http.StatusInternalServerError, body: `{"message":"internal"}`},
		{name: "empty data", status: http.StatusServiceUnavailable, body: `{"data":{"records":[]}}`},
		{name: "graphql errors", status: http.StatusBadRequest, body: `{"errors":[{"message":"bad query"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out struct {
				Records []struct {
					TotalDonationAmount float64 `json:"totalDonationAmount"`
				} `json:"records"`
			}
			err := NewClient(srv.URL).Do(context.Background(), "q", nil, &out)
			require.Error(t, err)

			var gerr *Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.status, gerr.StatusCode)
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
			assert.Empty(t, out.Records)
		})
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient(srv.URL).Do(ctx, "q", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
