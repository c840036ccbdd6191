package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		APIKey:     "sk-test",
		APIBaseURL: srv.URL,
		Model:      "gpt-4o-mini",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestCompleteSendsConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hi there!"}}]}`)
	}))
	defer srv.Close()

	reply, err := newTestClient(srv).Complete(context.Background(), []Message{
		{Role: "system", Content: "You are Nova."},
		{Role: "user", Content: "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", reply)
}

func TestCompleteSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Complete(context.Background(), []Message{{Role: "user", Content: "Hello"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Complete(context.Background(), []Message{{Role: "user", Content: "Hello"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteRequiresConfiguration(t *testing.T) {
	c := &Client{APIBaseURL: "https://api.invalid", Model: "gpt-4o-mini", HTTPClient: http.DefaultClient}
	if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "Hello"}}); err == nil {
		t.Fatalf("expected error without api key")
	}

	c.APIKey = "sk-test"
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty conversation")
	}
}
