package amazon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "search", q.Get("type"))
		assert.Equal(t, "CrispCo Air Fryer AF-2000", q.Get("search_term"))
		assert.Equal(t, "5", q.Get("max_results"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"search_results": [
				{"title": "Air Fryer XL", "link": "https://amazon.com/dp/1", "price": {"value": 99.99, "currency": "USD"}, "rating": 4.5},
				{"title": "Air Fryer Basic", "link": "https://amazon.com/dp/2", "price": {"value": 49.99, "currency": "USD"}, "rating": 4.1}
			]
		}`))
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL), WithRateLimit(1000))

	resp, err := c.Search(context.Background(), SearchRequest{
		Query:      "CrispCo Air Fryer AF-2000",
		MaxResults: 5,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Air Fryer XL", resp.Results[0].Title)
	assert.Equal(t, 99.99, resp.Results[0].Price.Value)
	assert.Equal(t, 4.5, resp.Results[0].Rating)
}

func TestSearch_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL), WithRateLimit(1000))

	_, err := c.Search(context.Background(), SearchRequest{Query: "anything"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rate limited")
}

func TestSearch_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	c := NewClient("test-key", WithBaseURL(ts.URL), WithRateLimit(1000))

	_, err := c.Search(context.Background(), SearchRequest{Query: "anything"})
	assert.Error(t, err)
}

func TestSearch_ContextCancelled(t *testing.T) {
	c := NewClient("test-key", WithRateLimit(0.001))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, SearchRequest{Query: "anything"})
	assert.Error(t, err)
}
