// Package amazon is a thin client for an Amazon product search API
// (Rainforest-style). It is treated as a black-box service: the pipeline
// only relies on the documented search contract.
package amazon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.rainforestapi.com"

// Client performs product searches against the Amazon search API.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes a product search.
type SearchRequest struct {
	Query      string
	MaxResults int
}

// SearchResponse is the response from GET /request?type=search.
type SearchResponse struct {
	Results []Result `json:"search_results"`
}

// Result is a single product search result.
type Result struct {
	Title  string  `json:"title"`
	Link   string  `json:"link"`
	Price  Price   `json:"price"`
	Rating float64 `json:"rating"`
}

// Price holds the listing price.
type Price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// APIError is returned for non-2xx responses so callers can classify
// retryable statuses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "amazon: unexpected status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Amazon search API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "amazon: rate limit wait")
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("type", "search")
	q.Set("amazon_domain", "amazon.com")
	q.Set("search_term", req.Query)
	if req.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(req.MaxResults))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/request?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "amazon: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "amazon: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "amazon: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "amazon: unmarshal response")
	}

	return &result, nil
}
