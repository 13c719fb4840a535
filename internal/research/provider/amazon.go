package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/amazon"
)

// AmazonProvider adapts the Amazon search API client to the Provider
// interface.
type AmazonProvider struct {
	client      amazon.Client
	configured  bool
	maxListings int
}

// NewAmazon creates the Amazon provider. configured should be false when no
// API key is present, which keeps the provider registered but inert.
func NewAmazon(client amazon.Client, configured bool, maxListings int) *AmazonProvider {
	if maxListings <= 0 {
		maxListings = 10
	}
	return &AmazonProvider{client: client, configured: configured, maxListings: maxListings}
}

func (p *AmazonProvider) Platform() string { return "amazon" }

func (p *AmazonProvider) Configured() bool { return p.configured }

func (p *AmazonProvider) Search(ctx context.Context, query model.SearchQuery) ([]model.PlatformListing, error) {
	resp, err := p.client.Search(ctx, amazon.SearchRequest{
		Query:      query.Term(),
		MaxResults: p.maxListings,
	})
	if err != nil {
		var apiErr *amazon.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "provider: amazon search")
	}

	listings := make([]model.PlatformListing, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Price.Value <= 0 {
			continue
		}
		listings = append(listings, model.PlatformListing{
			Platform: p.Platform(),
			Title:    r.Title,
			Price:    r.Price.Value,
			URL:      r.Link,
			Rating:   r.Rating,
			Verified: true,
		})
		if len(listings) >= p.maxListings {
			break
		}
	}
	return listings, nil
}
