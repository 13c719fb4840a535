package provider

import (
	"context"
	"errors"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/ebay"
)

// EbayProvider adapts the eBay Browse API client to the Provider interface.
type EbayProvider struct {
	client      ebay.Client
	configured  bool
	maxListings int
}

// NewEbay creates the eBay provider.
func NewEbay(client ebay.Client, configured bool, maxListings int) *EbayProvider {
	if maxListings <= 0 {
		maxListings = 10
	}
	return &EbayProvider{client: client, configured: configured, maxListings: maxListings}
}

func (p *EbayProvider) Platform() string { return "ebay" }

func (p *EbayProvider) Configured() bool { return p.configured }

func (p *EbayProvider) Search(ctx context.Context, query model.SearchQuery) ([]model.PlatformListing, error) {
	resp, err := p.client.Search(ctx, ebay.SearchRequest{
		Query: query.Term(),
		Limit: p.maxListings,
	})
	if err != nil {
		var apiErr *ebay.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "provider: ebay search")
	}

	listings := make([]model.PlatformListing, 0, len(resp.ItemSummaries))
	for _, item := range resp.ItemSummaries {
		price, perr := strconv.ParseFloat(item.Price.Value, 64)
		if perr != nil || price <= 0 {
			continue
		}
		var rating float64
		if item.Seller.FeedbackPercentage != "" {
			// Feedback percentage maps onto a 0-5 rating scale.
			if pct, ferr := strconv.ParseFloat(item.Seller.FeedbackPercentage, 64); ferr == nil {
				rating = pct / 20
			}
		}
		listings = append(listings, model.PlatformListing{
			Platform:  p.Platform(),
			Title:     item.Title,
			Price:     price,
			URL:       item.ItemWebURL,
			Condition: item.Condition,
			Rating:    rating,
			Verified:  true,
		})
		if len(listings) >= p.maxListings {
			break
		}
	}
	return listings, nil
}
