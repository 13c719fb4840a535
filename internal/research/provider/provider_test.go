package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/amazon"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/ebay"
)

type stubProvider struct {
	platform   string
	configured bool
}

func (s *stubProvider) Platform() string  { return s.platform }
func (s *stubProvider) Configured() bool  { return s.configured }
func (s *stubProvider) Search(context.Context, model.SearchQuery) ([]model.PlatformListing, error) {
	return nil, nil
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{platform: "ebay"})
	r.Register(&stubProvider{platform: "amazon"})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "ebay", list[0].Platform())
	assert.Equal(t, "amazon", list[1].Platform())
}

func TestRegistry_ReRegisterReplacesWithoutDuplicating(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{platform: "amazon", configured: false})
	r.Register(&stubProvider{platform: "amazon", configured: true})

	require.Len(t, r.List(), 1)
	assert.True(t, r.Get("amazon").Configured())
}

func TestRegistry_AnyConfigured(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.AnyConfigured())

	r.Register(&stubProvider{platform: "amazon", configured: false})
	assert.False(t, r.AnyConfigured())

	r.Register(&stubProvider{platform: "ebay", configured: true})
	assert.True(t, r.AnyConfigured())
}

func TestRegistry_GetUnknownIsNil(t *testing.T) {
	assert.Nil(t, NewRegistry().Get("walmart"))
}

type stubAmazonClient struct {
	resp *amazon.SearchResponse
	err  error
	got  amazon.SearchRequest
}

func (s *stubAmazonClient) Search(_ context.Context, req amazon.SearchRequest) (*amazon.SearchResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestAmazonProvider_Search(t *testing.T) {
	client := &stubAmazonClient{resp: &amazon.SearchResponse{
		Results: []amazon.Result{
			{Title: "Air Fryer XL", Link: "https://amazon.com/dp/1", Price: amazon.Price{Value: 129.99}, Rating: 4.5},
			{Title: "No price listed", Link: "https://amazon.com/dp/2", Price: amazon.Price{Value: 0}},
			{Title: "Air Fryer XL Bundle", Link: "https://amazon.com/dp/3", Price: amazon.Price{Value: 149.99}, Rating: 4.2},
		},
	}}
	p := NewAmazon(client, true, 10)

	listings, err := p.Search(context.Background(), model.SearchQuery{Name: "Air Fryer XL", Brand: "CrispCo", Model: "AF-2000"})
	require.NoError(t, err)

	assert.Equal(t, "CrispCo Air Fryer XL AF-2000", client.got.Query)

	require.Len(t, listings, 2)
	assert.Equal(t, "amazon", listings[0].Platform)
	assert.Equal(t, 129.99, listings[0].Price)
	assert.Equal(t, 4.5, listings[0].Rating)
	assert.True(t, listings[0].Verified)
}

func TestAmazonProvider_CapsListings(t *testing.T) {
	results := make([]amazon.Result, 8)
	for i := range results {
		results[i] = amazon.Result{Title: "Item", Price: amazon.Price{Value: 10}}
	}
	p := NewAmazon(&stubAmazonClient{resp: &amazon.SearchResponse{Results: results}}, true, 3)

	listings, err := p.Search(context.Background(), model.SearchQuery{Name: "Item"})
	require.NoError(t, err)
	assert.Len(t, listings, 3)
}

func TestAmazonProvider_TransientStatusIsClassified(t *testing.T) {
	p := NewAmazon(&stubAmazonClient{err: &amazon.APIError{StatusCode: 503, Body: "busy"}}, true, 10)

	_, err := p.Search(context.Background(), model.SearchQuery{Name: "Item"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestAmazonProvider_ClientErrorIsPermanent(t *testing.T) {
	p := NewAmazon(&stubAmazonClient{err: &amazon.APIError{StatusCode: 401, Body: "bad key"}}, true, 10)

	_, err := p.Search(context.Background(), model.SearchQuery{Name: "Item"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

type stubEbayClient struct {
	resp *ebay.SearchResponse
	err  error
	got  ebay.SearchRequest
}

func (s *stubEbayClient) Search(_ context.Context, req ebay.SearchRequest) (*ebay.SearchResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestEbayProvider_Search(t *testing.T) {
	client := &stubEbayClient{resp: &ebay.SearchResponse{
		ItemSummaries: []ebay.ItemSummary{
			{
				Title:      "Air Fryer XL (Used)",
				ItemWebURL: "https://ebay.com/itm/1",
				Condition:  "Used",
				Price:      ebay.Price{Value: "89.50", Currency: "USD"},
				Seller:     ebay.Seller{FeedbackPercentage: "95"},
			},
			{
				Title: "Broken price",
				Price: ebay.Price{Value: "not-a-number"},
			},
			{
				Title: "Free listing",
				Price: ebay.Price{Value: "0"},
			},
		},
	}}
	p := NewEbay(client, true, 10)

	listings, err := p.Search(context.Background(), model.SearchQuery{Name: "Air Fryer XL"})
	require.NoError(t, err)

	assert.Equal(t, 10, client.got.Limit)

	require.Len(t, listings, 1)
	got := listings[0]
	assert.Equal(t, "ebay", got.Platform)
	assert.Equal(t, 89.50, got.Price)
	assert.Equal(t, "Used", got.Condition)
	assert.InDelta(t, 4.75, got.Rating, 0.001)
	assert.True(t, got.Verified)
}

func TestEbayProvider_MissingFeedbackLeavesZeroRating(t *testing.T) {
	client := &stubEbayClient{resp: &ebay.SearchResponse{
		ItemSummaries: []ebay.ItemSummary{
			{Title: "Anonymous seller", Price: ebay.Price{Value: "25.00"}},
		},
	}}
	p := NewEbay(client, true, 10)

	listings, err := p.Search(context.Background(), model.SearchQuery{Name: "Item"})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Zero(t, listings[0].Rating)
}

func TestEbayProvider_TransientStatusIsClassified(t *testing.T) {
	p := NewEbay(&stubEbayClient{err: &ebay.APIError{StatusCode: 429, Body: "slow down"}}, true, 10)

	_, err := p.Search(context.Background(), model.SearchQuery{Name: "Item"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
