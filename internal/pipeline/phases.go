package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/config"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/cost"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/research"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/validate"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/anthropic"
)

// PhaseExecutor runs phase bodies: product analysis, market research, SEO
// generation, and listing assembly. Every persisted write is preceded by a
// cancellation token check.
type PhaseExecutor struct {
	store    store.Store
	selector *research.Selector
	ai       anthropic.Client
	aiCfg    config.AnthropicConfig
	costs    *cost.Tracker
}

// NewPhaseExecutor wires the phase bodies. ai may be nil when no Anthropic
// key is configured; AI-dependent steps then fall back to heuristics.
func NewPhaseExecutor(st store.Store, selector *research.Selector, ai anthropic.Client, aiCfg config.AnthropicConfig) *PhaseExecutor {
	return &PhaseExecutor{store: st, selector: selector, ai: ai, aiCfg: aiCfg, costs: cost.NewTracker()}
}

// AISpend returns the cumulative Anthropic call count and estimated cost.
func (e *PhaseExecutor) AISpend() (calls int64, totalUSD float64) {
	return e.costs.Totals()
}

func (e *PhaseExecutor) recordSpend(step string, productID string, resp *anthropic.MessageResponse) {
	c := e.costs.Record(e.aiCfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	zap.L().Debug("ai call",
		zap.String("step", step),
		zap.String("product_id", productID),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("cost_usd", c))
}

// Execute dispatches to the body for phaseNumber.
func (e *PhaseExecutor) Execute(ctx context.Context, token *CancelToken, product *model.Product, phaseNumber int) error {
	switch phaseNumber {
	case PhaseProductAnalysis:
		return e.runAnalysis(ctx, token, product)
	case PhaseMarketResearch:
		return e.runResearch(ctx, token, product)
	case PhaseSeoAnalysis:
		return e.runSeo(ctx, token, product)
	case PhaseListing:
		return e.runListing(ctx, token, product)
	default:
		return &model.InvalidPhaseError{Phase: phaseNumber}
	}
}

// Phase 1: validate the submitted metadata and score identification
// confidence.
func (e *PhaseExecutor) runAnalysis(ctx context.Context, token *CancelToken, product *model.Product) error {
	result := validate.CleanProduct(validate.ProductFields{
		Name:     product.Name,
		Model:    product.Model,
		Brand:    product.Brand,
		Category: product.Category,
	})
	if !result.IsValid {
		return eris.Errorf("analysis: product metadata invalid: %s", strings.Join(result.Errors, "; "))
	}
	for _, w := range result.Warnings {
		zap.L().Warn("analysis: field warning",
			zap.String("product_id", product.ID),
			zap.String("warning", w))
	}

	confidence, err := e.scoreConfidence(ctx, product, result)
	if err != nil {
		return err
	}

	if token.Cancelled() {
		return ErrRunCancelled
	}
	if err := e.store.SetProductConfidence(ctx, product.AccountID, product.ID, confidence); err != nil {
		return err
	}

	if validate.NeedsManualReview(result.Result, confidence) {
		zap.L().Warn("analysis: product flagged for manual review",
			zap.String("product_id", product.ID),
			zap.Int("confidence", confidence),
			zap.Int("warnings", len(result.Warnings)))
	}
	return nil
}

type analysisPayload struct {
	Confidence int `json:"confidence"`
}

const analysisSystemText = "You score how confidently a secondhand product can be identified from its metadata. Return a JSON object with a single integer field \"confidence\" from 0 to 100."

// scoreConfidence asks the model for an identification confidence. Without
// an AI client it falls back to a field-count heuristic.
func (e *PhaseExecutor) scoreConfidence(ctx context.Context, product *model.Product, result validate.ProductResult) (int, error) {
	if e.ai == nil {
		score := 25
		for _, f := range []string{result.Cleaned.Name, result.Cleaned.Model, result.Cleaned.Brand, result.Cleaned.Category} {
			if f != "" {
				score += 15
			}
		}
		if score > 100 {
			score = 100
		}
		return score, nil
	}

	prompt := fmt.Sprintf(
		"Product metadata:\nName: %s\nModel: %s\nBrand: %s\nCategory: %s\n\nReturn a JSON object: {\"confidence\": 0-100}",
		result.Cleaned.Name, result.Cleaned.Model, result.Cleaned.Brand, result.Cleaned.Category,
	)
	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.aiCfg.Model,
		MaxTokens: e.aiCfg.MaxTokens,
		System:    analysisSystemText,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return 0, eris.Wrap(err, "analysis: score confidence")
	}
	e.recordSpend("analysis", product.ID, resp)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(resp.Text())), &payload); err != nil {
		return 0, eris.Wrap(err, "analysis: parse confidence")
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 100 {
		payload.Confidence = 100
	}
	return payload.Confidence, nil
}

// Phase 2: acquire market data through the selector. When every acquisition
// path fails the error surfaces and nothing is written, so a prior research
// record is never overwritten with empty data.
func (e *PhaseExecutor) runResearch(ctx context.Context, token *CancelToken, product *model.Product) error {
	rec, err := e.selector.AcquireMarketData(ctx, product.SearchAttributes())
	if err != nil {
		return err
	}
	rec.ProductID = product.ID

	cleaned := validate.CleanResearch(*rec)
	for _, w := range cleaned.Warnings {
		zap.L().Warn("research: field warning",
			zap.String("product_id", product.ID),
			zap.String("warning", w))
	}

	if token.Cancelled() {
		return ErrRunCancelled
	}
	return e.store.SaveMarketResearch(ctx, &cleaned.Cleaned)
}

type seoPayload struct {
	SeoTitle        string   `json:"seo_title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	ContentScore    int      `json:"content_score"`
}

const seoSystemText = "You write SEO content for secondhand marketplace product listings. Return a valid JSON object matching the requested schema."

// Phase 3: generate SEO content from the product and its market research.
func (e *PhaseExecutor) runSeo(ctx context.Context, token *CancelToken, product *model.Product) error {
	rec := &model.SeoAnalysisRecord{ProductID: product.ID}

	if e.ai == nil {
		rec.SeoTitle = product.SearchAttributes().Term()
		rec.Keywords = seoKeywordFallback(product)
		rec.ContentScore = 40
	} else {
		market, err := e.store.GetMarketResearch(ctx, product.ID)
		if err != nil {
			return err
		}

		prompt := fmt.Sprintf(
			`Write SEO content for this product listing:

Name: %s
Model: %s
Brand: %s
Category: %s
%s
Return a valid JSON object:
{"seo_title": "...", "meta_description": "...", "keywords": ["..."], "content_score": 0-100}

seo_title under 60 characters, meta_description under 160, 5-10 keywords.`,
			product.Name, product.Model, product.Brand, product.Category, marketContext(market),
		)
		resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.aiCfg.Model,
			MaxTokens: e.aiCfg.MaxTokens,
			System:    seoSystemText,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return eris.Wrap(err, "seo: create message")
		}
		e.recordSpend("seo", product.ID, resp)

		var payload seoPayload
		if err := json.Unmarshal([]byte(anthropic.CleanJSON(resp.Text())), &payload); err != nil {
			return eris.Wrap(err, "seo: parse content")
		}
		rec.SeoTitle = payload.SeoTitle
		rec.MetaDescription = payload.MetaDescription
		rec.Keywords = payload.Keywords
		rec.ContentScore = payload.ContentScore
	}

	if token.Cancelled() {
		return ErrRunCancelled
	}
	return e.store.SaveSeoAnalysis(ctx, rec)
}

// Phase 4: assemble the publishable listing from the earlier phase outputs.
func (e *PhaseExecutor) runListing(ctx context.Context, token *CancelToken, product *model.Product) error {
	market, err := e.store.GetMarketResearch(ctx, product.ID)
	if err != nil {
		return err
	}
	seo, err := e.store.GetSeoAnalysis(ctx, product.ID)
	if err != nil {
		return err
	}

	listing := &model.ListingRecord{
		ProductID: product.ID,
		Title:     product.SearchAttributes().Term(),
	}
	if seo != nil {
		if seo.SeoTitle != "" {
			listing.Title = seo.SeoTitle
		}
		listing.Description = seo.MetaDescription
		listing.Tags = seo.Keywords
	}
	if market != nil {
		listing.Price = market.AverageMarketPrice
	}

	// A listing is publishable when identification confidence is adequate
	// and its market price came from somewhere.
	listing.Publishable = product.AIConfidence >= 50 && listing.Price > 0
	if market != nil && market.DataSource == model.DataSourceFake {
		zap.L().Warn("listing: price is AI-estimated",
			zap.String("product_id", product.ID),
			zap.Float64("price", listing.Price))
	}

	if token.Cancelled() {
		return ErrRunCancelled
	}
	return e.store.SaveListing(ctx, listing)
}

func marketContext(market *model.MarketResearchRecord) string {
	if market == nil {
		return ""
	}
	return fmt.Sprintf("\nMarket context: average price $%.2f, demand %s, %d competing listings.\n",
		market.AverageMarketPrice, market.MarketDemand, market.CompetitorCount)
}

func seoKeywordFallback(product *model.Product) []string {
	var kw []string
	for _, f := range []string{product.Brand, product.Name, product.Model, product.Category} {
		f = strings.TrimSpace(strings.ToLower(f))
		if f != "" {
			kw = append(kw, f)
		}
	}
	return kw
}
