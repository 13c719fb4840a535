package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/pipeline"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/validate"
)

const accountHeader = "X-Account-ID"

// buildRouter assembles the HTTP API. Every product route requires the
// X-Account-ID header; account scoping happens in the store queries.
func buildRouter(env *pipelineEnv, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", accountHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := env.Store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := env.Collector.Collect(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Route("/products", func(r chi.Router) {
		r.Post("/", handleCreateProduct(env))
		r.Get("/", handleListProducts(env))

		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", handleGetProduct(env))
			r.Delete("/", handleDeleteProduct(env))
			r.Get("/phases", handleListPhases(env))
			r.Route("/phases/{phaseNumber}", func(r chi.Router) {
				r.Post("/start", handlePhaseStart(env))
				r.Post("/complete", handlePhaseComplete(env))
				r.Post("/fail", handlePhaseFail(env))
			})
			r.Get("/progress", handleGetProgress(env))
			r.Post("/research", handleResearch(env))
			r.Get("/research", handleGetResearch(env))
			r.Get("/seo", handleGetSeo(env))
			r.Get("/listing", handleGetListing(env))
			r.Post("/start", handleStart(env))
			r.Post("/pause", handlePause(env))
			r.Post("/resume", handleResume(env))
			r.Post("/retry", handleRetry(env))
			r.Post("/reset", handleReset(env))
		})
	})

	return r
}

func handleCreateProduct(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		var body struct {
			Name      string `json:"name"`
			Model     string `json:"model"`
			Brand     string `json:"brand"`
			Category  string `json:"category"`
			Autostart *bool  `json:"autostart"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Name == "" && body.Model == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name or model is required"})
			return
		}

		product, err := env.Store.CreateProduct(req.Context(), model.Product{
			AccountID: accountID,
			Name:      body.Name,
			Model:     body.Model,
			Brand:     body.Brand,
			Category:  body.Category,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		if body.Autostart == nil || *body.Autostart {
			if err := env.Driver.Launch(req.Context(), accountID, product.ID, pipeline.PhaseProductAnalysis); err != nil {
				zap.L().Warn("server: autostart failed",
					zap.String("product_id", product.ID),
					zap.Error(err))
			}
		}

		writeJSON(w, http.StatusCreated, product)
	}
}

func handleListProducts(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		filter := store.ProductFilter{
			Status: model.ProductStatus(req.URL.Query().Get("status")),
		}
		if limit := req.URL.Query().Get("limit"); limit != "" {
			filter.Limit, _ = strconv.Atoi(limit)
		}
		if offset := req.URL.Query().Get("offset"); offset != "" {
			filter.Offset, _ = strconv.Atoi(offset)
		}

		products, err := env.Store.ListProducts(req.Context(), accountID, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

func handleGetProduct(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		product, err := env.Store.GetProduct(req.Context(), accountID, chi.URLParam(req, "productID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if product == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		writeJSON(w, http.StatusOK, product)
	}
}

func handleDeleteProduct(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		if err := env.Store.DeleteProduct(req.Context(), accountID, chi.URLParam(req, "productID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListPhases(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		productID := chi.URLParam(req, "productID")
		product, err := env.Store.GetProduct(req.Context(), accountID, productID)
		if err != nil {
			writeError(w, err)
			return
		}
		if product == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}

		phases, err := env.Store.ListPhases(req.Context(), productID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"phases": phases})
	}
}

func handleGetResearch(env *pipelineEnv) http.HandlerFunc {
	return artifactHandler(env, func(req *http.Request, productID string) (any, error) {
		return env.Store.GetMarketResearch(req.Context(), productID)
	})
}

func handleGetSeo(env *pipelineEnv) http.HandlerFunc {
	return artifactHandler(env, func(req *http.Request, productID string) (any, error) {
		return env.Store.GetSeoAnalysis(req.Context(), productID)
	})
}

func handleGetListing(env *pipelineEnv) http.HandlerFunc {
	return artifactHandler(env, func(req *http.Request, productID string) (any, error) {
		return env.Store.GetListing(req.Context(), productID)
	})
}

// artifactHandler serves a per-product artifact after verifying ownership.
// fetch must return a typed nil-able pointer; nil means not produced yet.
func artifactHandler(env *pipelineEnv, fetch func(*http.Request, string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		productID := chi.URLParam(req, "productID")
		product, err := env.Store.GetProduct(req.Context(), accountID, productID)
		if err != nil {
			writeError(w, err)
			return
		}
		if product == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}

		artifact, err := fetch(req, productID)
		if err != nil {
			writeError(w, err)
			return
		}
		if isNil(artifact) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not available yet"})
			return
		}
		writeJSON(w, http.StatusOK, artifact)
	}
}

// phaseParam parses the {phaseNumber} route segment. A non-numeric value
// maps to the same error as an out-of-range phase.
func phaseParam(req *http.Request) (int, error) {
	raw := chi.URLParam(req, "phaseNumber")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &model.InvalidPhaseError{Phase: -1}
	}
	return n, nil
}

func handlePhaseStart(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}
		n, err := phaseParam(req)
		if err != nil {
			writeError(w, err)
			return
		}
		phase, err := env.Machine.StartPhase(req.Context(), accountID, chi.URLParam(req, "productID"), n)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, phase)
	}
}

func handlePhaseComplete(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}
		n, err := phaseParam(req)
		if err != nil {
			writeError(w, err)
			return
		}
		productID := chi.URLParam(req, "productID")
		if err := env.Machine.CompletePhase(req.Context(), accountID, productID, n); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "product_id": productID})
	}
}

func handlePhaseFail(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}
		n, err := phaseParam(req)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Message == "" {
			body.Message = "failed via API"
		}
		productID := chi.URLParam(req, "productID")
		if err := env.Machine.FailPhase(req.Context(), accountID, productID, n, body.Message); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "product_id": productID})
	}
}

func handleGetProgress(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}
		productID := chi.URLParam(req, "productID")
		product, err := env.Store.GetProduct(req.Context(), accountID, productID)
		if err != nil {
			writeError(w, err)
			return
		}
		if product == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		phases, err := env.Store.ListPhases(req.Context(), productID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"product_id":          productID,
			"status":              product.Status,
			"current_phase":       product.CurrentPhase,
			"progress":            pipeline.ComputeProgress(phases),
			"is_pipeline_running": product.IsPipelineRunning,
		})
	}
}

// handleResearch runs market data acquisition synchronously, outside a
// pipeline run. The record is cleaned and persisted like phase 2 output.
func handleResearch(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}
		productID := chi.URLParam(req, "productID")
		product, err := env.Store.GetProduct(req.Context(), accountID, productID)
		if err != nil {
			writeError(w, err)
			return
		}
		if product == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}

		rec, err := env.Selector.AcquireMarketData(req.Context(), product.SearchAttributes())
		if err != nil {
			writeError(w, err)
			return
		}
		rec.ProductID = productID

		cleaned := validate.CleanResearch(*rec)
		if err := env.Store.SaveMarketResearch(req.Context(), &cleaned.Cleaned); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cleaned.Cleaned)
	}
}

func handleStart(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		phase := pipeline.PhaseProductAnalysis
		var body struct {
			Phase int `json:"phase"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err == nil && body.Phase != 0 {
			phase = body.Phase
		}

		productID := chi.URLParam(req, "productID")
		if err := env.Driver.Launch(req.Context(), accountID, productID, phase); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "product_id": productID})
	}
}

func handlePause(env *pipelineEnv) http.HandlerFunc {
	return productAction(env, "paused", func(req *http.Request, accountID, productID string) error {
		return env.Driver.Pause(req.Context(), accountID, productID)
	})
}

func handleResume(env *pipelineEnv) http.HandlerFunc {
	return productAction(env, "resumed", func(req *http.Request, accountID, productID string) error {
		return env.Driver.Resume(req.Context(), accountID, productID)
	})
}

func handleRetry(env *pipelineEnv) http.HandlerFunc {
	return productAction(env, "retrying", func(req *http.Request, accountID, productID string) error {
		return env.Driver.Retry(req.Context(), accountID, productID)
	})
}

func handleReset(env *pipelineEnv) http.HandlerFunc {
	return productAction(env, "reset", func(req *http.Request, accountID, productID string) error {
		return env.Driver.Reset(req.Context(), accountID, productID)
	})
}

func productAction(env *pipelineEnv, status string, action func(*http.Request, string, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		accountID, ok := requireAccount(w, req)
		if !ok {
			return
		}

		productID := chi.URLParam(req, "productID")
		if err := action(req, accountID, productID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": status, "product_id": productID})
	}
}

func requireAccount(w http.ResponseWriter, req *http.Request) (string, bool) {
	accountID := req.Header.Get(accountHeader)
	if accountID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": accountHeader + " header is required"})
		return "", false
	}
	return accountID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *model.ProductNotFoundError
	var invalidPhase *model.InvalidPhaseError
	var unavailable *model.ResearchUnavailableError
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &invalidPhase):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, pipeline.ErrTooManyRuns):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func isNil(v any) bool {
	switch a := v.(type) {
	case nil:
		return true
	case *model.MarketResearchRecord:
		return a == nil
	case *model.SeoAnalysisRecord:
		return a == nil
	case *model.ListingRecord:
		return a == nil
	}
	return false
}
