package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/pipeline"
)

var (
	runAccountID string
	runName      string
	runModel     string
	runBrand     string
	runCategory  string
	runWait      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment pipeline for a single product",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runName == "" && runModel == "" {
			return eris.New("at least one of --name or --model is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		product, err := env.Store.CreateProduct(ctx, model.Product{
			AccountID: runAccountID,
			Name:      runName,
			Model:     runModel,
			Brand:     runBrand,
			Category:  runCategory,
		})
		if err != nil {
			return eris.Wrap(err, "create product")
		}

		zap.L().Info("product created", zap.String("product_id", product.ID))

		if err := env.Driver.Launch(ctx, runAccountID, product.ID, pipeline.PhaseProductAnalysis); err != nil {
			return eris.Wrap(err, "launch pipeline")
		}

		if !runWait {
			zap.L().Info("pipeline launched in background", zap.String("product_id", product.ID))
			return nil
		}

		final, err := waitForProduct(ctx, env, runAccountID, product.ID)
		if err != nil {
			return err
		}

		if calls, spend := env.Executor.AISpend(); calls > 0 {
			zap.L().Info("ai spend",
				zap.Int64("calls", calls),
				zap.Float64("total_usd", spend))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

// waitForProduct polls until the product reaches a terminal status.
func waitForProduct(ctx context.Context, env *pipelineEnv, accountID, productID string) (*model.Product, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "wait for product")
		case <-ticker.C:
			product, err := env.Store.GetProduct(ctx, accountID, productID)
			if err != nil {
				return nil, eris.Wrap(err, "get product")
			}
			if product == nil {
				return nil, &model.ProductNotFoundError{ProductID: productID}
			}
			switch product.Status {
			case model.ProductStatusCompleted, model.ProductStatusError, model.ProductStatusPaused:
				return product, nil
			}
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runAccountID, "account", "default", "owning account ID")
	runCmd.Flags().StringVar(&runName, "name", "", "product name")
	runCmd.Flags().StringVar(&runModel, "model", "", "product model number")
	runCmd.Flags().StringVar(&runBrand, "brand", "", "product brand")
	runCmd.Flags().StringVar(&runCategory, "category", "", "product category")
	runCmd.Flags().BoolVar(&runWait, "wait", true, "block until the pipeline finishes")
	rootCmd.AddCommand(runCmd)
}
