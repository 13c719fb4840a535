package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
)

var (
	productAccountID string
	productStatusArg string
	productLimit     int
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Inspect and control product pipelines",
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products for an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		products, err := st.ListProducts(ctx, productAccountID, store.ProductFilter{
			Status: model.ProductStatus(productStatusArg),
			Limit:  productLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list products")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(products)
	},
}

var productStatusCmd = &cobra.Command{
	Use:   "status <product-id>",
	Short: "Show a product and its pipeline phases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		productID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		product, err := st.GetProduct(ctx, productAccountID, productID)
		if err != nil {
			return eris.Wrap(err, "get product")
		}
		if product == nil {
			return &model.ProductNotFoundError{ProductID: productID}
		}

		phases, err := st.ListPhases(ctx, productID)
		if err != nil {
			return eris.Wrap(err, "list phases")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"product": product,
			"phases":  phases,
		})
	},
}

var productRetryCmd = &cobra.Command{
	Use:   "retry <product-id>",
	Short: "Retry a failed product from the phase that errored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(env *pipelineEnv) error {
			if err := env.Driver.Retry(cmd.Context(), productAccountID, args[0]); err != nil {
				return err
			}
			zap.L().Info("retry launched", zap.String("product_id", args[0]))
			return waitAndPrint(cmd, env, args[0])
		})
	},
}

var productPauseCmd = &cobra.Command{
	Use:   "pause <product-id>",
	Short: "Pause a running product pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(env *pipelineEnv) error {
			return env.Driver.Pause(cmd.Context(), productAccountID, args[0])
		})
	},
}

var productResumeCmd = &cobra.Command{
	Use:   "resume <product-id>",
	Short: "Resume a paused product pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(env *pipelineEnv) error {
			if err := env.Driver.Resume(cmd.Context(), productAccountID, args[0]); err != nil {
				return err
			}
			return waitAndPrint(cmd, env, args[0])
		})
	},
}

var productResetCmd = &cobra.Command{
	Use:   "reset <product-id>",
	Short: "Reset a product pipeline back to phase 1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(env *pipelineEnv) error {
			return env.Driver.Reset(cmd.Context(), productAccountID, args[0])
		})
	},
}

// withEnv initializes the full pipeline environment for commands that drive
// background runs, and tears it down afterwards.
func withEnv(cmd *cobra.Command, fn func(*pipelineEnv) error) error {
	env, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

func waitAndPrint(cmd *cobra.Command, env *pipelineEnv, productID string) error {
	product, err := waitForProduct(cmd.Context(), env, productAccountID, productID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(product)
}

func init() {
	productCmd.PersistentFlags().StringVar(&productAccountID, "account", "default", "owning account ID")
	productListCmd.Flags().StringVar(&productStatusArg, "status", "", "filter by status")
	productListCmd.Flags().IntVar(&productLimit, "limit", 50, "maximum products to return")

	productCmd.AddCommand(productListCmd, productStatusCmd, productRetryCmd,
		productPauseCmd, productResumeCmd, productResetCmd)
	rootCmd.AddCommand(productCmd)
}
