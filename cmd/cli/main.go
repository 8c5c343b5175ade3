package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/kernel"
	"github.com/zfogg/beacon/internal/logger"
)

var output = "text" // "text" or "json"

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon CLI - inspect organizations, connections and Open Graph templates",
	Long: `Beacon CLI works directly against the database and providers configured
in the environment (or .env). It is meant for operators, not end users.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	rootCmd.AddCommand(orgsCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(ogCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadKernel builds the services from the environment. Logs go to the log
// file only so they do not mix with command output.
func loadKernel(ctx context.Context) (*kernel.Kernel, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.InitializeFileOnly(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, err
	}
	return kernel.Build(ctx, cfg)
}

// withKernel runs fn with a kernel and releases it afterwards.
func withKernel(cmd *cobra.Command, fn func(ctx context.Context, k *kernel.Kernel) error) error {
	ctx := cmd.Context()
	k, err := loadKernel(ctx)
	if err != nil {
		return err
	}
	defer k.Cleanup(context.Background())
	return fn(ctx, k)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
