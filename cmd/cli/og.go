package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/opengraph"
)

var (
	ogTemplateFile string
	ogVars         []string
	ogOut          string
)

var ogCmd = &cobra.Command{
	Use:   "og",
	Short: "Work with Open Graph image templates",
}

var renderOGCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template file to PNG",
	Long: `Render a template definition (the JSON accepted by the templates API) to a
PNG file. Variables are given as --var name=value and may be repeated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// rendering needs no database or configuration
		logger.InitializeForTest()

		f, err := os.Open(ogTemplateFile)
		if err != nil {
			return err
		}
		defer f.Close()

		vars, err := parseVars(ogVars)
		if err != nil {
			return err
		}
		out, err := os.Create(ogOut)
		if err != nil {
			return err
		}
		defer out.Close()

		svc := opengraph.NewService(nil, nil, opengraph.NewHTTPFetcher(10*time.Second))
		n, err := renderTemplate(cmd.Context(), svc, f, vars, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", ogOut, n)
		return nil
	},
}

func init() {
	renderOGCmd.Flags().StringVar(&ogTemplateFile, "template", "", "Template JSON file")
	renderOGCmd.Flags().StringArrayVar(&ogVars, "var", nil, "Template variable as name=value")
	renderOGCmd.Flags().StringVar(&ogOut, "out", "og.png", "Output PNG file")
	_ = renderOGCmd.MarkFlagRequired("template")
	ogCmd.AddCommand(renderOGCmd)
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", pair)
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

func renderTemplate(ctx context.Context, svc *opengraph.Service, src io.Reader, vars map[string]string, dst io.Writer) (int, error) {
	var t opengraph.Template
	if err := json.NewDecoder(src).Decode(&t); err != nil {
		return 0, fmt.Errorf("failed to parse template: %w", err)
	}
	data, err := svc.Draw(ctx, &t, vars, opengraph.SourceCLI)
	if err != nil {
		return 0, err
	}
	return dst.Write(data)
}
