package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/instant-tutor/backend/internal/evaluation"
	"github.com/instant-tutor/backend/internal/query"
	appLogger "github.com/instant-tutor/backend/pkg/logger"
)

var evaluateJSON bool

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <dataset.json>",
	Short: "Score the configured query engine against a labelled question set",
	Example: `  instant-tutor evaluate testdata/math101.json
  instant-tutor evaluate --json testdata/math101.json > report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "print the full report as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	dataset, err := evaluation.LoadDataset(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap(ctx, cfg, !cfg.IsDemo())
	if err != nil {
		return err
	}
	defer comps.close(context.Background())

	var embedder evaluation.Embedder
	if comps.llm != nil {
		embedder = comps.llm
	}

	// evaluation runs stay out of the query log and analytics
	deps := comps.engineDeps()
	deps.Logs = nil

	report, err := evaluation.NewEvaluator(query.NewEngine(deps), embedder).Run(ctx, dataset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if evaluateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err = fmt.Fprint(out, evaluation.FormatReport(report))
	return err
}
