package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/middleware/validation"
	"github.com/instant-tutor/backend/internal/storage/models"
	appLogger "github.com/instant-tutor/backend/pkg/logger"
)

var (
	ingestCourse string
	ingestTitle  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest --course <id> <locator>...",
	Short: "Ingest media or transcripts for a course and wait for the result",
	Example: `  instant-tutor ingest --course MATH_101 https://cdn.example.com/lecture1.mp4
  instant-tutor ingest --course MATH_101 --title "Calculus I" ./notes/week1.html ./captions/week1.vtt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestCourse, "course", "", "course id (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "course title stored with the course metadata")
	_ = ingestCmd.MarkFlagRequired("course")
}

func runIngest(cmd *cobra.Command, locators []string) error {
	for _, l := range locators {
		if !validation.IsValidLocator(l) {
			return fmt.Errorf("invalid locator %q", l)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer comps.close(context.Background())

	if comps.store != nil && ingestTitle != "" {
		err := comps.store.UpsertCourse(ctx, &models.Course{
			CourseID:   ingestCourse,
			Title:      ingestTitle,
			Language:   "english",
			Difficulty: "intermediate",
			VideoCount: len(locators),
		})
		if err != nil {
			appLogger.Warn("Failed to store course metadata", zap.Error(err))
		}
	}

	job, err := comps.queue.Process(ctx, ingestCourse, locators)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return err
	}

	if job.Status != models.JobSucceeded {
		return fmt.Errorf("ingestion %s: %s", job.Status, job.Error)
	}
	return nil
}
