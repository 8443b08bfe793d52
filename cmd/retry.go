package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/extract"
	"github.com/dealzen/deals-cli/internal/model"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-extract flyers pending retry",
	Long:  "Runs vision extraction again for every image in the retry queue that has attempts remaining, passing each batch back through the quality gate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		candidates, err := env.Queue.RetryCandidates(ctx, cfg.Retry.MaxAttempts)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			zap.L().Info("no retry candidates")
			return nil
		}
		zap.L().Info("retrying failed extractions", zap.Int("count", len(candidates)))

		extractor := extract.New(env.Anthropic, extract.Config{
			Model:      cfg.Anthropic.VisionModel,
			MaxTokens:  cfg.Anthropic.MaxTokens,
			RatePerMin: cfg.Process.RatePerMin,
		})

		var recovered []model.Deal
		for _, entry := range candidates {
			if _, err := os.Stat(entry.ImagePath); err != nil {
				zap.L().Warn("retry candidate image missing, skipping",
					zap.String("image", entry.ImagePath))
				continue
			}

			deals, err := extractor.ExtractFile(ctx, entry.ImagePath)
			if err != nil {
				zap.L().Error("retry extraction failed",
					zap.String("image", entry.ImageName), zap.Error(err))
				if qerr := env.Queue.RecordFailure(ctx, entry.ImagePath, err.Error(), 0, nil); qerr != nil {
					return qerr
				}
				continue
			}

			result, err := env.Gate.IngestBatch(ctx, entry.ImagePath, deals)
			if err != nil {
				return err
			}
			if result.Indexed {
				recovered = append(recovered, deals...)
			}
		}

		if len(recovered) > 0 {
			output := cfg.Process.OutputFile
			if err := mergeDeals(output, recovered); err != nil {
				return err
			}
			zap.L().Info("recovered deals merged",
				zap.Int("deals", len(recovered)),
				zap.String("output", output))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
