package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/model"
	"github.com/dealzen/deals-cli/internal/validate"
)

var ingestRecreate bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <deals-file>",
	Short: "Index a deals file into the search engine",
	Long:  "Validates a deals file, normalizes dates, builds the search text per deal, and batch-inserts the accepted deals into the hybrid search collection.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read deals file %s", args[0])
		}
		deals, err := model.ParseBatch(data)
		if err != nil {
			return eris.Wrapf(err, "parse deals file %s", args[0])
		}

		if ingestRecreate {
			zap.L().Info("recreating search collection", zap.String("collection", cfg.Weaviate.Collection))
			if err := env.Search.DeleteCollection(ctx); err != nil {
				return err
			}
		}

		report := env.Validator.Validate(deals)
		printReport(cmd, report)
		if report.Decision == validate.DecisionReject {
			zap.L().Error("deals file rejected by quality gate, nothing indexed",
				zap.String("file", args[0]),
				zap.Int("score", report.Score))
			exitCode = 1
			return nil
		}

		inserted, failed, err := env.Gate.Index(ctx, deals)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.String("file", args[0]),
			zap.Int("inserted", inserted),
			zap.Int("failed", failed))
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "drop and recreate the search collection before indexing")
	rootCmd.AddCommand(ingestCmd)
}
