package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealzen/deals-cli/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show retry queue status",
	Long:  "Prints the extraction retry queue: successfully processed images, pending retry candidates, and permanent failures needing manual review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Queue.Summary(ctx, cfg.Retry.MaxAttempts)
		if err != nil {
			return err
		}
		printQueueSummary(cmd, summary)
		return nil
	},
}

func printQueueSummary(cmd *cobra.Command, s *queue.Summary) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\n"+reportRule)
	fmt.Fprintln(out, "RETRY QUEUE SUMMARY")
	fmt.Fprintln(out, reportRule)

	fmt.Fprintf(out, "\nSuccessfully Processed: %d\n", s.Succeeded)
	fmt.Fprintf(out, "Pending Retry: %d\n", s.PendingRetry)
	fmt.Fprintf(out, "Permanent Failures: %d\n", s.PermanentFailures)
	fmt.Fprintf(out, "Total in Retry Queue: %d\n", s.TotalPending)

	if len(s.RetryCandidates) > 0 {
		fmt.Fprintln(out, "\nRetry Candidates:")
		for _, e := range s.RetryCandidates {
			fmt.Fprintf(out, "   - %s\n", e.ImageName)
			fmt.Fprintf(out, "     Attempts: %d, Last Score: %d\n", e.AttemptCount, e.LastScore)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(out, "\nPermanent Failures (need manual review):")
		for _, e := range s.Failures {
			fmt.Fprintf(out, "   - %s\n", e.ImageName)
			fmt.Fprintf(out, "     Attempts: %d, Last Score: %d\n", e.AttemptCount, e.LastScore)
			fmt.Fprintf(out, "     Reason: %s\n", e.LastReason)
		}
	}

	fmt.Fprintln(out, reportRule)
}

func init() {
	rootCmd.AddCommand(queueCmd)
}
