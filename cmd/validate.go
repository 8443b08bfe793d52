package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dealzen/deals-cli/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <deals-file>",
	Short: "Run the quality gate over a deals file",
	Long:  "Scores an extracted deals file against the quality criteria and prints the decision. Exit code 0 on ACCEPT, 2 on RETRY, 1 on REJECT.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		valCfg := validate.DefaultConfig()
		if rulesFile != "" {
			if err := validate.LoadRules(rulesFile, &valCfg); err != nil {
				return err
			}
		}
		if err := validate.ValidateConfig(valCfg); err != nil {
			return err
		}

		report := validate.New(valCfg).ValidateFile(args[0])
		printReport(cmd, report)

		switch report.Decision {
		case validate.DecisionAccept:
			return nil
		case validate.DecisionRetry:
			exitCode = 2
		default:
			exitCode = 1
		}
		return nil
	},
}

// exitCode lets RunE report a non-zero status without cobra printing a
// usage message.
var exitCode int

const reportRule = "======================================================================"
const reportSubRule = "----------------------------------------------------------------------"

func printReport(cmd *cobra.Command, report *validate.Report) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\n"+reportRule)
	fmt.Fprintln(out, "AUTOMATED QUALITY VALIDATION REPORT")
	fmt.Fprintln(out, reportRule)

	fmt.Fprintf(out, "\nDECISION: %s\n", report.Decision)
	fmt.Fprintf(out, "   Quality Score: %d/100\n", report.Score)
	fmt.Fprintf(out, "   Reason: %s\n", report.Reason)

	if len(report.Breakdown) > 0 {
		fmt.Fprintln(out, "\nScore Breakdown:")
		fmt.Fprintln(out, reportSubRule)
		names := make([]string, 0, len(report.Breakdown))
		for name := range report.Breakdown {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "   %s: %d points\n", titleCase(name), report.Breakdown[name])
		}
	}

	printMessages(out, "Errors", report.Errors)
	printMessages(out, "Warnings", report.Warnings)

	if len(report.Info) > 0 {
		fmt.Fprintln(out, "\nStatistics:")
		fmt.Fprintln(out, reportSubRule)
		keys := make([]string, 0, len(report.Info))
		for k := range report.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "   %s: %v\n", titleCase(k), report.Info[k])
		}
	}

	fmt.Fprintln(out, reportRule)
}

const maxPrintedMessages = 10

func printMessages(out io.Writer, label string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", label, len(msgs))
	fmt.Fprintln(out, reportSubRule)
	for i, m := range msgs {
		if i >= maxPrintedMessages {
			fmt.Fprintf(out, "   ... and %d more\n", len(msgs)-maxPrintedMessages)
			break
		}
		fmt.Fprintf(out, "   - %s\n", m)
	}
}

func titleCase(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
