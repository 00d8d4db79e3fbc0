package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/runprogress/internal/observability"
	"github.com/3leaps/runprogress/pkg/jobstatus"
)

var statusCmd = &cobra.Command{
	Use:   "status <key>",
	Short: "Print the progress of one job",
	Long: `Read the run directory once and print the progress snapshot for a job,
the same payload served by GET /job/status.

Output formats:
  json   (default) the HTTP response body
  yaml   the same fields as YAML
  table  human readable summary

Examples:
  runprogress status job-42 --name ET
  runprogress status job-42 --name ET --output table --run-dir s3://runs/prod`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusJobName string
	statusOutput  string
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusJobName, "name", "n", "", "Job name selecting the output subdirectory")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "json", "Output format (json|yaml|table)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	switch statusOutput {
	case "json", "yaml", "table":
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("output must be one of: json, yaml, table"))
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	svc, store, err := newStatusService(ctx, cfg, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open run directory", err)
	}
	defer func() { _ = store.Close() }()

	resp, err := svc.GetStatus(ctx, args[0], statusJobName)
	if err != nil {
		observability.CLILogger.Debug("Status lookup failed",
			zap.String("key", args[0]),
			zap.String("name", statusJobName),
			zap.Error(err))
		return statusExitError(err)
	}

	return writeStatus(cmd.OutOrStdout(), statusOutput, resp)
}

func statusExitError(err error) error {
	switch {
	case errors.Is(err, jobstatus.ErrMissingParameter), errors.Is(err, jobstatus.ErrInvalidParameter):
		return exitError(foundry.ExitInvalidArgument, "Invalid job key or name", err)
	case errors.Is(err, jobstatus.ErrNotFound):
		return exitError(foundry.ExitFileNotFound, "Job not found", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read run directory", err)
	}
}

func writeStatus(w io.Writer, format string, resp *jobstatus.StatusResponse) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "STATUS\t%s\n", resp.Status)
		_, _ = fmt.Fprintf(tw, "YEARS\t%d/%d\n", resp.CurrentYear, resp.TotalYears)
		_, _ = fmt.Fprintf(tw, "FILES\t%d\n", resp.FileCount)
		_, _ = fmt.Fprintf(tw, "COMPLETE\t%.1f%%\n", resp.EstimatedPercentComplete*100)
		_, _ = fmt.Fprintf(tw, "REMAINING\t%s\n", formatRemaining(resp.TimeRemaining))
		return tw.Flush()
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// formatRemaining renders milliseconds rounded to the second.
func formatRemaining(ms float64) string {
	if ms <= 0 {
		return "0s"
	}
	d := time.Duration(ms * float64(time.Millisecond)).Round(time.Second)
	if d == 0 {
		return "<1s"
	}
	return d.String()
}
