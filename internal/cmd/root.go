// Package cmd implements the runprogress command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/runprogress/internal/config"
	"github.com/3leaps/runprogress/internal/observability"
)

// VersionInfo is the build identity set by main.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records the build identity reported by the version command
// and the /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	configFile string
	envFile    string
	verbose    bool
	logLevel   string
	runDir     string
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Report progress of year-by-year batch jobs",
	Long: `runprogress reports the live progress of long-running batch jobs that write
year-labeled output files into a run directory.

The run directory holds report_queue.json, a status.txt marker per job, and
each job's output under <key>/output/subset/<name>. It may be a local path or
an s3://bucket/prefix URI.

Examples:
  runprogress serve --run-dir /srv/runs
  runprogress status job-42 --name ET --run-dir s3://runs/prod`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --env-file", err)
		}
		observability.InitCLILogger(config.AppName, verbose)
		if vars := config.SetEnvVars(); len(vars) > 0 {
			observability.CLILogger.Debug("Environment overrides", zap.Strings("vars", vars))
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/runprogress/config.yaml, ~/.runprogress.yaml or ./runprogress.yaml)")
	flags.StringVar(&envFile, "env-file", "", "Env file loaded before reading the environment (default: .env if present)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&logLevel, "log-level", "", "Override logging.level")
	flags.StringVar(&runDir, "run-dir", "", "Override rundir.base (path, file:// or s3:// URI)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// loadConfig loads configuration with the global flag overrides applied.
func loadConfig(ctx context.Context, extra map[string]any) (*config.Config, error) {
	overrides := map[string]any{}
	if logLevel != "" {
		overrides["logging.level"] = logLevel
	}
	if runDir != "" {
		overrides["rundir.base"] = runDir
	}
	for k, v := range extra {
		overrides[k] = v
	}
	cfg, err := config.LoadFile(ctx, configFile, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExitCodeError carries the process exit code for a failed command.
type ExitCodeError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitCodeError{Code: code, Message: message, Err: err}
}

var osExit = os.Exit

// ExitWithCode logs message and err, then terminates the process with code.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if logger == nil {
		logger = observability.CLILogger
	}
	logger.Error(message, zap.Int("exit_code", code), zap.Error(err))
	_ = logger.Sync()
	osExit(code)
}
