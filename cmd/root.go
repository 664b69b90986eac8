// Package cmd implements the procmon CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/logging"
)

// Global flags, per spec.md §6.
var (
	globalPIDs      string
	globalEvents    string
	globalCollect   string
	globalFile      string
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "procmon",
	Short: "Live Linux system-call tracer",
	Long: `procmon traces syscalls on a running Linux host via an eBPF probe,
recording them into a queryable store you can filter, sort, search, and
export to a snapshot file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: runTracer,
}

// Execute runs the root command and restores the terminal on any fatal
// error, matching the original's `system("setterm -cursor on")` call on
// the fatal-exit path (event.h) and the teacher's raw-mode helpers
// (utils/console.go).
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		restoreTerminal()
		fmt.Fprintf(os.Stderr, "procmon: %v\n", err)
		return -1
	}
	return 0
}

func init() {
	rootCmd.Flags().StringVarP(&globalPIDs, "pids", "p", "", "comma-separated PIDs to restrict capture to (max 10)")
	rootCmd.Flags().StringVarP(&globalEvents, "events", "e", "", "comma-separated syscall names to restrict capture to")
	rootCmd.Flags().StringVarP(&globalCollect, "collect", "c", "", "headless capture; events written to this path on exit (default procmon_<date>_<time>.db)")
	rootCmd.Flags().StringVarP(&globalFile, "file", "f", "", "open an existing snapshot read-only")
	rootCmd.Flags().StringVarP(&globalLog, "log", "l", "", "write debug log to path")
	rootCmd.Flags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().Lookup("collect").NoOptDefVal = defaultCollectPath()

	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log output format (text or json)")
}

func setupLogging() {
	output := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			output = f
		}
	}

	level := slog.LevelInfo
	if globalDebug {
		level = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Format: globalLogFormat,
		Output: output,
	})
	logging.SetDefault(logger)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the signal
// the UI/headless driver treats as a request to stop and export.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// parsePIDs parses a comma-separated PID list into int32s, rejecting any
// non-numeric token. It does not limit the count; session.Open rejects
// more than probe.MaxPIDs entries.
func parsePIDs(s string) ([]int32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, tracererrors.WrapWithDetail(err, tracererrors.Config, "cmd.parsePIDs", p)
		}
		out = append(out, int32(n))
	}
	return out, nil
}

// parseEvents parses a comma-separated syscall-name list.
func parseEvents(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// restoreTerminal un-hides the cursor on the fatal-exit path, grounded on
// the original's `system("setterm -cursor on")` call in event.h. It uses
// no raw-mode helper; procmon's only raw-mode use is the foreground
// status line (the interactive UI is an external collaborator per spec.md
// §1): see procmon.go's runForeground for where golang.org/x/term and
// utils.SetRawMode/RestoreMode/GetWinsize are exercised.
func restoreTerminal() {
	fmt.Fprint(os.Stderr, "\x1b[?25h")
}
