package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/format"
	"github.com/Sysinternals/ProcMon-for-Linux/logging"
	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/session"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
	"github.com/Sysinternals/ProcMon-for-Linux/utils"
)

// defaultCollectPath builds the default snapshot name for --collect with
// no argument, `procmon_<date>_<time>.db`, per spec.md §6.
func defaultCollectPath() string {
	return fmt.Sprintf("procmon_%s.db", time.Now().UTC().Format("20060102_150405"))
}

// monotonicNowNs reads CLOCK_MONOTONIC, the same clock domain
// bpf_ktime_get_ns() draws from in the kernel probe, so that
// format.Timestamp's enterNs-startTimeNs subtraction lands on a real
// session-relative duration instead of a raw boot-relative count.
func monotonicNowNs() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}

// statusInterval is how often the foreground status line refreshes while
// a headless capture is running with stdout attached to a TTY.
const statusInterval = 500 * time.Millisecond

func runTracer(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetBool("version"); v {
		runVersion(cmd, args)
		return nil
	}

	if globalFile != "" {
		return inspectSnapshot(globalFile)
	}

	pids, err := parsePIDs(globalPIDs)
	if err != nil {
		return err
	}
	events := parseEvents(globalEvents)

	sess, err := session.Open(session.Config{PIDs: pids, Events: events})
	if err != nil {
		return err
	}
	sess.SetStartTime(monotonicNowNs(), time.Now().Unix())

	if err := sess.Start(); err != nil {
		return err
	}

	collectPath := globalCollect

	ctx := signalContext()
	runForeground(sess)
	<-ctx.Done()

	if err := sess.Stop(); err != nil {
		logging.Error("procmon: stop failed", "error", err)
	}

	if collectPath == "" {
		return printSummary(sess)
	}
	if err := sess.Export(collectPath); err != nil {
		return tracererrors.WrapWithDetail(err, tracererrors.Store, "cmd.runTracer", "export")
	}
	fmt.Fprintf(os.Stderr, "wrote snapshot to %s\n", collectPath)
	return nil
}

// runForeground starts a best-effort live status line ("captured N events,
// loss=N") on a short ticker, only when stdout is a TTY. While the status
// line is live, stdin is put in raw mode purely to suppress local echo of
// any stray keypresses during the run (procmon reads no keyboard input
// itself — the interactive UI is out of scope, per spec.md §1); the
// previous mode is restored when the ticker stops. The ticker goroutine
// exits on its own once the session is stopped, so the caller does not
// need to join it.
func runForeground(sess *session.Session) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	var restore func()
	if old, err := utils.SetRawMode(os.Stdin); err == nil {
		restore = func() { utils.RestoreMode(os.Stdin, old) }
	} else {
		restore = func() {}
	}

	go func() {
		defer restore()
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sess.Store.Size()
			if err != nil {
				return
			}
			line := fmt.Sprintf("captured %d events, loss=%d", n, sess.LossCount())
			fmt.Fprint(os.Stderr, "\r"+truncateToWidth(line, os.Stdout))
			if sess.Latch.Load() == runstate.Stop {
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	}()
}

// truncateToWidth clips line to the terminal's column count, so a narrow
// window never wraps the status line onto a second line the next redraw
// won't overwrite.
func truncateToWidth(line string, f *os.File) string {
	ws, err := utils.GetWinsize(f)
	if err != nil || ws.Col == 0 || int(ws.Col) >= len(line) {
		return line
	}
	return line[:ws.Col]
}

func printSummary(sess *session.Session) error {
	n, err := sess.Store.Size()
	if err != nil {
		return err
	}
	agg, err := sess.Store.Aggregate()
	if err != nil {
		return err
	}
	fmt.Printf("captured %d events across %d syscalls\n", n, len(agg))
	return nil
}

// inspectSnapshot opens path read-only and prints the stored rows using
// the same formatter the live path would, per spec.md §4.8.
func inspectSnapshot(path string) error {
	sess, err := session.Open(session.Config{FilePath: path})
	if err != nil {
		return err
	}

	rows, err := sess.Store.QueryPage(nil, 0, 1<<20, store.SortTime, true, nil)
	if err != nil {
		return err
	}
	for _, r := range rows {
		out := format.Format(r, sess.StartTimeNs(), sess.Schemas())
		fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			out.Timestamp, out.PID, out.Process, out.Operation, out.Result, out.Duration, out.Details)
	}
	return nil
}
