package format

import (
	"fmt"

	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

// signalNames is the standard signal table kill_event_formatter.h carries:
// 0 is kept as the original's "CHECKPERM" sentinel (spec.md leaves the
// table's contents open; the original is the only ground truth available).
var signalNames = map[int64]string{
	0:  "CHECKPERM",
	1:  "SIGHUP",
	2:  "SIGINT",
	3:  "SIGQUIT",
	4:  "SIGILL",
	5:  "SIGTRAP",
	6:  "SIGABRT",
	7:  "SIGBUS",
	8:  "SIGFPE",
	9:  "SIGKILL",
	10: "SIGUSR1",
	11: "SIGSEGV",
	12: "SIGUSR2",
	13: "SIGPIPE",
	14: "SIGALRM",
	15: "SIGTERM",
	16: "SIGSTKFLT",
	17: "SIGCHLD",
	18: "SIGCONT",
	19: "SIGSTOP",
	20: "SIGTSTP",
	21: "SIGTTIN",
	22: "SIGTTOU",
	23: "SIGURG",
	24: "SIGXCPU",
	25: "SIGXFSZ",
	26: "SIGVTALRM",
	27: "SIGPROF",
	28: "SIGWINCH",
	29: "SIGIO",
	30: "SIGPWR",
	31: "SIGSYS",
}

// killDetails interprets the first two `long` arguments as (target_pid,
// signal) and prints the symbolic signal name, e.g.
// "target_pid=1234  signal=9  SIGKILL sent to process ID 1234".
func killDetails(row store.Row, sc *schema.Syscall) string {
	targetPID, _ := readInt(row.Args[:], 0)
	signal, _ := readInt(row.Args[:], 8)

	name, ok := signalNames[signal]
	if !ok {
		name = fmt.Sprintf("Signal %d", signal)
	}

	return fmt.Sprintf("target_pid=%d  signal=%d  %s sent to process ID %d", targetPID, signal, name, targetPID)
}
