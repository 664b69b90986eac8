// Package format renders a telemetry row into the six display columns the
// UI/headless driver shows: timestamp, PID, process, operation, result, and
// duration, plus the argument-decode "details" string. Grounded on
// event_formatter.{h,cpp} and kill_event_formatter.{h,cpp}.
package format

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

// Row is the six rendered columns plus the argument-decode details.
type Row struct {
	Timestamp string
	PID       string
	Process   string
	Operation string
	Result    string
	Duration  string
	Details   string
}

// detailFormatter renders the argument-decode column for one syscall. The
// default implementation walks the schema; kill is special-cased.
type detailFormatter func(r store.Row, sc *schema.Syscall) string

// formatterTable maps a syscall name to its specialized detail formatter.
// A name absent from this table uses decodeArguments, the default branch.
var formatterTable = map[string]detailFormatter{
	"kill": killDetails,
}

// Format renders row using the schema entry for its syscall (nil if the
// syscall has no known schema, in which case details is empty).
func Format(row store.Row, startTimeNs uint64, schemas map[int]*schema.Syscall) Row {
	var sc *schema.Syscall
	for _, s := range schemas {
		if s.Name == row.Syscall {
			sc = s
			break
		}
	}

	out := Row{
		Timestamp: Timestamp(row.EnterNs, startTimeNs),
		PID:       strconv.FormatInt(int64(row.PID), 10),
		Process:   row.Process,
		Operation: row.Syscall,
		Result:    Result(row),
		Duration:  Duration(row.DurationNs),
	}

	if sc == nil {
		return out
	}

	if f, ok := formatterTable[row.Syscall]; ok {
		out.Details = f(row, sc)
	} else {
		out.Details = decodeArguments(row, sc)
	}
	return out
}

// Timestamp renders the session-relative timestamp as +HH:MM:SS.mmm.
func Timestamp(enterNs, startNs uint64) string {
	var delta uint64
	if enterNs > startNs {
		delta = enterNs - startNs
	}

	const (
		nsPerHour = 3600_000_000_000
		nsPerMin  = 60_000_000_000
		nsPerSec  = 1_000_000_000
		nsPerMs   = 1_000_000
	)

	hour := delta / nsPerHour
	delta %= nsPerHour
	min := delta / nsPerMin
	delta %= nsPerMin
	sec := delta / nsPerSec
	delta %= nsPerSec
	ms := delta / nsPerMs

	return fmt.Sprintf("+%02d:%02d:%02d.%03d", hour, min, sec, ms)
}

// Result renders the return value: 0xHEX for designated pointer-returning
// syscalls with a non-negative value, "decimal (errno)" when negative,
// otherwise plain decimal.
func Result(row store.Row) string {
	if row.Result >= 0 {
		if schema.PointerSyscalls[row.Syscall] {
			return fmt.Sprintf("0x%016x", uint64(row.Result))
		}
		return strconv.FormatInt(row.Result, 10)
	}
	errno := unix.Errno(-row.Result)
	name := unix.ErrnoName(errno)
	if name == "" {
		name = errno.Error()
	}
	return fmt.Sprintf("%d (%s)", row.Result, name)
}

// Duration renders the duration in ms with three decimal places.
func Duration(durationNs uint64) string {
	return fmt.Sprintf("%.3f", float64(durationNs)/1e6)
}

// decodeArguments is the default detail formatter: it walks the schema's
// argument slots, reading from the row's 128-byte buffer at the same
// running offset the kernel probe used to write it.
func decodeArguments(row store.Row, sc *schema.Syscall) string {
	var b strings.Builder
	offset := 0

	for i := 0; i < sc.UsedArgCount; i++ {
		b.WriteString(sc.ArgNames[i])
		b.WriteByte('=')

		switch sc.ArgTags[i] {
		case schema.Int, schema.Long:
			v, n := readInt(row.Args[:], offset)
			b.WriteString(strconv.FormatInt(v, 10))
			offset += n
		case schema.Uint32:
			v, n := readUint32(row.Args[:], offset)
			b.WriteString(strconv.FormatUint(uint64(v), 10))
			offset += n
		case schema.UnsignedInt, schema.UnsignedLong, schema.SizeT, schema.PidT:
			v, n := readUint(row.Args[:], offset)
			b.WriteString(strconv.FormatUint(v, 10))
			offset += n
		case schema.CharPtr, schema.ConstCharPtr:
			b.WriteString(decodeStringArg(row, offset))
			offset += previewSize()
		case schema.FD:
			v, n := readInt(row.Args[:], offset)
			b.WriteString(strconv.FormatInt(v, 10))
			offset += n
		case schema.Ptr:
			v, n := readUint(row.Args[:], offset)
			if v == 0 {
				b.WriteString("NULL")
			} else {
				b.WriteString("0x" + strconv.FormatUint(v, 16))
			}
			offset += n
		default:
			b.WriteString("{}")
		}
		b.WriteString("  ")
	}

	return b.String()
}

// previewSize is MAX_BUFFER/6, the per-argument byte reservation the probe
// uses for string and preview-buffer arguments.
func previewSize() int {
	return len(store.Row{}.Args) / 6
}

// decodeStringArg renders the char */const char * preview, with the
// syscall-specific overrides for read (opaque input) and write (hex dump).
func decodeStringArg(row store.Row, offset int) string {
	size := previewSize()
	if offset+size > len(row.Args) {
		size = len(row.Args) - offset
	}
	if size < 0 {
		size = 0
	}
	buf := row.Args[offset : offset+size]

	switch row.Syscall {
	case "read":
		return "{in}"
	case "write":
		n := size
		if row.Result >= 0 && int(row.Result) < n {
			n = int(row.Result)
		}
		if n < 0 {
			n = 0
		}
		return hexDump(buf[:n])
	default:
		return cString(buf)
	}
}

// hexDump renders each byte as two lower-case hex digits separated by a
// space, matching the original write-argument preview.
func hexDump(buf []byte) string {
	var b strings.Builder
	for i, c := range buf {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func readInt(buf []byte, offset int) (int64, int) {
	const size = 8
	if offset+size > len(buf) {
		return 0, size
	}
	return int64(binary.LittleEndian.Uint64(buf[offset : offset+size])), size
}

func readUint(buf []byte, offset int) (uint64, int) {
	const size = 8
	if offset+size > len(buf) {
		return 0, size
	}
	return binary.LittleEndian.Uint64(buf[offset : offset+size]), size
}

func readUint32(buf []byte, offset int) (uint32, int) {
	const size = 4
	if offset+size > len(buf) {
		return 0, size
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+size]), size
}
