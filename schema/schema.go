// Package schema builds the per-syscall argument layout shared with the
// kernel probe.
package schema

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
)

// ArgTag is the closed set of argument type tags the kernel probe
// understands. Values are stable across builds since they cross the
// kernel/user boundary.
type ArgTag int

const (
	Unknown ArgTag = iota
	Int
	UnsignedInt
	SizeT
	PidT
	Long
	UnsignedLong
	CharPtr
	ConstCharPtr
	FD
	Ptr
	Uint32
)

func (t ArgTag) String() string {
	switch t {
	case Int:
		return "int"
	case UnsignedInt:
		return "unsigned int"
	case SizeT:
		return "size_t"
	case PidT:
		return "pid_t"
	case Long:
		return "long"
	case UnsignedLong:
		return "unsigned long"
	case CharPtr:
		return "char *"
	case ConstCharPtr:
		return "const char *"
	case FD:
		return "fd"
	case Ptr:
		return "ptr"
	case Uint32:
		return "u32"
	default:
		return "unknown"
	}
}

// MaxArgs is the number of argument slots a syscall schema carries.
const MaxArgs = 6

// NameLimit is the byte limit on the syscall name and each argument name,
// matching the fixed-size kernel-shared record.
const NameLimit = 100

// Syscall is a per-syscall record of argument names and type tags, built
// from the host's tracepoint-format descriptors.
type Syscall struct {
	Name          string
	ArgNames      [MaxArgs]string
	ArgTags       [MaxArgs]ArgTag
	UsedArgCount  int
	Number        int
}

// typeTagTable is the exact-match textual-type -> tag table. Any type not
// present here falls through to the pointer/unknown rules (an argument
// named "fd" is tagged before this table is consulted).
var typeTagTable = map[string]ArgTag{
	"int":            Int,
	"unsigned int":   UnsignedInt,
	"size_t":         SizeT,
	"pid_t":          PidT,
	"long":           Long,
	"unsigned long":  UnsignedLong,
	"char *":         CharPtr,
	"const char *":   ConstCharPtr,
	"u32":            Uint32,
	"unsigned":       UnsignedInt,
	"umode_t":        UnsignedInt,
}

// TagForArg maps a tracepoint-declared argument name and type to an ArgTag
// following the tag-mapping rules: any argument named "fd" is tagged FD
// whatever its declared type; otherwise exact-match textual types use the
// closed set; any type containing "*" that did not match exactly is tagged
// Ptr; anything else is Unknown.
func TagForArg(name, typ string) ArgTag {
	typ = strings.TrimSpace(typ)
	if name == "fd" {
		return FD
	}
	if tag, ok := typeTagTable[typ]; ok {
		return tag
	}
	if strings.Contains(typ, "*") {
		return Ptr
	}
	return Unknown
}

// PointerSyscalls is the closed set of syscalls whose return value is a
// pointer (or pointer-like value) and must be rendered as 0xHEX rather than
// a signed decimal.
var PointerSyscalls = map[string]bool{
	"mmap":   true,
	"mremap": true,
	"shmat":  true,
	"getcwd": true,
}

// tracefsRoots are the candidate mount points for the syscall tracepoint
// format descriptors, tried in order.
var tracefsRoots = []string{
	"/sys/kernel/debug/tracing/events/syscalls",
	"/sys/kernel/tracing/events/syscalls",
}

var enterDirRe = regexp.MustCompile(`^sys_enter_(.+)$`)
var fieldLineRe = regexp.MustCompile(`^\s*field:(.+);`)

// Build enumerates the host's syscall-metadata directory and parses every
// tracepoint "format" description into a Syscall record, keyed by syscall
// number via numberTable. Syscalls with no entry in numberTable are
// skipped; the kernel probe must trust the schema and emit nothing for an
// unmapped number.
func Build() (map[int]*Syscall, error) {
	root, err := findTracefsRoot()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, tracererrors.Wrap(err, tracererrors.HostCapability, "schema.Build")
	}

	out := make(map[int]*Syscall)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := enterDirRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		name := m[1]
		number, ok := NumberForName(name)
		if !ok {
			continue
		}

		formatPath := filepath.Join(root, entry.Name(), "format")
		sc, err := parseFormat(formatPath, name)
		if err != nil {
			continue
		}
		sc.Number = number
		out[number] = sc
	}

	return out, nil
}

func findTracefsRoot() (string, error) {
	for _, root := range tracefsRoots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return root, nil
		}
	}
	return "", tracererrors.ErrTraceFSUnavailable
}

// parseFormat parses one sys_enter_<name>/format file. It skips lines up
// to and including the field named "__syscall_nr", then reads subsequent
// "field:TYPE NAME;" lines as ordered arguments.
func parseFormat(path, name string) (*Syscall, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := &Syscall{Name: truncate(name, NameLimit)}

	seenSyscallNr := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !seenSyscallNr {
			if strings.Contains(line, "__syscall_nr") {
				seenSyscallNr = true
			}
			continue
		}

		m := fieldLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		decl := strings.TrimSpace(m[1])
		lastSpace := strings.LastIndex(decl, " ")
		if lastSpace < 0 {
			continue
		}
		argType := strings.TrimSpace(decl[:lastSpace])
		argName := strings.TrimSpace(decl[lastSpace+1:])
		argName = strings.TrimPrefix(argName, "*")

		if sc.UsedArgCount >= MaxArgs {
			break
		}
		sc.ArgNames[sc.UsedArgCount] = truncate(argName, NameLimit)
		sc.ArgTags[sc.UsedArgCount] = TagForArg(argName, argType)
		sc.UsedArgCount++
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Validate checks that every requested syscall name has a schema entry,
// returning the first unknown name as a Config error.
func Validate(schemas map[int]*Syscall, names []string) error {
	known := make(map[string]bool, len(schemas))
	for _, sc := range schemas {
		known[sc.Name] = true
	}
	for _, name := range names {
		if !known[name] {
			return tracererrors.WrapWithSyscall(
				fmt.Errorf("no schema entry"), tracererrors.Config, "schema.Validate", name)
		}
	}
	return nil
}
