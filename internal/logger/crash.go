// Package logger writes crash reports for unrecovered panics so a process
// abort leaves a diagnosable trail next to the data directory.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const (
	crashDirName = "crash_logs"

	// maxCrashLogs bounds how many reports are kept; the oldest are removed
	// first.
	maxCrashLogs = 10
)

type crashContext struct {
	mu       sync.RWMutex
	basePath string
	version  string
	command  string
}

var global = &crashContext{}

// SetBasePath sets where crash reports are written (the data directory).
func SetBasePath(path string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.basePath = path
}

// SetVersion records the binary version included in crash reports.
func SetVersion(v string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.version = v
}

// SetCommand records the command currently executing.
func SetCommand(cmd string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.command = cmd
}

// CrashReport captures the state of an unrecovered panic.
type CrashReport struct {
	Timestamp  time.Time
	Version    string
	Command    string
	PanicValue string
	StackTrace string
	GoVersion  string
	OS         string
	Arch       string
}

// HandlePanic recovers a panic, writes a crash report and exits non-zero.
// Deferred at the top of the CLI entrypoint.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	report := newReport(r)
	path, err := WriteReport(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash report: %v\n", err)
		fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, report.StackTrace)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "planpress crashed: %v\ncrash report saved to %s\n", r, path)
	os.Exit(1)
}

func newReport(panicValue any) CrashReport {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return CrashReport{
		Timestamp:  time.Now(),
		Version:    global.version,
		Command:    global.command,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

// WriteReport persists one crash report, pruning old ones, and returns the
// file path.
func WriteReport(report CrashReport) (string, error) {
	dir := crashDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}
	if err := pruneOld(dir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune old crash reports: %v\n", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("crash_%s.log", report.Timestamp.Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(report.format()), 0644); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// List returns the paths of all stored crash reports, oldest first.
func List() ([]string, error) {
	dir := crashDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if isCrashLog(e) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func crashDir() string {
	global.mu.RLock()
	base := global.basePath
	global.mu.RUnlock()
	if base == "" {
		base = ".planpress"
	}
	return filepath.Join(base, crashDirName)
}

func isCrashLog(e os.DirEntry) bool {
	return !e.IsDir() && strings.HasPrefix(e.Name(), "crash_") && strings.HasSuffix(e.Name(), ".log")
}

func (r CrashReport) format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "planpress crash report\n\n")
	fmt.Fprintf(&b, "timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "version:   %s\n", r.Version)
	fmt.Fprintf(&b, "command:   %s\n", r.Command)
	fmt.Fprintf(&b, "go:        %s\n", r.GoVersion)
	fmt.Fprintf(&b, "os/arch:   %s/%s\n", r.OS, r.Arch)
	fmt.Fprintf(&b, "\npanic: %s\n\n", r.PanicValue)
	b.WriteString(r.StackTrace)
	return b.String()
}

// pruneOld removes the oldest reports beyond the retention limit. ReadDir
// returns entries sorted by name, and names embed the timestamp.
func pruneOld(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var logs []os.DirEntry
	for _, e := range entries {
		if isCrashLog(e) {
			logs = append(logs, e)
		}
	}
	if len(logs) < maxCrashLogs {
		return nil
	}
	for _, e := range logs[:len(logs)-maxCrashLogs+1] {
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
