package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	SetBasePath(dir)
	t.Cleanup(func() { SetBasePath("") })
	SetVersion("test")
	SetCommand("serve")

	report := newReport("boom")
	path, err := WriteReport(report)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	content := string(data)
	for _, want := range []string{"panic: boom", "version:   test", "command:   serve"} {
		if !strings.Contains(content, want) {
			t.Errorf("report missing %q:\n%s", want, content)
		}
	}

	logs, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(logs) != 1 || logs[0] != path {
		t.Errorf("logs = %v", logs)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	SetBasePath(dir)
	t.Cleanup(func() { SetBasePath("") })

	crashes := filepath.Join(dir, crashDirName)
	if err := os.MkdirAll(crashes, 0755); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxCrashLogs+3; i++ {
		name := fmt.Sprintf("crash_%s.log", base.Add(time.Duration(i)*time.Minute).Format("20060102_150405"))
		if err := os.WriteFile(filepath.Join(crashes, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := WriteReport(newReport("again")); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	logs, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(logs) != maxCrashLogs {
		t.Fatalf("logs = %d, want %d", len(logs), maxCrashLogs)
	}
	// The oldest synthetic reports are gone; the newest one written survives.
	for _, p := range logs[:len(logs)-1] {
		if strings.Contains(p, "crash_20260101_0000") {
			t.Errorf("oldest log survived: %s", p)
		}
	}
}

func TestListEmpty(t *testing.T) {
	SetBasePath(t.TempDir())
	t.Cleanup(func() { SetBasePath("") })
	logs, err := List()
	if err != nil || logs != nil {
		t.Fatalf("List = %v, %v", logs, err)
	}
}
