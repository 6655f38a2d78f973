package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/musicsync/internal/store"
)

func setupTestData(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "collection.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	w, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	defer w.Rollback()

	aliceID, err := w.InsertSource(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to insert source: %v", err)
	}

	files := []*store.File{
		{SourceID: store.LocalSourceID, URL: "/music/a.mp3", Size: 2048, Duration: 60},
		{SourceID: store.LocalSourceID, URL: "/music/b.mp3", Size: 1024, Duration: 30},
		{SourceID: aliceID, URL: "7", Size: 512, Duration: 10},
	}
	for _, f := range files {
		if err := w.InsertFile(ctx, f); err != nil {
			t.Fatalf("Failed to insert file: %v", err)
		}
	}

	err = w.AppendOplog(ctx, &store.OplogEntry{GUID: "0190f5c2-aaaa", Command: "addfiles", JSON: "{}"})
	if err != nil {
		t.Fatalf("Failed to append oplog: %v", err)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return db
}

func TestGenerateSummaryReport(t *testing.T) {
	db := setupTestData(t)

	report, err := GenerateSummaryReport(context.Background(), db, "me", []string{"addfiles", "addsource"})
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	if len(report.Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(report.Sources))
	}

	local := report.Sources[0]
	if !local.Local || local.Name != "me" {
		t.Errorf("Expected local source first, got %+v", local)
	}
	if local.Stats.Files != 2 || local.Stats.TotalBytes != 3072 {
		t.Errorf("Unexpected local stats: %+v", local.Stats)
	}
	if local.Stats.LastOp != "0190f5c2-aaaa" {
		t.Errorf("Expected local last op, got %q", local.Stats.LastOp)
	}

	alice := report.Sources[1]
	if alice.Name != "alice" || alice.Stats.Files != 1 {
		t.Errorf("Unexpected remote source: %+v", alice)
	}

	if report.OplogCounts["addfiles"] != 1 || report.OplogCounts["addsource"] != 0 {
		t.Errorf("Unexpected oplog counts: %v", report.OplogCounts)
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	db := setupTestData(t)

	report, err := GenerateSummaryReport(context.Background(), db, "me", []string{"addfiles"})
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}
	report.DatabasePath = "/tmp/collection.db"

	outputPath := filepath.Join(t.TempDir(), "reports", "summary.md")
	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	expected := []string{
		"# Collection Summary",
		"**Database:** `/tmp/collection.db`",
		"## Sources",
		"me [local]",
		"Alice (alice)",
		"3.1 kB",
		"1m30s",
		"0190f5c2",
		"## Oplog",
		"| addfiles | 1 |",
	}
	for _, want := range expected {
		if !strings.Contains(md, want) {
			t.Errorf("Report missing %q", want)
		}
	}
}

func TestShortOp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"abc", "abc"},
		{"0190f5c2-7d2e-7c4b", "0190f5c2"},
	}
	for _, tt := range tests {
		if got := shortOp(tt.in); got != tt.want {
			t.Errorf("shortOp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
