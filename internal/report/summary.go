package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/musicsync/internal/store"
)

// SummaryReport describes every collection held in one database
type SummaryReport struct {
	GeneratedAt  time.Time
	DatabasePath string
	EventLogPath string

	Sources []SourceSummary

	// Oplog entry counts by command kind
	OplogCounts map[string]int
}

// SourceSummary is one source's collection
type SourceSummary struct {
	Name         string
	FriendlyName string
	Local        bool
	Online       bool
	Stats        *store.CollectionStats
}

// GenerateSummaryReport reads collection statistics for the local source
// and every known peer
func GenerateSummaryReport(ctx context.Context, db *store.Store, localName string, oplogKinds []string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt: time.Now(),
		OplogCounts: make(map[string]int),
	}

	stats, err := db.CollectionStats(ctx, store.LocalSourceID)
	if err != nil {
		return nil, err
	}
	report.Sources = append(report.Sources, SourceSummary{
		Name:   localName,
		Local:  true,
		Online: true,
		Stats:  stats,
	})

	sources, err := db.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		stats, err := db.CollectionStats(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		report.Sources = append(report.Sources, SourceSummary{
			Name:         src.Name,
			FriendlyName: src.FriendlyName,
			Online:       src.Online,
			Stats:        stats,
		})
	}

	for _, kind := range oplogKinds {
		n, err := db.OplogCount(ctx, kind)
		if err != nil {
			return nil, err
		}
		report.OplogCounts[kind] = n
	}

	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Collection Summary\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Sources\n\n")
	md.WriteString("| Source | Status | Files | Artists | Albums | Tracks | Size | Duration | Last Op |\n")
	md.WriteString("|--------|--------|-------|---------|--------|--------|------|----------|---------|\n")
	for _, src := range report.Sources {
		md.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			displayName(src),
			status(src),
			humanize.Comma(src.Stats.Files),
			humanize.Comma(src.Stats.Artists),
			humanize.Comma(src.Stats.Albums),
			humanize.Comma(src.Stats.Tracks),
			humanize.Bytes(uint64(src.Stats.TotalBytes)),
			(time.Duration(src.Stats.TotalDuration) * time.Second).String(),
			shortOp(src.Stats.LastOp)))
	}
	md.WriteString("\n")

	if len(report.OplogCounts) > 0 {
		md.WriteString("## Oplog\n\n")
		md.WriteString("| Command | Entries |\n")
		md.WriteString("|---------|---------|\n")
		for _, kind := range sortedKeys(report.OplogCounts) {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", kind, report.OplogCounts[kind]))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by msync*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func displayName(src SourceSummary) string {
	name := src.Name
	if src.FriendlyName != "" && src.FriendlyName != src.Name {
		name = fmt.Sprintf("%s (%s)", src.FriendlyName, src.Name)
	}
	if src.Local {
		name += " [local]"
	}
	return name
}

func status(src SourceSummary) string {
	if src.Online {
		return "online"
	}
	return "offline"
}

// shortOp abbreviates an oplog guid for tables
func shortOp(guid string) string {
	if guid == "" {
		return "-"
	}
	if len(guid) > 8 {
		return guid[:8]
	}
	return guid
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
