package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/report"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Long: `Show file, artist, album and track counts for one collection.

Without --source the local collection is shown. With --report a Markdown
summary of every collection and the oplog is written to
artifacts/reports/<timestamp>/summary.md (or the given --out directory).`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("source", "", "peer name to show (default: local collection)")
	statsCmd.Flags().Bool("report", false, "write a Markdown summary report")
	statsCmd.Flags().String("out", "", "output directory for the report (default: artifacts/reports/<timestamp>)")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dbPath := viper.GetString("db")

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if writeReport, _ := cmd.Flags().GetBool("report"); writeReport {
		outputDir, _ := cmd.Flags().GetString("out")
		return runReport(ctx, db, dbPath, outputDir)
	}

	name, _ := cmd.Flags().GetString("source")
	sourceID := store.LocalSourceID
	label := localName()
	if name != "" {
		src, err := db.SourceByName(ctx, name)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("%w: source %s", util.ErrNotFound, name)
		}
		sourceID = src.ID
		label = fmt.Sprintf("%s (%s)", src.FriendlyName, src.Name)
	}

	stats, err := db.CollectionStats(ctx, sourceID)
	if err != nil {
		return err
	}
	printStats(os.Stdout, label, stats)
	return nil
}

func printStats(out io.Writer, label string, stats *store.CollectionStats) {
	fmt.Fprintf(out, "Collection: %s\n", label)
	fmt.Fprintf(out, "  Files:    %s\n", humanize.Comma(stats.Files))
	fmt.Fprintf(out, "  Artists:  %s\n", humanize.Comma(stats.Artists))
	fmt.Fprintf(out, "  Albums:   %s\n", humanize.Comma(stats.Albums))
	fmt.Fprintf(out, "  Tracks:   %s\n", humanize.Comma(stats.Tracks))
	fmt.Fprintf(out, "  Size:     %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
	fmt.Fprintf(out, "  Duration: %s\n", time.Duration(stats.TotalDuration)*time.Second)
	if stats.LastOp != "" {
		fmt.Fprintf(out, "  Last op:  %s\n", stats.LastOp)
	}
}

func runReport(ctx context.Context, db *store.Store, dbPath, outputDir string) error {
	util.InfoLog("=== Generating Summary Report ===")

	summary, err := report.GenerateSummaryReport(ctx, db, localName(),
		[]string{string(command.KindAddFiles), string(command.KindAddSource)})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = dbPath

	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("events.dir", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("  Sources: %d", len(summary.Sources))
	for kind, count := range summary.OplogCounts {
		util.InfoLog("  Oplog %s: %s", kind, humanize.Comma(int64(count)))
	}
	return nil
}
