package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/meta"
	"github.com/franz/musicsync/internal/scan"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>...",
	Short: "Scan directories into the local collection",
	Long: `Scan one or more directories for audio files and add them to the local
collection.

Files are hashed and tagged concurrently and submitted to the collection
worker in batches. A file that was scanned before is replaced by its new
version. Every batch is recorded in the oplog, so peers pick up the changes
the next time "msync serve" runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	addScanFlags(scanCmd)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "files read in parallel (default 4)")
	cmd.Flags().Int("batch-size", 0, "files per AddFiles batch (default 500)")
	cmd.Flags().Bool("ffprobe", false, "fill duration and bitrate with ffprobe")
	cmd.Flags().StringSlice("ext", nil, "additional file extensions to treat as audio")

	viper.BindPFlag("scan.concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("scan.batch_size", cmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("scan.ffprobe", cmd.Flags().Lookup("ffprobe"))
	viper.BindPFlag("scan.extensions", cmd.Flags().Lookup("ext"))
}

// newScanner builds a scanner for the local collection from configuration
func newScanner(n *node) *scan.Scanner {
	useFFprobe := viper.GetBool("scan.ffprobe")
	if useFFprobe && !meta.CheckFFprobeAvailable() {
		util.WarnLog("ffprobe not found in PATH - using tag library only")
		useFFprobe = false
	}

	return scan.New(&scan.Config{
		Queue:          n.worker,
		AdditionalExts: GetConfigStringSlice("scan.extensions"),
		Concurrency:    GetConfigInt("scan.concurrency", 4),
		BatchSize:      GetConfigInt("scan.batch_size", 500),
		MaxOutstanding: GetConfigInt("scan.max_outstanding", 4),
		FFprobe:        useFFprobe,
		Logger:         n.events,
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	for _, dir := range args {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
	}

	n, err := openNode(ctx, localName(), util.FriendlyName())
	if err != nil {
		return err
	}
	defer n.close()
	n.start(ctx)

	scanner := newScanner(n)
	startTime := time.Now()

	var found, queued, failed int
	for _, dir := range args {
		result, err := scanner.Scan(ctx, dir)
		if err != nil {
			return fmt.Errorf("scan of %s failed: %w", dir, err)
		}
		found += result.FilesFound
		queued += result.FilesQueued
		failed += len(result.Errors)
	}

	util.InfoLog("Waiting for the collection worker...")
	if err := n.drain(ctx); err != nil {
		return err
	}

	// The worker is idle, so the handle is free for a read
	stats, err := n.db.CollectionStats(ctx, store.LocalSourceID)
	if err != nil {
		return err
	}

	util.InfoLog("")
	util.SuccessLog("=== Scan Summary ===")
	util.InfoLog("Total time: %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Files found: %s", humanize.Comma(int64(found)))
	util.InfoLog("  Files submitted: %s", humanize.Comma(int64(queued)))
	util.InfoLog("  Files cataloged: %s", humanize.Comma(scanner.Committed()))
	if failed > 0 {
		util.WarnLog("  Errors: %d", failed)
	}
	util.InfoLog("")
	util.InfoLog("Local collection: %s files, %s artists, %s",
		humanize.Comma(stats.Files), humanize.Comma(stats.Artists), humanize.Bytes(uint64(stats.TotalBytes)))

	return nil
}
