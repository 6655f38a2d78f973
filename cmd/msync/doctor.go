package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure msync can operate correctly.

This command checks:
- Optional tools (ffprobe)
- SQLite version and database integrity
- Peer name configuration
- Redis connectivity, when replication is configured
- Watched directories
- Disk space next to the database

Use this command to troubleshoot issues before running "msync serve".`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== msync doctor ===")
	util.InfoLog("")

	results := []checkResult{
		checkFFprobe(),
		checkSQLite(),
	}

	dbPath := viper.GetString("db")
	results = append(results, checkDatabase(dbPath))
	results = append(results, checkPeer(viper.GetString("peer.name")))

	if url := viper.GetString("redis.url"); url != "" {
		results = append(results, checkRedis(url))
	}
	for _, dir := range GetConfigStringSlice("watch") {
		results = append(results, checkWatchDirectory(dir))
	}
	results = append(results, checkDiskSpace(filepath.Dir(dbPath), "database"))

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running msync.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed!")
	}

	return nil
}

// checkFFprobe reports whether ffprobe can fill durations and bitrates
func checkFFprobe() checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffprobe", "-version").CombinedOutput()
	if err != nil {
		return checkResult{
			name:    "ffprobe (optional)",
			warning: true,
			message: "not found (durations and bitrates come from tags only)",
		}
	}

	// Parse version from first line
	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if parts := strings.Fields(lines[0]); len(parts) >= 3 {
		version = parts[2]
	}

	return checkResult{
		name:    "ffprobe (optional)",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSQLite verifies the embedded SQLite engine
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	stats, err := db.CollectionStats(context.Background(), store.LocalSourceID)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: err.Error(),
		}
	}
	sources, _ := db.ListSources(context.Background())

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %s local files, %d peers)", dbPath,
			humanize.Bytes(uint64(info.Size())), humanize.Comma(stats.Files), len(sources)),
	}
}

// checkPeer verifies a peer name is set for replication
func checkPeer(name string) checkResult {
	if name == "" {
		return checkResult{
			name:    "Peer name",
			warning: true,
			message: "not set (required for msync serve; use --peer or MSYNC_PEER_NAME)",
		}
	}
	return checkResult{name: "Peer name", message: name}
}

// checkRedis pings the replication redis
func checkRedis(url string) checkResult {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return checkResult{
			name:    "Redis",
			error:   true,
			message: fmt.Sprintf("invalid redis.url: %v", err),
		}
	}

	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return checkResult{
			name:    "Redis",
			error:   true,
			message: fmt.Sprintf("cannot reach %s: %v", opt.Addr, err),
		}
	}

	return checkResult{
		name:    "Redis",
		message: fmt.Sprintf("%s (channel %s)", opt.Addr, GetConfigString("redis.channel", "msync:oplog")),
	}
}

// checkWatchDirectory verifies a watched directory is readable
func checkWatchDirectory(path string) checkResult {
	name := fmt.Sprintf("Watch directory %s", path)

	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access: %v", err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    name,
			error:   true,
			message: "not a directory",
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot read: %v", err),
		}
	}

	if mount, err := util.DetectMount(path); err == nil && mount.Network {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("%d entries on %s mount %s (remote changes are not watched)", len(entries), mount.FSType, mount.MountPoint),
		}
	}

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%d entries", len(entries)),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)

	// Warn below 1GB
	warning := availBytes < 1<<30
	msg := fmt.Sprintf("%s available", humanize.Bytes(availBytes))
	if warning {
		msg += " (low space!)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: msg,
	}
}
