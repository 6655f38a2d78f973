package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/musicsync/internal/source"
	"github.com/franz/musicsync/internal/store"
)

func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Reset()
	setDefaults()
	viper.Set("db", filepath.Join(dir, "msync.db"))
	viper.Set("events.dir", filepath.Join(dir, "events"))
	viper.Set("peer.name", "laptop")
	viper.Set("quiet", true)
	t.Cleanup(viper.Reset)
	return dir
}

func TestScanThenStats(t *testing.T) {
	dir := setupConfig(t)

	music := filepath.Join(dir, "music", "Artist", "Album")
	require.NoError(t, os.MkdirAll(music, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(music, "01 - One.mp3"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(music, "02 - Two.mp3"), []byte("two"), 0644))

	require.NoError(t, runScan(scanCmd, []string{filepath.Join(dir, "music")}))

	db, err := store.Open(viper.GetString("db"))
	require.NoError(t, err)
	defer db.Close()

	stats, err := db.CollectionStats(context.Background(), store.LocalSourceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Files)
	assert.Equal(t, int64(1), stats.Artists)
	assert.Equal(t, int64(2), stats.Tracks)

	var out bytes.Buffer
	printStats(&out, "laptop", stats)
	assert.Contains(t, out.String(), "Collection: laptop")
	assert.Contains(t, out.String(), "Files:    2")

	n, err := db.OplogCount(context.Background(), "addfiles")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanRejectsMissingDirectory(t *testing.T) {
	setupConfig(t)

	err := runScan(scanCmd, []string{"/does/not/exist"})
	assert.Error(t, err)
}

func TestAddSourceThenList(t *testing.T) {
	setupConfig(t)

	require.NoError(t, runAddSource(addSourceCmd, []string{"alice", "Alice"}))
	require.NoError(t, runAddSource(addSourceCmd, []string{"alice", "Alice's NAS"}))

	db, err := store.Open(viper.GetString("db"))
	require.NoError(t, err)
	defer db.Close()

	sources, err := db.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Alice's NAS", sources[0].FriendlyName)

	registry := source.NewRegistry("laptop", "Laptop")
	require.NoError(t, registry.Load(context.Background(), db))

	var out bytes.Buffer
	require.NoError(t, printSources(&out, registry.List()))
	assert.Contains(t, out.String(), "local")
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "Alice's NAS")
}

func TestStatsReport(t *testing.T) {
	dir := setupConfig(t)

	db, err := store.Open(viper.GetString("db"))
	require.NoError(t, err)
	defer db.Close()

	out := filepath.Join(dir, "report")
	require.NoError(t, runReport(context.Background(), db, viper.GetString("db"), out))

	data, err := os.ReadFile(filepath.Join(out, "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Collection Summary")
	assert.Contains(t, string(data), "laptop [local]")
}
