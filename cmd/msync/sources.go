package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/source"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the collections known to this database",
	RunE:  runSources,
}

var addSourceCmd = &cobra.Command{
	Use:   "add-source <name> <friendly-name>",
	Short: "Register a peer, or rename a known one",
	Long: `Register a peer by its stable name. Adding a known peer again keeps its
id and only updates the friendly name.`,
	Args: cobra.ExactArgs(2),
	RunE: runAddSource,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(addSourceCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := store.Open(GetConfigString("db", "msync.db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	registry := source.NewRegistry(localName(), util.FriendlyName())
	if err := registry.Load(ctx, db); err != nil {
		return err
	}

	list := registry.List()
	for _, src := range list {
		stats, err := db.CollectionStats(ctx, src.ID)
		if err != nil {
			return err
		}
		registry.SetStats(stats)
	}

	return printSources(os.Stdout, registry.List())
}

func printSources(out io.Writer, list []source.Source) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFRIENDLY NAME\tFILES\tSIZE\tLAST OP")
	for _, src := range list {
		id := fmt.Sprintf("%d", src.ID)
		if src.IsLocal() {
			id = "local"
		}
		var files, size, lastOp string
		if st := src.Stats; st != nil {
			files = humanize.Comma(st.Files)
			size = humanize.Bytes(uint64(st.TotalBytes))
			lastOp = st.LastOp
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", id, src.Name, src.FriendlyName, files, size, lastOp)
	}
	return tw.Flush()
}

func runAddSource(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, friendly := args[0], args[1]

	n, err := openNode(ctx, localName(), util.FriendlyName())
	if err != nil {
		return err
	}
	defer n.close()
	n.start(ctx)

	add := command.NewAddSource(name, friendly)
	done := make(chan struct{})
	add.OnDone = func(id int64, previous string) {
		if previous != "" && previous != friendly {
			util.SuccessLog("Source %s (id %d) renamed from %q to %q", name, id, previous, friendly)
		} else {
			util.SuccessLog("Source %s registered with id %d", name, id)
		}
		close(done)
	}
	n.worker.Enqueue(add)

	if err := n.drain(ctx); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	default:
		return fmt.Errorf("failed to add source %s", name)
	}
}
