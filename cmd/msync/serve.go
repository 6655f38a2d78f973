package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/api"
	"github.com/franz/musicsync/internal/oplog"
	"github.com/franz/musicsync/internal/scan"
	"github.com/franz/musicsync/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collection worker with replication and the status server",
	Long: `Run this machine as a peer.

serve starts the collection worker and:
- publishes the local oplog to the redis channel whenever it grows
- replays oplog entries published by other peers
- serves /health, /metrics, /status and /sources over HTTP
- optionally scans and then watches directories for new or changed files

Without redis.url the node runs standalone and nothing is replicated.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSlice("watch", nil, "directories to scan and watch")
	serveCmd.Flags().String("listen", "", "status server address (default :7420)")
	serveCmd.Flags().String("redis-url", "", "redis URL for replication, e.g. redis://localhost:6379/0")
	serveCmd.Flags().String("friendly-name", "", "display name announced to peers")
	addScanFlags(serveCmd)

	viper.BindPFlag("watch", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("redis.url", serveCmd.Flags().Lookup("redis-url"))
	viper.BindPFlag("peer.friendly_name", serveCmd.Flags().Lookup("friendly-name"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peer, err := util.PeerName()
	if err != nil {
		return err
	}
	friendly := util.FriendlyName()

	n, err := openNode(ctx, peer, friendly)
	if err != nil {
		return err
	}
	defer n.close()

	rdb, err := connectRedis(ctx)
	if err != nil {
		return err
	}

	var pub *oplog.Publisher
	var recv *oplog.Receiver
	if rdb != nil {
		defer rdb.Close()
		channel := GetConfigString("redis.channel", oplog.DefaultChannel)

		pub = oplog.NewPublisher(&oplog.PublisherConfig{
			Client:       rdb,
			Channel:      channel,
			Peer:         peer,
			FriendlyName: friendly,
			Queue:        n.worker,
			Retry:        util.PublishRetryConfig(),
			Events:       n.events,
		})
		n.worker.Env().Replicator = pub

		recv = oplog.NewReceiver(&oplog.ReceiverConfig{
			Client:  rdb,
			Channel: channel,
			Peer:    peer,
			Queue:   n.worker,
			Peers:   n.sources,
			Events:  n.events,
		})
	} else {
		util.WarnLog("redis.url not set - running standalone, nothing is replicated")
	}

	n.start(ctx)
	util.SuccessLog("Peer %s (%s) is up", peer, friendly)

	statusCfg := &api.Config{Worker: n.worker, Sources: n.sources, Files: n.db}
	if pub != nil {
		statusCfg.Sync = pub
	}
	status := api.New(statusCfg)

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		return status.ListenAndServe(ctx, GetConfigString("listen", ":7420"))
	})

	if pub != nil {
		p.Go(pub.Run)
		p.Go(func(ctx context.Context) error {
			return recv.Run(ctx, nil)
		})
	}

	if dirs := GetConfigStringSlice("watch"); len(dirs) > 0 {
		scanner := newScanner(n)
		p.Go(func(ctx context.Context) error {
			return watchDirs(ctx, scanner, dirs)
		})
	}

	err = p.Wait()

	// Let the command in flight finish; anything still queued is dropped
	// and picked up again by the next scan or replication pass
	util.InfoLog("Shutting down (%d commands outstanding)", n.worker.OutstandingJobs())
	return err
}

// connectRedis returns nil when replication is not configured
func connectRedis(ctx context.Context) (*redis.Client, error) {
	url := viper.GetString("redis.url")
	if url == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis.url: %v", util.ErrInvalidConfig, err)
	}
	rdb := redis.NewClient(opt)

	err = util.RetryContext(ctx, util.DefaultRetryConfig(), func() error {
		return rdb.Ping(ctx).Err()
	}, "redis ping")
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	util.InfoLog("Connected to redis at %s", opt.Addr)
	return rdb, nil
}

// watchDirs scans every directory once, then follows changes until ctx is done
func watchDirs(ctx context.Context, scanner *scan.Scanner, dirs []string) error {
	for _, dir := range dirs {
		if _, err := scanner.Scan(ctx, dir); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("initial scan of %s failed: %w", dir, err)
		}
	}

	watcher := scan.NewWatcher(scanner, 2*time.Second)
	return watcher.Watch(ctx, dirs, nil)
}
