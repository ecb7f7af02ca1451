// Command downscale drains one peer of a cluster and detaches it: every
// local shard of the given collection is moved to a remote peer, the tool
// waits until the peer hosts nothing, then removes the peer from membership.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erare-humanum/clusterharness/internal/cluster"
	"github.com/erare-humanum/clusterharness/internal/config"
	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

func main() {
	if err := newDownscaleCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newDownscaleCmd() *cobra.Command {
	var (
		peerURL    string
		collection string
		timeout    time.Duration
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:          "downscale",
		Short:        "Move all of a peer's local shards away and detach it from the cluster",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := config.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runDownscale(cmd.Context(), log, peerURL, collection, timeout, interval)
		},
	}

	cmd.Flags().StringVar(&peerURL, "peer", "http://127.0.0.1:6333", "API URL of the peer to drain")
	cmd.Flags().StringVar(&collection, "collection", "", "collection whose shards are moved")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the drain to finish")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval while draining")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func runDownscale(ctx context.Context, log *zap.Logger, peerURL, collection string, timeout, interval time.Duration) error {
	api := vsapi.NewClient()

	info, err := api.CollectionClusterInfo(ctx, peerURL, collection)
	if err != nil {
		return err
	}
	if len(info.LocalShards) == 0 {
		log.Info("peer hosts no shards of the collection, detaching directly",
			zap.Uint64("peer_id", info.PeerID))
		return api.RemovePeer(ctx, peerURL, info.PeerID, false)
	}
	if len(info.RemoteShards) == 0 {
		return errors.Newf("peer %d hosts %d shards but no remote peer exists to take them",
			info.PeerID, len(info.LocalShards))
	}
	target := info.RemoteShards[0].PeerID

	for _, s := range info.LocalShards {
		log.Info("moving shard",
			zap.Int("shard", s.ShardID),
			zap.Uint64("from", info.PeerID),
			zap.Uint64("to", target))
		err := api.MoveShard(ctx, peerURL, collection, vsapi.MoveShardRequest{
			ShardID:    s.ShardID,
			FromPeerID: info.PeerID,
			ToPeerID:   target,
		})
		if err != nil {
			return errors.Wrapf(err, "moving shard %d", s.ShardID)
		}
	}

	in := cluster.NewInspector(api, log)
	in.WaitTimeout = timeout
	in.RetryInterval = interval
	if err := in.WaitLocalShardCount(ctx, peerURL, collection, 0); err != nil {
		return errors.Wrap(err, "draining peer")
	}

	log.Info("peer drained, detaching", zap.Uint64("peer_id", info.PeerID))
	return api.RemovePeer(ctx, peerURL, info.PeerID, false)
}
