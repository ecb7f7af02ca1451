package cluster

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/erare-humanum/clusterharness/internal/await"
)

// until runs one condition with the inspector's polling parameters.
func (in *Inspector) until(ctx context.Context, cond await.Condition) error {
	return await.Until(ctx, cond, in.WaitTimeout, in.RetryInterval)
}

// WaitPeerAdded waits until the peer reports the expected cluster size and a
// defined leader, then returns the leader id.
func (in *Inspector) WaitPeerAdded(ctx context.Context, peerURL string, expectedSize int) (uint64, error) {
	if err := in.until(ctx, in.SizeIs(peerURL, expectedSize)); err != nil {
		return 0, in.withClusterDump(ctx, err, []string{peerURL})
	}
	if err := in.until(ctx, in.LeaderDefined(peerURL)); err != nil {
		return 0, in.withClusterDump(ctx, err, []string{peerURL})
	}
	s, err := in.API.ClusterStatus(ctx, peerURL)
	if err != nil {
		return 0, err
	}
	if s.RaftInfo.Leader == nil {
		// The leader was defined a moment ago; losing it again means the
		// cluster is not stable enough to build on.
		return 0, errors.Newf("peer %s lost its leader right after electing one", peerURL)
	}
	return *s.RaftInfo.Leader, nil
}

// WaitUniformClusterStatus waits until every peer reports the given leader
// and a cluster size equal to the peer set.
func (in *Inspector) WaitUniformClusterStatus(ctx context.Context, peerURLs []string, leader uint64) error {
	err := in.until(ctx, in.Consistent(peerURLs, leader))
	return in.withClusterDump(ctx, err, peerURLs)
}

// WaitCollectionOnAllPeers waits until every peer lists the collection.
func (in *Inspector) WaitCollectionOnAllPeers(ctx context.Context, name string, peerURLs []string) error {
	err := in.until(ctx, in.CollectionOnAllPeers(name, peerURLs))
	return in.withClusterDump(ctx, err, peerURLs)
}

// WaitAllReplicasActive waits until the peer sees every replica of the
// collection Active.
func (in *Inspector) WaitAllReplicasActive(ctx context.Context, peerURL, name string) error {
	err := in.until(ctx, in.AllReplicasActive(peerURL, name))
	return in.withCollectionDump(ctx, err, peerURL, name)
}

// WaitSomeReplicasNotActive waits until the peer sees at least one replica of
// the collection in a non-Active state, i.e. the replication layer noticed a
// failure.
func (in *Inspector) WaitSomeReplicasNotActive(ctx context.Context, peerURL, name string) error {
	err := in.until(ctx, in.SomeReplicaNotActive(peerURL, name))
	return in.withCollectionDump(ctx, err, peerURL, name)
}

// WaitCollectionActiveOnAllPeers waits until the collection exists on every
// peer and every peer sees all of its replicas Active. Existence and
// activation propagate separately, so they are awaited as separate
// milestones.
func (in *Inspector) WaitCollectionActiveOnAllPeers(ctx context.Context, name string, peerURLs []string) error {
	if err := in.WaitCollectionOnAllPeers(ctx, name, peerURLs); err != nil {
		return err
	}
	for _, u := range peerURLs {
		if err := in.WaitAllReplicasActive(ctx, u, name); err != nil {
			return err
		}
	}
	return nil
}

// WaitLocalShardCount waits until the peer hosts the expected number of
// shards of the collection.
func (in *Inspector) WaitLocalShardCount(ctx context.Context, peerURL, name string, count int) error {
	err := in.until(ctx, in.LocalShardCountIs(peerURL, name, count))
	return in.withCollectionDump(ctx, err, peerURL, name)
}

// WaitTransferCount waits until the peer reports the expected number of
// in-flight shard transfers.
func (in *Inspector) WaitTransferCount(ctx context.Context, peerURL, name string, count int) error {
	err := in.until(ctx, in.TransferCountIs(peerURL, name, count))
	return in.withCollectionDump(ctx, err, peerURL, name)
}
