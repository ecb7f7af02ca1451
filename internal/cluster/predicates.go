// Package cluster turns the raw per-peer API views into the convergence
// conditions scenarios wait on, and bootstraps whole clusters of peers.
package cluster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erare-humanum/clusterharness/internal/await"
	"github.com/erare-humanum/clusterharness/internal/config"
	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

// Inspector derives boolean convergence conditions from peer state.
//
// Conditions over the cluster-status endpoint treat an unreachable peer as
// "not yet" — the process may simply not be listening so far. Conditions over
// collection state do not: by the time a scenario asks about a collection,
// every involved peer has already served requests, so unreachability there is
// a hard failure, as is any non-200 response anywhere.
type Inspector struct {
	API *vsapi.Client
	Log *zap.Logger

	// WaitTimeout and RetryInterval parameterize the Wait* helpers.
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// NewInspector returns an Inspector with the default polling parameters.
func NewInspector(api *vsapi.Client, log *zap.Logger) *Inspector {
	return &Inspector{
		API:           api,
		Log:           log,
		WaitTimeout:   config.DefaultWaitTimeout,
		RetryInterval: config.DefaultRetryInterval,
	}
}

// status fetches a peer's cluster status, mapping unavailability to
// (not yet, no error).
func (in *Inspector) status(ctx context.Context, peerURL string) (vsapi.ClusterStatus, bool, error) {
	s, err := in.API.ClusterStatus(ctx, peerURL)
	if err != nil {
		if vsapi.IsUnavailable(err) {
			in.Log.Debug("peer not reachable yet", zap.String("peer", peerURL))
			return vsapi.ClusterStatus{}, false, nil
		}
		return vsapi.ClusterStatus{}, false, err
	}
	return s, true, nil
}

// LeaderIs holds when the peer reports the expected leader.
func (in *Inspector) LeaderIs(peerURL string, leader uint64) await.Condition {
	return await.Cond(fmt.Sprintf("leader of %s is %d", peerURL, leader),
		func(ctx context.Context) (bool, error) {
			s, up, err := in.status(ctx, peerURL)
			if err != nil || !up {
				return false, err
			}
			if s.RaftInfo.Leader == nil || *s.RaftInfo.Leader != leader {
				in.Log.Debug("leader mismatch",
					zap.String("peer", peerURL),
					zap.Uint64p("reported", s.RaftInfo.Leader),
					zap.Uint64("expected", leader))
				return false, nil
			}
			return true, nil
		})
}

// SizeIs holds when the peer reports the expected cluster size.
func (in *Inspector) SizeIs(peerURL string, size int) await.Condition {
	return await.Cond(fmt.Sprintf("cluster size on %s is %d", peerURL, size),
		func(ctx context.Context) (bool, error) {
			s, up, err := in.status(ctx, peerURL)
			if err != nil || !up {
				return false, err
			}
			if s.Size() != size {
				in.Log.Debug("cluster size mismatch",
					zap.String("peer", peerURL),
					zap.Int("reported", s.Size()),
					zap.Int("expected", size))
				return false, nil
			}
			return true, nil
		})
}

// LeaderDefined holds when the peer has observed any elected leader.
func (in *Inspector) LeaderDefined(peerURL string) await.Condition {
	return await.Cond(fmt.Sprintf("leader defined on %s", peerURL),
		func(ctx context.Context) (bool, error) {
			s, up, err := in.status(ctx, peerURL)
			if err != nil || !up {
				return false, err
			}
			return s.RaftInfo.Leader != nil, nil
		})
}

// Consistent holds when every peer in the set simultaneously reports the
// expected leader and a cluster size equal to the set size. Peers are checked
// sequentially and the first failing peer short-circuits the evaluation.
func (in *Inspector) Consistent(peerURLs []string, leader uint64) await.Condition {
	size := len(peerURLs)
	return await.Cond(fmt.Sprintf("all %d peers agree on leader %d", size, leader),
		func(ctx context.Context) (bool, error) {
			for _, u := range peerURLs {
				ok, err := in.LeaderIs(u, leader).Eval(ctx)
				if err != nil || !ok {
					return false, err
				}
				ok, err = in.SizeIs(u, size).Eval(ctx)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		})
}

// CollectionExists holds when the peer lists the collection.
func (in *Inspector) CollectionExists(peerURL, name string) await.Condition {
	return await.Cond(fmt.Sprintf("collection %q exists on %s", name, peerURL),
		func(ctx context.Context) (bool, error) {
			collections, err := in.API.ListCollections(ctx, peerURL)
			if err != nil {
				return false, err
			}
			for _, c := range collections {
				if c.Name == name {
					return true, nil
				}
			}
			in.Log.Debug("collection missing",
				zap.String("peer", peerURL),
				zap.String("collection", name),
				zap.Int("found", len(collections)))
			return false, nil
		})
}

// CollectionOnAllPeers holds when every peer in the set lists the collection.
// Consensus only guarantees the collection appears on a majority promptly, so
// the full set can lag behind creation.
func (in *Inspector) CollectionOnAllPeers(name string, peerURLs []string) await.Condition {
	return await.Cond(fmt.Sprintf("collection %q exists on all %d peers", name, len(peerURLs)),
		func(ctx context.Context) (bool, error) {
			for _, u := range peerURLs {
				ok, err := in.CollectionExists(u, name).Eval(ctx)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		})
}

// LocalShardCountIs holds when the peer hosts the expected number of shards.
func (in *Inspector) LocalShardCountIs(peerURL, name string, count int) await.Condition {
	return await.Cond(fmt.Sprintf("local shard count of %q on %s is %d", name, peerURL, count),
		func(ctx context.Context) (bool, error) {
			info, err := in.API.CollectionClusterInfo(ctx, peerURL, name)
			if err != nil {
				return false, err
			}
			return len(info.LocalShards) == count, nil
		})
}

// TransferCountIs holds when the peer reports the expected number of
// in-flight shard transfers.
func (in *Inspector) TransferCountIs(peerURL, name string, count int) await.Condition {
	return await.Cond(fmt.Sprintf("shard transfer count of %q on %s is %d", name, peerURL, count),
		func(ctx context.Context) (bool, error) {
			info, err := in.API.CollectionClusterInfo(ctx, peerURL, name)
			if err != nil {
				return false, err
			}
			return len(info.ShardTransfers) == count, nil
		})
}

// replicasAllActive reports whether every local and remote shard the peer
// sees for the collection is Active.
func (in *Inspector) replicasAllActive(ctx context.Context, peerURL, name string) (bool, error) {
	info, err := in.API.CollectionClusterInfo(ctx, peerURL, name)
	if err != nil {
		return false, err
	}
	for _, s := range info.LocalShards {
		if !s.State.Active() {
			return false, nil
		}
	}
	for _, s := range info.RemoteShards {
		if !s.State.Active() {
			return false, nil
		}
	}
	return true, nil
}

// AllReplicasActive holds when every replica of the collection the peer sees,
// local and remote, is Active.
func (in *Inspector) AllReplicasActive(peerURL, name string) await.Condition {
	return await.Cond(fmt.Sprintf("all replicas of %q active on %s", name, peerURL),
		func(ctx context.Context) (bool, error) {
			return in.replicasAllActive(ctx, peerURL, name)
		})
}

// SomeReplicaNotActive is the exact negation of AllReplicasActive at every
// evaluation.
func (in *Inspector) SomeReplicaNotActive(peerURL, name string) await.Condition {
	return await.Cond(fmt.Sprintf("some replica of %q not active on %s", name, peerURL),
		func(ctx context.Context) (bool, error) {
			allActive, err := in.replicasAllActive(ctx, peerURL, name)
			if err != nil {
				return false, err
			}
			return !allActive, nil
		})
}

// DeadRemotePeers returns the ids of peers hosting non-Active remote shards
// of the collection, as seen from one peer, deduplicated in discovery order.
func (in *Inspector) DeadRemotePeers(ctx context.Context, peerURL, name string) ([]uint64, error) {
	info, err := in.API.CollectionClusterInfo(ctx, peerURL, name)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint64]bool)
	var dead []uint64
	for _, s := range info.RemoteShards {
		if !s.State.Active() && !seen[s.PeerID] {
			seen[s.PeerID] = true
			dead = append(dead, s.PeerID)
		}
	}
	return dead, nil
}
