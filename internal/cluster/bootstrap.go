package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/erare-humanum/clusterharness/internal/procman"
)

// Topology is the result of bootstrapping a cluster: everything a scenario
// needs to drive data-plane operations and inject failures.
type Topology struct {
	// APIURLs are the peers' data-plane HTTP addresses, in launch order.
	APIURLs []string
	// PeerDirs are the peers' isolated working directories, in launch order.
	PeerDirs []string
	// BootstrapURI is the consensus address of the first peer, the join
	// target every other peer used.
	BootstrapURI string
	// Leader is the leader id elected by the bootstrap peer; post-bootstrap,
	// every peer agrees on it.
	Leader uint64
	// Peers are the process handles, in launch order, for fault injection.
	Peers []*procman.Peer
}

// Bootstrapper produces converged clusters of n peers.
type Bootstrapper struct {
	Proc    *procman.Manager
	Inspect *Inspector
	Log     *zap.Logger

	// ConfigDir, if set, is copied into every peer's working directory
	// before launch.
	ConfigDir string
	// ProbeGRPC additionally waits for every peer's data-plane gRPC port to
	// accept connections before returning.
	ProbeGRPC bool
}

// Start launches n peers under baseDir and blocks until they form one
// converged cluster: the bootstrap peer first, alone, until it elects itself;
// then the rest, each joining the bootstrap URI, until every peer reports the
// same leader and a cluster size of n.
func (b *Bootstrapper) Start(ctx context.Context, n int, baseDir string) (*Topology, error) {
	if n < 1 {
		return nil, errors.Newf("cluster needs at least one peer, requested %d", n)
	}

	dirs, err := b.makePeerDirs(baseDir, n)
	if err != nil {
		return nil, err
	}

	// The bootstrap peer starts strictly alone and must settle into a
	// single-member cluster with a leader before anyone joins. Starting
	// followers against an unelected peer risks split-brain on the very
	// first membership change.
	first, err := b.Proc.StartPeer(dirs[0], "peer0", "")
	if err != nil {
		return nil, err
	}
	topo := &Topology{
		APIURLs:      []string{first.APIURL()},
		PeerDirs:     dirs,
		BootstrapURI: first.P2PURI(),
		Peers:        []*procman.Peer{first},
	}

	leader, err := b.Inspect.WaitPeerAdded(ctx, first.APIURL(), 1)
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap peer did not settle")
	}
	topo.Leader = leader
	b.Log.Info("bootstrap peer settled",
		zap.String("uri", topo.BootstrapURI),
		zap.Uint64("leader", leader))

	// Followers all join the same bootstrap URI, not a chain; their relative
	// order carries no meaning.
	for i := 1; i < n; i++ {
		p, err := b.Proc.StartPeer(dirs[i], fmt.Sprintf("peer%d", i), topo.BootstrapURI)
		if err != nil {
			return nil, err
		}
		topo.APIURLs = append(topo.APIURLs, p.APIURL())
		topo.Peers = append(topo.Peers, p)
	}

	if err := b.Inspect.WaitUniformClusterStatus(ctx, topo.APIURLs, leader); err != nil {
		return nil, errors.Wrapf(err, "cluster of %d peers did not converge", n)
	}

	if b.ProbeGRPC {
		for _, p := range topo.Peers {
			if err := procman.WaitGRPCReady(ctx, p.GRPCAddr(), b.Inspect.WaitTimeout); err != nil {
				return nil, errors.Wrapf(err, "peer %s gRPC port not ready", p.Name)
			}
		}
	}

	b.Log.Info("cluster converged",
		zap.Int("peers", n),
		zap.Uint64("leader", leader))
	return topo, nil
}

// makePeerDirs creates one isolated working directory per peer, seeding each
// with the server config tree when one is configured.
func (b *Bootstrapper) makePeerDirs(baseDir string, n int) ([]string, error) {
	dirs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		dir := filepath.Join(baseDir, fmt.Sprintf("peer%d", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating peer directory %s", dir)
		}
		if b.ConfigDir != "" {
			dst := filepath.Join(dir, filepath.Base(b.ConfigDir))
			if err := os.CopyFS(dst, os.DirFS(b.ConfigDir)); err != nil {
				return nil, errors.Wrapf(err, "copying config into %s", dir)
			}
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}
