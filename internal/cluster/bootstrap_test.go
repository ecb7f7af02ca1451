package cluster_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erare-humanum/clusterharness/internal/cluster"
	"github.com/erare-humanum/clusterharness/internal/procman"
	"github.com/erare-humanum/clusterharness/internal/testutil"
	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

func TestMain(m *testing.M) {
	if os.Getenv(testutil.StubPeerEnv) == "1" {
		testutil.RunStubPeer()
		return
	}
	os.Exit(m.Run())
}

func TestBootstrapperRejectsEmptyCluster(t *testing.T) {
	b := &cluster.Bootstrapper{Log: zaptest.NewLogger(t)}
	_, err := b.Start(context.Background(), 0, t.TempDir())
	require.Error(t, err)
}

// The stub peer is a permanent single-member cluster with itself as leader,
// which is exactly the state a real bootstrap peer settles into, so a
// one-peer bootstrap exercises the full path: directories, launch, the
// settle waits, convergence, and the gRPC probe.
func TestBootstrapSinglePeerCluster(t *testing.T) {
	log := zaptest.NewLogger(t)
	m := procman.NewManager(os.Args[0], log)
	m.ExtraEnv = []string{testutil.StubPeerEnv + "=1"}
	t.Cleanup(m.TerminateAll)

	in := cluster.NewInspector(vsapi.NewClient(), log)
	in.WaitTimeout = 10 * time.Second
	in.RetryInterval = 50 * time.Millisecond

	cfgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "settings.yaml"), []byte("log_level: debug\n"), 0o644))

	baseDir := t.TempDir()
	b := &cluster.Bootstrapper{
		Proc:      m,
		Inspect:   in,
		Log:       log,
		ConfigDir: cfgDir,
		ProbeGRPC: true,
	}

	topo, err := b.Start(context.Background(), 1, baseDir)
	require.NoError(t, err)

	require.Len(t, topo.APIURLs, 1)
	require.Len(t, topo.Peers, 1)
	assert.Equal(t, uint64(1), topo.Leader)
	assert.Equal(t, topo.Peers[0].P2PURI(), topo.BootstrapURI)
	assert.Equal(t, filepath.Join(baseDir, "peer0"), topo.PeerDirs[0])

	// The config tree was copied into the peer's working directory.
	_, err = os.Stat(filepath.Join(topo.PeerDirs[0], filepath.Base(cfgDir), "settings.yaml"))
	assert.NoError(t, err)

	// And the peer is queryable through its returned API URL.
	status, err := in.API.ClusterStatus(context.Background(), topo.APIURLs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, status.Size())
}
