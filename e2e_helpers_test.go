// Shared plumbing for the live-cluster scenarios. The scenarios drive real
// server processes and therefore need a server binary: set
// VECSTORE_SERVER_BIN to its path, or the tests skip themselves.
//
// Run: go test -v -run TestRemoveNode -timeout 10m
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erare-humanum/clusterharness/internal/cluster"
	"github.com/erare-humanum/clusterharness/internal/config"
	"github.com/erare-humanum/clusterharness/internal/procman"
	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

const collectionName = "test_collection"

// scenario bundles everything a fault-injection flow needs: the converged
// topology, the process manager for killing peers, and the inspector for
// convergence waits. Teardown of all launched processes is registered before
// anything is launched, so it runs on every exit path.
type scenario struct {
	t       *testing.T
	ctx     context.Context
	api     *vsapi.Client
	inspect *cluster.Inspector
	proc    *procman.Manager
	topo    *cluster.Topology
}

func startScenario(t *testing.T, numPeers int) *scenario {
	t.Helper()
	cfg := config.FromEnv()
	if cfg.ServerBin == "" {
		t.Skip("VECSTORE_SERVER_BIN not set, skipping live-cluster scenario")
	}

	log := zaptest.NewLogger(t)
	api := vsapi.NewClient()

	proc := procman.NewManager(cfg.ServerBin, log)
	proc.ServerLogLevel = cfg.ServerLogLevel
	t.Cleanup(proc.TerminateAll)

	inspect := cluster.NewInspector(api, log)
	inspect.WaitTimeout = cfg.WaitTimeout
	inspect.RetryInterval = cfg.RetryInterval

	baseDir := filepath.Join(os.TempDir(), "harness-"+uuid.NewString())
	require.NoError(t, os.MkdirAll(baseDir, 0o755))
	t.Cleanup(func() {
		if !t.Failed() {
			_ = os.RemoveAll(baseDir)
		}
	})

	b := &cluster.Bootstrapper{Proc: proc, Inspect: inspect, Log: log}
	topo, err := b.Start(context.Background(), numPeers, baseDir)
	require.NoError(t, err, "cluster bootstrap")

	return &scenario{
		t:       t,
		ctx:     context.Background(),
		api:     api,
		inspect: inspect,
		proc:    proc,
		topo:    topo,
	}
}

func (s *scenario) createCollection(peerURL string, shards, replicas int) {
	s.t.Helper()
	err := s.api.CreateCollection(s.ctx, peerURL, collectionName, vsapi.CollectionSpec{
		Vectors:           vsapi.VectorParams{Size: 4, Distance: "Dot"},
		ShardNumber:       shards,
		ReplicationFactor: replicas,
	})
	require.NoError(s.t, err, "create collection")
}

// cityVectors are the fixed vectors used by every scenario; upserting a
// second city overwrites the same ids 1..10.
var cityVectors = [][]float32{
	{0.05, 0.61, 0.76, 0.74},
	{0.19, 0.81, 0.75, 0.11},
	{0.36, 0.55, 0.47, 0.94},
	{0.18, 0.01, 0.85, 0.80},
	{0.24, 0.18, 0.22, 0.44},
	{0.35, 0.08, 0.11, 0.44},
	{0.45, 0.07, 0.21, 0.04},
	{0.75, 0.18, 0.91, 0.48},
	{0.30, 0.01, 0.10, 0.12},
	{0.95, 0.8, 0.17, 0.19},
}

func (s *scenario) upsertCity(peerURL, city string) {
	s.t.Helper()
	points := make([]vsapi.Point, 0, len(cityVectors))
	for i, v := range cityVectors {
		points = append(points, vsapi.Point{
			ID:      uint64(i + 1),
			Vector:  v,
			Payload: map[string]any{"city": city},
		})
	}
	err := s.api.UpsertPoints(s.ctx, peerURL, collectionName, points)
	require.NoError(s.t, err, "upsert %s points", city)
}

func (s *scenario) searchCity(peerURL, city string) []vsapi.ScoredPoint {
	s.t.Helper()
	hits, err := s.api.SearchPoints(s.ctx, peerURL, collectionName, vsapi.SearchRequest{
		Vector:      []float32{0.2, 0.1, 0.9, 0.7},
		Top:         10,
		Filter:      vsapi.MatchField("city", city),
		WithPayload: true,
	})
	require.NoError(s.t, err, "search city %s", city)
	return hits
}
