package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/erare-humanum/clusterharness/internal/await"
)

// ClusterDump renders every reachable peer's raw cluster status as indented
// JSON. Unreachable peers are listed with their error so a convergence
// failure shows exactly which peers disagree, or are gone.
func (in *Inspector) ClusterDump(ctx context.Context, peerURLs []string) string {
	var b strings.Builder
	for _, u := range peerURLs {
		fmt.Fprintf(&b, "--- %s\n", u)
		s, err := in.API.ClusterStatus(ctx, u)
		if err != nil {
			fmt.Fprintf(&b, "unreachable: %v\n", err)
			continue
		}
		raw, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "unrenderable: %v\n", err)
			continue
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// CollectionDump renders one peer's view of a collection's shard placement.
func (in *Inspector) CollectionDump(ctx context.Context, peerURL, name string) string {
	info, err := in.API.CollectionClusterInfo(ctx, peerURL, name)
	if err != nil {
		return fmt.Sprintf("--- %s\nunreachable: %v\n", peerURL, err)
	}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Sprintf("--- %s\nunrenderable: %v\n", peerURL, err)
	}
	return fmt.Sprintf("--- %s\n%s\n", peerURL, raw)
}

// withClusterDump attaches a full cluster-state dump to a timeout error. The
// dump is also logged, since a bare timeout is nearly impossible to diagnose
// after the peers are torn down.
func (in *Inspector) withClusterDump(ctx context.Context, err error, peerURLs []string) error {
	if err == nil || !errors.Is(err, await.ErrConditionTimeout) {
		return err
	}
	dump := in.ClusterDump(ctx, peerURLs)
	in.Log.Error("convergence failed", zap.Error(err), zap.String("cluster_state", dump))
	return errors.WithDetail(err, dump)
}

// withCollectionDump is withClusterDump for collection shard placement.
func (in *Inspector) withCollectionDump(ctx context.Context, err error, peerURL, name string) error {
	if err == nil || !errors.Is(err, await.ErrConditionTimeout) {
		return err
	}
	dump := in.CollectionDump(ctx, peerURL, name)
	in.Log.Error("convergence failed", zap.Error(err), zap.String("collection_state", dump))
	return errors.WithDetail(err, dump)
}
