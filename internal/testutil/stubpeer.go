package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"

	"google.golang.org/grpc"

	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

// StubPeerEnv gates RunStubPeer: test binaries re-exec themselves with this
// variable set to "1" to act as a launchable server peer.
const StubPeerEnv = "STUB_PEER"

// RunStubPeer turns the current process into a minimal server peer: it reads
// the standard port configuration from its environment, listens on its gRPC
// port, and serves a single-member /cluster view over HTTP until killed.
// Packages whose tests launch real processes call this from TestMain.
func RunStubPeer() {
	httpPort := os.Getenv("VECSTORE__SERVICE__HTTP_PORT")
	grpcPort := os.Getenv("VECSTORE__SERVICE__GRPC_PORT")
	status := "disabled"
	if os.Getenv("VECSTORE__CLUSTER__ENABLED") == "true" {
		status = "enabled"
	}

	lis, err := net.Listen("tcp", "127.0.0.1:"+grpcPort)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stub grpc listen:", err)
		os.Exit(1)
	}
	go func() {
		_ = grpc.NewServer().Serve(lis)
	}()

	leader := uint64(1)
	mux := http.NewServeMux()
	mux.HandleFunc("/cluster", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": vsapi.ClusterStatus{
				Status:   status,
				PeerID:   1,
				Peers:    map[string]vsapi.PeerInfo{"1": {}},
				RaftInfo: vsapi.RaftInfo{Leader: &leader, Role: "Leader"},
			},
			"status": "ok",
			"time":   0.0001,
		})
	})
	if err := http.ListenAndServe("127.0.0.1:"+httpPort, mux); err != nil {
		fmt.Fprintln(os.Stderr, "stub http serve:", err)
		os.Exit(1)
	}
}
