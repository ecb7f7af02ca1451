package procman

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// WaitGRPCReady blocks until a gRPC connection to addr reaches the Ready
// state, or the timeout elapses. The harness never speaks the data-plane RPC
// protocol itself; this is purely a readiness probe for the port the peer
// advertises.
func WaitGRPCReady(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return errors.Wrapf(err, "building gRPC client for %s", addr)
	}
	defer conn.Close()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return errors.Wrapf(ctx.Err(), "waiting for gRPC service at %s", addr)
		}
	}
}
