package procman

import (
	"net"

	"github.com/cockroachdb/errors"
)

// ErrPortAllocation marks a failure to find free ports. Setup cannot proceed
// without them, so callers treat it as fatal and never retry.
var ErrPortAllocation = errors.New("port allocation failed")

// FreePorts allocates n mutually distinct, currently unused TCP ports. All n
// listeners are held open until every port is bound, which is what guarantees
// distinctness.
func FreePorts(n int) ([]int, error) {
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	ports := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "binding ephemeral port"), ErrPortAllocation)
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	return ports, nil
}
