// Package procman launches and owns the server processes that make up a test
// cluster. Every launched process is tracked in the manager's registry, and
// TerminateAll is deferred by every scenario so that no peer outlives its
// test, however the scenario exits.
package procman

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const envPrefix = "VECSTORE__"

// Ports are the three network identities of one peer: inter-node consensus,
// data-plane gRPC, and data-plane HTTP.
type Ports struct {
	P2P  int
	GRPC int
	HTTP int
}

// Peer is one launched server process. The manager owns the process handle
// exclusively until Kill or TerminateAll; a killed peer is never restarted.
type Peer struct {
	Name  string
	Dir   string
	Ports Ports

	cmd     *exec.Cmd
	logFile *os.File
}

// P2PURI is the peer's advertised consensus address, also used as the join
// target by peers bootstrapping into its cluster.
func (p *Peer) P2PURI() string { return fmt.Sprintf("http://127.0.0.1:%d", p.Ports.P2P) }

// APIURL is the peer's data-plane HTTP address.
func (p *Peer) APIURL() string { return fmt.Sprintf("http://127.0.0.1:%d", p.Ports.HTTP) }

// GRPCAddr is the peer's data-plane gRPC address.
func (p *Peer) GRPCAddr() string { return fmt.Sprintf("127.0.0.1:%d", p.Ports.GRPC) }

// PID returns the OS process id, or 0 if the process never started.
func (p *Peer) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Manager launches peers from a server binary and keeps the registry of
// everything it launched. The registry is the one piece of shared mutable
// state in the harness; the mutex makes teardown safe to run concurrently
// with nothing having been started, or after partial setup.
type Manager struct {
	// Binary is the server executable to launch.
	Binary string
	// ServerLogLevel is handed to every peer through its environment.
	ServerLogLevel string
	// ExtraEnv is appended to every peer's environment, after the standard
	// configuration keys.
	ExtraEnv []string

	log *zap.Logger

	mu    sync.Mutex
	peers []*Peer
}

// NewManager returns a manager launching the given binary.
func NewManager(binary string, log *zap.Logger) *Manager {
	return &Manager{Binary: binary, ServerLogLevel: "debug", log: log}
}

// StartPeer allocates three ports, builds the peer's environment, and spawns
// the server process bound to dir. An empty bootstrapURI starts the peer as a
// cluster of one (the bootstrap peer); otherwise the peer joins the cluster
// at bootstrapURI. The peer's stderr goes to <dir>/<name>.log.
func (m *Manager) StartPeer(dir, name, bootstrapURI string) (*Peer, error) {
	ports, err := FreePorts(3)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		Name:  name,
		Dir:   dir,
		Ports: Ports{P2P: ports[0], GRPC: ports[1], HTTP: ports[2]},
	}

	logPath := filepath.Join(dir, name+".log")
	p.logFile, err = os.Create(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "creating log file for peer %s", name)
	}

	args := []string{"--uri", p.P2PURI()}
	if bootstrapURI != "" {
		args = append(args, "--bootstrap", bootstrapURI)
	}

	cmd := exec.Command(m.Binary, args...)
	cmd.Dir = dir
	cmd.Env = m.peerEnv(p.Ports)
	cmd.Stderr = p.logFile
	setProcessGroup(cmd)
	p.cmd = cmd

	m.log.Info("starting peer",
		zap.String("peer", name),
		zap.String("uri", p.P2PURI()),
		zap.String("api", p.APIURL()),
		zap.String("bootstrap", bootstrapURI),
		zap.String("log", logPath),
	)
	if err := cmd.Start(); err != nil {
		_ = p.logFile.Close()
		return nil, errors.Wrapf(err, "starting peer %s", name)
	}
	m.log.Info("peer started", zap.String("peer", name), zap.Int("pid", p.PID()))

	m.mu.Lock()
	m.peers = append(m.peers, p)
	m.mu.Unlock()
	return p, nil
}

// peerEnv builds the environment handed to a peer: the inherited environment
// scrubbed of server configuration keys, then cluster mode, the three ports,
// and log verbosity.
func (m *Manager) peerEnv(ports Ports) []string {
	env := make([]string, 0, len(os.Environ())+8)
	for _, e := range os.Environ() {
		if len(e) >= len(envPrefix) && e[:len(envPrefix)] == envPrefix {
			continue
		}
		env = append(env, e)
	}
	env = append(env,
		envPrefix+"CLUSTER__ENABLED=true",
		fmt.Sprintf("%sCLUSTER__P2P__PORT=%d", envPrefix, ports.P2P),
		fmt.Sprintf("%sSERVICE__GRPC_PORT=%d", envPrefix, ports.GRPC),
		fmt.Sprintf("%sSERVICE__HTTP_PORT=%d", envPrefix, ports.HTTP),
		envPrefix+"LOG_LEVEL="+m.ServerLogLevel,
	)
	return append(env, m.ExtraEnv...)
}

// Kill removes p from the registry and terminates it abruptly: the whole
// process group gets an unconditional kill signal, no shutdown handshake.
// This models a crash, not a clean leave. Killing a peer the manager no
// longer tracks is a no-op.
func (m *Manager) Kill(p *Peer) {
	m.mu.Lock()
	found := false
	for i, q := range m.peers {
		if q == p {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return
	}
	m.terminate(p)
}

// TerminateAll kills every still-tracked peer. It is idempotent, safe on an
// empty registry, and independent of launch order; scenarios defer it
// unconditionally.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	peers := m.peers
	m.peers = nil
	m.mu.Unlock()

	for _, p := range peers {
		m.terminate(p)
	}
}

// Peers returns a snapshot of the tracked peers in launch order.
func (m *Manager) Peers() []*Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Peer(nil), m.peers...)
}

func (m *Manager) terminate(p *Peer) {
	m.log.Info("killing peer", zap.String("peer", p.Name), zap.Int("pid", p.PID()))
	if p.cmd != nil && p.cmd.Process != nil {
		killProcessGroup(p.cmd)
		// Reap the child so it does not linger as a zombie for the rest of
		// the test run.
		_ = p.cmd.Wait()
	}
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
}
