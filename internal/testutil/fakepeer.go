// Package testutil provides in-process stand-ins for server peers, so the
// query and predicate layers can be tested without a server binary.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

// FakePeer serves the subset of the server HTTP surface the harness consumes,
// backed by settable state. All mutators are safe for concurrent use with the
// serving goroutines.
type FakePeer struct {
	mu                sync.Mutex
	status            vsapi.ClusterStatus
	collections       []vsapi.CollectionDescription
	collectionCluster map[string]vsapi.CollectionClusterInfo
	searchResults     []vsapi.ScoredPoint
	upserted          [][]vsapi.Point
	removedPeers      []uint64
	statusHits        int

	srv *httptest.Server
}

// NewFakePeer starts a fake peer with empty state.
func NewFakePeer() *FakePeer {
	p := &FakePeer{
		collectionCluster: make(map[string]vsapi.CollectionClusterInfo),
	}

	r := mux.NewRouter()
	r.HandleFunc("/cluster", p.handleClusterStatus).Methods(http.MethodGet)
	r.HandleFunc("/cluster/peer/{id}", p.handleRemovePeer).Methods(http.MethodDelete)
	r.HandleFunc("/collections", p.handleListCollections).Methods(http.MethodGet)
	r.HandleFunc("/collections/{name}/cluster", p.handleCollectionCluster).Methods(http.MethodGet)
	r.HandleFunc("/collections/{name}/cluster", p.handleMoveShard).Methods(http.MethodPost)
	r.HandleFunc("/collections/{name}/points", p.handleUpsert).Methods(http.MethodPut)
	r.HandleFunc("/collections/{name}/points/search", p.handleSearch).Methods(http.MethodPost)

	p.srv = httptest.NewServer(r)
	return p
}

// URL is the peer's API base URL.
func (p *FakePeer) URL() string { return p.srv.URL }

// Close shuts the peer down.
func (p *FakePeer) Close() { p.srv.Close() }

// SetStatus replaces the served cluster status.
func (p *FakePeer) SetStatus(s vsapi.ClusterStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// SetCollections replaces the served collections listing.
func (p *FakePeer) SetCollections(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections = p.collections[:0]
	for _, n := range names {
		p.collections = append(p.collections, vsapi.CollectionDescription{Name: n})
	}
}

// SetCollectionCluster replaces the served shard placement for a collection.
func (p *FakePeer) SetCollectionCluster(name string, info vsapi.CollectionClusterInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectionCluster[name] = info
}

// SetSearchResults replaces the canned search response.
func (p *FakePeer) SetSearchResults(points ...vsapi.ScoredPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchResults = points
}

// Upserted returns every batch of points written to this peer.
func (p *FakePeer) Upserted() [][]vsapi.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]vsapi.Point(nil), p.upserted...)
}

// RemovedPeers returns the peer ids removed through this peer, in order.
func (p *FakePeer) RemovedPeers() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.removedPeers...)
}

// ClusterStatusRequests returns how many times /cluster was queried.
func (p *FakePeer) ClusterStatusRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusHits
}

func (p *FakePeer) handleClusterStatus(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusHits++
	writeResult(w, p.status)
}

func (p *FakePeer) handleListCollections(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	writeResult(w, map[string]any{"collections": p.collections})
}

func (p *FakePeer) handleCollectionCluster(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.collectionCluster[mux.Vars(r)["name"]]
	if !ok {
		http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
		return
	}
	writeResult(w, info)
}

func (p *FakePeer) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points []vsapi.Point `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upserted = append(p.upserted, body.Points)
	writeResult(w, map[string]any{"operation_id": len(p.upserted), "status": "completed"})
}

func (p *FakePeer) handleSearch(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := p.searchResults
	if results == nil {
		results = []vsapi.ScoredPoint{}
	}
	writeResult(w, results)
}

// handleMoveShard emulates a synchronous shard move: the shard disappears
// from local_shards and reappears as a remote shard on the target peer.
func (p *FakePeer) handleMoveShard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MoveShard vsapi.MoveShardRequest `json:"move_shard"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := mux.Vars(r)["name"]

	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.collectionCluster[name]
	if !ok {
		http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
		return
	}
	kept := info.LocalShards[:0]
	for _, s := range info.LocalShards {
		if s.ShardID == body.MoveShard.ShardID {
			info.RemoteShards = append(info.RemoteShards, vsapi.RemoteShardInfo{
				ShardID: s.ShardID,
				PeerID:  body.MoveShard.ToPeerID,
				State:   s.State,
			})
			continue
		}
		kept = append(kept, s)
	}
	info.LocalShards = kept
	p.collectionCluster[name] = info
	writeResult(w, true)
}

func (p *FakePeer) handleRemovePeer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removedPeers = append(p.removedPeers, id)
	writeResult(w, true)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.0001,
	})
}

// Uint64Ptr is a convenience for building RaftInfo literals in tests.
func Uint64Ptr(v uint64) *uint64 { return &v }
