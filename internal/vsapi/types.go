package vsapi

import "encoding/json"

// ShardState is the replica state reported by the server for one shard copy.
// The harness only ever distinguishes Active from everything else; the
// non-active states (dead, partial, transferring, ...) are opaque to it.
type ShardState string

// ShardActive is the only state the harness inspects by name.
const ShardActive ShardState = "Active"

// Active reports whether the replica is serving and consistent.
func (s ShardState) Active() bool { return s == ShardActive }

// PeerInfo is one cluster member as listed by the cluster status endpoint.
type PeerInfo struct {
	URI string `json:"uri"`
}

// RaftInfo is the consensus summary reported by a peer. Leader is nil until
// the peer has observed an elected leader.
type RaftInfo struct {
	Term              uint64  `json:"term"`
	Commit            uint64  `json:"commit"`
	PendingOperations int     `json:"pending_operations"`
	Leader            *uint64 `json:"leader"`
	Role              string  `json:"role"`
	IsVoter           bool    `json:"is_voter"`
}

// ClusterStatus is one peer's view of cluster membership. Peers is keyed by
// the decimal peer id, as the server reports it.
type ClusterStatus struct {
	Status   string              `json:"status"`
	PeerID   uint64              `json:"peer_id"`
	Peers    map[string]PeerInfo `json:"peers"`
	RaftInfo RaftInfo            `json:"raft_info"`
}

// Size returns the number of peers this peer knows about.
func (s ClusterStatus) Size() int { return len(s.Peers) }

// CollectionDescription is one entry of the collections listing.
type CollectionDescription struct {
	Name string `json:"name"`
}

// VectorParams describes the vector space of a collection.
type VectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// CollectionSpec is the body of a collection-creation request.
type CollectionSpec struct {
	Vectors           VectorParams `json:"vectors"`
	ShardNumber       int          `json:"shard_number"`
	ReplicationFactor int          `json:"replication_factor"`
}

// LocalShardInfo is a shard hosted on the queried peer.
type LocalShardInfo struct {
	ShardID     int        `json:"shard_id"`
	PointsCount int        `json:"points_count"`
	State       ShardState `json:"state"`
}

// RemoteShardInfo is a shard hosted elsewhere, as seen from the queried peer.
type RemoteShardInfo struct {
	ShardID int        `json:"shard_id"`
	PeerID  uint64     `json:"peer_id"`
	State   ShardState `json:"state"`
}

// ShardTransferInfo is an in-flight shard move. The harness only counts
// transfers; the fields are carried for diagnostics dumps.
type ShardTransferInfo struct {
	ShardID int    `json:"shard_id"`
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
}

// CollectionClusterInfo is one peer's view of a collection's shard placement.
type CollectionClusterInfo struct {
	PeerID         uint64              `json:"peer_id"`
	ShardCount     int                 `json:"shard_count"`
	LocalShards    []LocalShardInfo    `json:"local_shards"`
	RemoteShards   []RemoteShardInfo   `json:"remote_shards"`
	ShardTransfers []ShardTransferInfo `json:"shard_transfers"`
}

// Point is one vector record with its payload.
type Point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Match is an exact-value payload match.
type Match struct {
	Value any `json:"value"`
}

// FieldCondition matches a payload field against a value.
type FieldCondition struct {
	Key   string `json:"key"`
	Match *Match `json:"match,omitempty"`
}

// Filter is a payload filter; only the conjunctive form is modeled.
type Filter struct {
	Must []FieldCondition `json:"must,omitempty"`
}

// MatchField builds a single-field equality filter.
func MatchField(key string, value any) *Filter {
	return &Filter{Must: []FieldCondition{{Key: key, Match: &Match{Value: value}}}}
}

// SearchRequest is the body of a points search.
type SearchRequest struct {
	Vector      []float32 `json:"vector"`
	Top         int       `json:"top"`
	Filter      *Filter   `json:"filter,omitempty"`
	WithPayload bool      `json:"with_payload"`
	WithVector  bool      `json:"with_vector"`
}

// ScoredPoint is one search hit.
type ScoredPoint struct {
	ID      uint64         `json:"id"`
	Version uint64         `json:"version"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
	Vector  []float32      `json:"vector,omitempty"`
}

// MoveShardRequest relocates one shard between peers.
type MoveShardRequest struct {
	ShardID    int    `json:"shard_id"`
	FromPeerID uint64 `json:"from_peer_id"`
	ToPeerID   uint64 `json:"to_peer_id"`
}

// envelope is the top-level response shape shared by every endpoint: the
// payload lives under "result".
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}
