package vsapi_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erare-humanum/clusterharness/internal/testutil"
	"github.com/erare-humanum/clusterharness/internal/vsapi"
)

func TestClusterStatusParsesEnvelope(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()
	peer.SetStatus(vsapi.ClusterStatus{
		Status: "enabled",
		PeerID: 11,
		Peers: map[string]vsapi.PeerInfo{
			"11": {URI: "http://127.0.0.1:6335/"},
			"22": {URI: "http://127.0.0.1:6336/"},
		},
		RaftInfo: vsapi.RaftInfo{Term: 3, Leader: testutil.Uint64Ptr(11), Role: "Leader", IsVoter: true},
	})

	c := vsapi.NewClient()
	status, err := c.ClusterStatus(context.Background(), peer.URL())
	require.NoError(t, err)

	assert.Equal(t, uint64(11), status.PeerID)
	assert.Equal(t, 2, status.Size())
	require.NotNil(t, status.RaftInfo.Leader)
	assert.Equal(t, uint64(11), *status.RaftInfo.Leader)
}

func TestClusterStatusLeaderAbsentBeforeElection(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()
	peer.SetStatus(vsapi.ClusterStatus{
		PeerID:   11,
		Peers:    map[string]vsapi.PeerInfo{"11": {}},
		RaftInfo: vsapi.RaftInfo{Role: "Follower"},
	})

	c := vsapi.NewClient()
	status, err := c.ClusterStatus(context.Background(), peer.URL())
	require.NoError(t, err)
	assert.Nil(t, status.RaftInfo.Leader)
}

func TestCollectionClusterInfoShardStates(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()
	peer.SetCollectionCluster("places", vsapi.CollectionClusterInfo{
		PeerID:     11,
		ShardCount: 4,
		LocalShards: []vsapi.LocalShardInfo{
			{ShardID: 0, PointsCount: 5, State: vsapi.ShardActive},
			{ShardID: 1, PointsCount: 5, State: "Dead"},
		},
		RemoteShards: []vsapi.RemoteShardInfo{
			{ShardID: 2, PeerID: 22, State: vsapi.ShardActive},
		},
	})

	c := vsapi.NewClient()
	info, err := c.CollectionClusterInfo(context.Background(), peer.URL(), "places")
	require.NoError(t, err)

	assert.Equal(t, 4, info.ShardCount)
	require.Len(t, info.LocalShards, 2)
	assert.True(t, info.LocalShards[0].State.Active())
	assert.False(t, info.LocalShards[1].State.Active())
	require.Len(t, info.RemoteShards, 1)
	assert.Equal(t, uint64(22), info.RemoteShards[0].PeerID)
}

func TestNon200BecomesRequestError(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()

	c := vsapi.NewClient()
	_, err := c.CollectionClusterInfo(context.Background(), peer.URL(), "missing")
	require.Error(t, err)

	assert.True(t, vsapi.IsRequestFailed(err))
	assert.False(t, vsapi.IsUnavailable(err))
	var reqErr *vsapi.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Contains(t, reqErr.Body, "collection not found")
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	// Grab a port that nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := fmt.Sprintf("http://%s", l.Addr().String())
	require.NoError(t, l.Close())

	c := vsapi.NewClient()
	_, err = c.ClusterStatus(context.Background(), dead)
	require.Error(t, err)
	assert.True(t, vsapi.IsUnavailable(err))
	assert.False(t, vsapi.IsRequestFailed(err))
}

func TestUpsertAndSearchRoundTrip(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()
	peer.SetSearchResults(
		vsapi.ScoredPoint{ID: 1, Score: 0.9, Payload: map[string]any{"city": "Paris"}},
		vsapi.ScoredPoint{ID: 2, Score: 0.5, Payload: map[string]any{"city": "Paris"}},
	)

	c := vsapi.NewClient()
	points := []vsapi.Point{
		{ID: 1, Vector: []float32{0.1, 0.2}, Payload: map[string]any{"city": "Paris"}},
		{ID: 2, Vector: []float32{0.3, 0.4}, Payload: map[string]any{"city": "Paris"}},
	}
	require.NoError(t, c.UpsertPoints(context.Background(), peer.URL(), "places", points))

	batches := peer.Upserted()
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(2), batches[0][1].ID)

	hits, err := c.SearchPoints(context.Background(), peer.URL(), "places", vsapi.SearchRequest{
		Vector:      []float32{0.2, 0.1},
		Top:         10,
		Filter:      vsapi.MatchField("city", "Paris"),
		WithPayload: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Paris", hits[0].Payload["city"])
}

func TestRemovePeerHitsForcedEndpoint(t *testing.T) {
	peer := testutil.NewFakePeer()
	defer peer.Close()

	c := vsapi.NewClient()
	require.NoError(t, c.RemovePeer(context.Background(), peer.URL(), 42, true))
	assert.Equal(t, []uint64{42}, peer.RemovedPeers())
}

func TestRequestErrorWithEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := vsapi.NewClient()
	_, err := c.ClusterStatus(context.Background(), srv.URL)
	var reqErr *vsapi.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Contains(t, reqErr.Error(), "no content")
}
