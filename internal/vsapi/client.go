// Package vsapi is a typed client for the server's HTTP API. It is the only
// place that touches wire-level JSON; everything above it works with the
// structs in types.go. The client performs no retries of its own.
package vsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// Client issues requests against individual peers. Every method takes the
// target peer's API URL explicitly because the harness deliberately queries
// specific peers, not "the cluster".
type Client struct {
	http *http.Client
}

// NewClient returns a client with a bounded per-request timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 10 * time.Second}}
}

// ClusterStatus fetches one peer's view of cluster membership and consensus.
func (c *Client) ClusterStatus(ctx context.Context, peerURL string) (ClusterStatus, error) {
	var out ClusterStatus
	err := c.do(ctx, http.MethodGet, peerURL+"/cluster", nil, &out)
	return out, err
}

// ListCollections fetches the collections known to one peer.
func (c *Client) ListCollections(ctx context.Context, peerURL string) ([]CollectionDescription, error) {
	var out struct {
		Collections []CollectionDescription `json:"collections"`
	}
	if err := c.do(ctx, http.MethodGet, peerURL+"/collections", nil, &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// CreateCollection creates a sharded, replicated collection through one peer.
// Creation propagates through consensus; visibility on other peers is a
// separate, polled milestone.
func (c *Client) CreateCollection(ctx context.Context, peerURL, name string, spec CollectionSpec) error {
	u := fmt.Sprintf("%s/collections/%s", peerURL, url.PathEscape(name))
	return c.do(ctx, http.MethodPut, u, spec, nil)
}

// CollectionClusterInfo fetches one peer's view of a collection's shard
// placement.
func (c *Client) CollectionClusterInfo(ctx context.Context, peerURL, name string) (CollectionClusterInfo, error) {
	var out CollectionClusterInfo
	u := fmt.Sprintf("%s/collections/%s/cluster", peerURL, url.PathEscape(name))
	err := c.do(ctx, http.MethodGet, u, nil, &out)
	return out, err
}

// UpsertPoints writes points through one peer, waiting server-side until the
// write is applied (?wait=true), so the call is synchronous request/response.
func (c *Client) UpsertPoints(ctx context.Context, peerURL, name string, points []Point) error {
	body := struct {
		Points []Point `json:"points"`
	}{Points: points}
	u := fmt.Sprintf("%s/collections/%s/points?wait=true", peerURL, url.PathEscape(name))
	return c.do(ctx, http.MethodPut, u, body, nil)
}

// SearchPoints runs a search against one peer.
func (c *Client) SearchPoints(ctx context.Context, peerURL, name string, req SearchRequest) ([]ScoredPoint, error) {
	var out []ScoredPoint
	u := fmt.Sprintf("%s/collections/%s/points/search", peerURL, url.PathEscape(name))
	if err := c.do(ctx, http.MethodPost, u, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MoveShard relocates one shard of a collection between peers.
func (c *Client) MoveShard(ctx context.Context, peerURL, name string, req MoveShardRequest) error {
	body := struct {
		MoveShard MoveShardRequest `json:"move_shard"`
	}{MoveShard: req}
	u := fmt.Sprintf("%s/collections/%s/cluster", peerURL, url.PathEscape(name))
	return c.do(ctx, http.MethodPost, u, body, nil)
}

// RemovePeer expels a peer from cluster membership. With force set the
// removal proceeds regardless of the target's liveness; its effect on the
// shard table is synchronous per the server's contract.
func (c *Client) RemovePeer(ctx context.Context, peerURL string, peerID uint64, force bool) error {
	u := fmt.Sprintf("%s/cluster/peer/%d", peerURL, peerID)
	if force {
		u += "?force=true"
	}
	return c.do(ctx, http.MethodDelete, u, nil, nil)
}

// do runs one request, unwraps the {result,...} envelope, and decodes the
// result into out when out is non-nil. Transport failures are marked
// ErrUnavailable; non-200 responses become *RequestError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s", method, endpoint), ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "reading response of %s %s", method, endpoint), ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return &RequestError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "decoding response of %s %s", method, endpoint)
	}
	if len(env.Result) == 0 {
		return errors.Newf("response of %s %s carries no result field: %s", method, endpoint, raw)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return errors.Wrapf(err, "decoding result of %s %s", method, endpoint)
	}
	return nil
}
