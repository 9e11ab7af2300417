// Package node implements the HTTP client polling an Ergo node.
//
// All network failures map to typed errors. The client never retries; retry
// policy lives with the callers.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// Typed error kinds. Callers distinguish transient conditions (retried by the
// tracker) from permanent ones (fatal bugs, never swallowed).
var (
	// ErrUnreachable indicates a connection failure or a 5xx response.
	ErrUnreachable = errors.New("node is unreachable")
	// ErrBadRequest indicates a request the node rejected with a 400.
	ErrBadRequest = errors.New("bad node API request")
	// ErrNotFound indicates a 404 response.
	ErrNotFound = errors.New("node API request not found")
	// ErrProtocol indicates an unexpected response status.
	ErrProtocol = errors.New("unexpected node API response")
	// ErrDeserialization indicates a response body that failed to parse.
	ErrDeserialization = errors.New("failed parsing response from node")
)

// IsTransient reports whether err is worth a retry after a pause.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Client queries a single node's REST API.
type Client struct {
	id   string
	url  string
	http *http.Client
}

// New returns a client for the node at the given base url.
func New(id, url string) *Client {
	return &Client{
		id:   id,
		url:  url,
		http: &http.Client{},
	}
}

// ID returns the configured node name.
func (c *Client) ID() string { return c.id }

// Info fetches current node info.
func (c *Client) Info(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.getJSON(ctx, fmt.Sprintf("%s/info", c.url), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BlocksAt fetches the header ids of blocks at the given height. Multiple ids
// mean the node knows of forks at that height.
func (c *Client) BlocksAt(ctx context.Context, height types.Height) ([]types.HeaderID, error) {
	var ids []types.HeaderID
	url := fmt.Sprintf("%s/blocks/at/%d", c.url, height)
	if err := c.getJSON(ctx, url, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Block fetches the full block with the given header id.
func (c *Client) Block(ctx context.Context, headerID types.HeaderID) (*Block, error) {
	var block Block
	url := fmt.Sprintf("%s/blocks/%s", c.url, headerID)
	if err := c.getJSON(ctx, url, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// Header fetches the header with the given id.
func (c *Client) Header(ctx context.Context, headerID types.HeaderID) (*Header, error) {
	var header Header
	url := fmt.Sprintf("%s/blocks/%s/header", c.url, headerID)
	if err := c.getJSON(ctx, url, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// ChainSlice fetches main chain headers strictly above fromH and up to and
// including toH, capped at the node's current head. When fromH equals the
// node's head the result is exactly one header: that tip. An empty result is
// never expected.
func (c *Client) ChainSlice(ctx context.Context, fromH, toH types.Height) ([]Header, error) {
	var headers []Header
	url := fmt.Sprintf("%s/blocks/chainSlice?fromHeight=%d&toHeight=%d", c.url, fromH, toH)
	if err := c.getJSON(ctx, url, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// GenesisBoxes fetches the chain's genesis outputs.
func (c *Client) GenesisBoxes(ctx context.Context) ([]Output, error) {
	var boxes []Output
	url := fmt.Sprintf("%s/utxo/genesis", c.url)
	if err := c.getJSON(ctx, url, &boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building node request")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnreachable, "GET %s: %v", url, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusBadRequest:
		return errors.Wrapf(ErrBadRequest, "GET %s", url)
	case res.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "GET %s", url)
	case res.StatusCode >= 500:
		return errors.Wrapf(ErrUnreachable, "GET %s: status %d", url, res.StatusCode)
	default:
		return errors.Wrapf(ErrProtocol, "GET %s: status %d", url, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return errors.Wrapf(ErrDeserialization, "GET %s: %v", url, err)
	}
	return nil
}
