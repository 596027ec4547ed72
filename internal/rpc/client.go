// Copyright 2025 Certen Protocol
//
// StoreClient is an HTTP-backed implementation of mempool.StoreReader
// and blockbuilder.Store, letting the block-producer binary run against
// a store process over the network instead of sharing a single in-process
// Store the way the bundled node does.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rollupnode/node/internal/types"
)

// StoreClient calls a remote store process's RPC surface.
type StoreClient struct {
	baseURL string
	http    *http.Client
}

// NewStoreClient returns a client targeting the store RPC listening at
// baseURL (e.g. "http://127.0.0.1:8080").
func NewStoreClient(baseURL string) *StoreClient {
	return &StoreClient{baseURL: baseURL, http: &http.Client{}}
}

func (c *StoreClient) postJSON(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, resp)
}

func (c *StoreClient) getJSON(ctx context.Context, path string, query url.Values, resp any) error {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, resp)
}

func (c *StoreClient) do(req *http.Request, resp any) error {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store rpc: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return fmt.Errorf("store rpc: %s (status %d)", errBody.Error, httpResp.StatusCode)
	}
	if resp == nil {
		return nil
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

// AccountState implements mempool.StoreReader.
func (c *StoreClient) AccountState(id types.AccountId) (types.Digest, bool, error) {
	q := url.Values{"account_prefix": {strconv.FormatUint(id.Prefix, 10)}}
	var resp struct {
		State types.Digest `json:"state"`
		Found bool         `json:"found"`
	}
	if err := c.getJSON(context.Background(), "/store/account-state", q, &resp); err != nil {
		return types.Digest{}, false, err
	}
	return resp.State, resp.Found, nil
}

// CheckNullifiers implements mempool.StoreReader.
func (c *StoreClient) CheckNullifiers(nullifiers []types.Nullifier) (map[types.Nullifier]bool, error) {
	var resp map[types.Nullifier]bool
	if err := c.postJSON(context.Background(), "/store/check-nullifiers", nullifiers, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetNoteHeader implements mempool.StoreReader.
func (c *StoreClient) GetNoteHeader(id types.NoteId) (types.NoteHeader, bool, error) {
	q := url.Values{"note_id": {id.String()}}
	var resp struct {
		Header types.NoteHeader `json:"header"`
		Found  bool             `json:"found"`
	}
	if err := c.getJSON(context.Background(), "/store/note-header", q, &resp); err != nil {
		return types.NoteHeader{}, false, err
	}
	return resp.Header, resp.Found, nil
}

// ApplyAccountUpdates implements blockbuilder.TreeState.
func (c *StoreClient) ApplyAccountUpdates(updates []types.AccountUpdate) (types.Digest, error) {
	var resp struct {
		Root types.Digest `json:"root"`
	}
	err := c.postJSON(context.Background(), "/store/apply-account-updates",
		map[string]any{"updates": updates}, &resp)
	return resp.Root, err
}

// ApplyNullifiers implements blockbuilder.TreeState.
func (c *StoreClient) ApplyNullifiers(nullifiers []types.ProducedNullifier) (types.Digest, error) {
	var resp struct {
		Root types.Digest `json:"root"`
	}
	err := c.postJSON(context.Background(), "/store/apply-nullifiers",
		map[string]any{"nullifiers": nullifiers}, &resp)
	return resp.Root, err
}

// ChainRoot implements blockbuilder.TreeState.
func (c *StoreClient) ChainRoot(prevBlockHash types.Digest) (types.Digest, error) {
	q := url.Values{"prev_block_hash": {prevBlockHash.String()}}
	var resp struct {
		Root types.Digest `json:"root"`
	}
	err := c.getJSON(context.Background(), "/store/chain-root", q, &resp)
	return resp.Root, err
}

// PreviousHeader implements blockbuilder.Store.
func (c *StoreClient) PreviousHeader() (types.BlockHeader, error) {
	var header types.BlockHeader
	err := c.getJSON(context.Background(), "/store/previous-header", nil, &header)
	return header, err
}

// AccountStates implements blockbuilder.Store.
func (c *StoreClient) AccountStates(ids []types.AccountId) (map[uint64]types.Digest, error) {
	var resp map[uint64]types.Digest
	err := c.postJSON(context.Background(), "/store/account-states",
		map[string]any{"account_ids": ids}, &resp)
	return resp, err
}

// ApplyBlock implements blockbuilder.Store.
func (c *StoreClient) ApplyBlock(ctx context.Context, block *types.Block) error {
	return c.postJSON(ctx, "/store/apply-block", block, nil)
}
