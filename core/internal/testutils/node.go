package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// MockNode serves a node API over httptest, backed by a list of test block
// names. Names ending in "*" are known to the node but not on its main
// chain. The block list can be swapped at runtime to simulate a reorg.
type MockNode struct {
	server *httptest.Server

	mu     sync.RWMutex
	blocks []TestBlock
	// header id -> block
	lookup map[types.HeaderID]TestBlock
	// height -> main chain block
	byHeight map[types.Height]TestBlock
	maxH     types.Height
}

// NewMockNode starts a mock node with the given block names.
func NewMockNode(blockIDs ...string) *MockNode {
	n := &MockNode{}
	n.SetBlocks(blockIDs...)
	mux := http.NewServeMux()
	mux.HandleFunc("/info", n.handleInfo)
	mux.HandleFunc("/utxo/genesis", n.handleGenesis)
	mux.HandleFunc("/blocks/chainSlice", n.handleChainSlice)
	mux.HandleFunc("/blocks/at/", n.handleBlocksAt)
	mux.HandleFunc("/blocks/", n.handleBlocks)
	n.server = httptest.NewServer(mux)
	return n
}

// URL returns the mock node's base url.
func (n *MockNode) URL() string { return n.server.URL }

// Close shuts the server down.
func (n *MockNode) Close() { n.server.Close() }

// SetBlocks replaces the node's view of the chain.
func (n *MockNode) SetBlocks(blockIDs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = nil
	n.lookup = make(map[types.HeaderID]TestBlock)
	n.byHeight = make(map[types.Height]TestBlock)
	n.maxH = 0
	for _, id := range blockIDs {
		main := !strings.HasSuffix(id, "*")
		b := FromID(id)
		n.blocks = append(n.blocks, b)
		n.lookup[b.HeaderID()] = b
		if main {
			n.byHeight[b.Height()] = b
			if b.Height() > n.maxH {
				n.maxH = b.Height()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (n *MockNode) handleInfo(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	writeJSON(w, map[string]interface{}{
		"fullHeight":       n.maxH,
		"bestFullHeaderId": n.byHeight[n.maxH].HeaderID(),
	})
}

func (n *MockNode) handleGenesis(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, GenesisBoxJSON())
}

// handleChainSlice mirrors the node's semantics:
// fromHeight=h means > h when h < head, >= h when h = head; toHeight is
// inclusive and capped at the head.
func (n *MockNode) handleChainSlice(w http.ResponseWriter, r *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	fromH, _ := strconv.Atoi(r.URL.Query().Get("fromHeight"))
	toH, _ := strconv.Atoi(r.URL.Query().Get("toHeight"))

	start := types.Height(fromH)
	if start < n.maxH {
		start++
	}
	end := types.Height(toH)
	if end > n.maxH {
		end = n.maxH
	}
	headers := []interface{}{}
	for h := start; h <= end; h++ {
		b, ok := n.byHeight[h]
		if !ok {
			http.Error(w, "gap in mock main chain", http.StatusInternalServerError)
			return
		}
		headers = append(headers, b.HeaderJSON())
	}
	writeJSON(w, headers)
}

func (n *MockNode) handleBlocksAt(w http.ResponseWriter, r *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/blocks/at/"))
	if err != nil {
		http.Error(w, "bad height", http.StatusBadRequest)
		return
	}
	ids := []string{}
	for _, b := range n.blocks {
		if b.Height() == types.Height(h) {
			ids = append(ids, b.HeaderID())
		}
	}
	writeJSON(w, ids)
}

func (n *MockNode) handleBlocks(w http.ResponseWriter, r *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	path := strings.TrimPrefix(r.URL.Path, "/blocks/")
	headerOnly := strings.HasSuffix(path, "/header")
	headerID := strings.TrimSuffix(path, "/header")
	b, ok := n.lookup[headerID]
	if !ok {
		http.Error(w, "no such header", http.StatusNotFound)
		return
	}
	if headerOnly {
		writeJSON(w, b.HeaderJSON())
		return
	}
	writeJSON(w, b.BlockJSON())
}
