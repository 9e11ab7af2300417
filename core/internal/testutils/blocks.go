// Package testutils provides deterministic test blocks and a mock node API
// for exercising the tracker and workers without a live node.
package testutils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// TestBlock is a synthetic block identified by a short name like "3" or
// "3bis". The numeric prefix is the block's height; a name ending in "*"
// marks a block that is not on the main chain. Parent links always point to
// the canonical (unsuffixed) name at the previous height, so "4" is a child
// of "3" even when "3bis" sits at height 3.
type TestBlock struct {
	Name string
}

// FromID returns the test block with the given name, sans fork marker.
func FromID(name string) TestBlock {
	if len(name) > 0 && name[len(name)-1] == '*' {
		name = name[:len(name)-1]
	}
	return TestBlock{Name: name}
}

// Height parses the numeric prefix of the block's name.
func (b TestBlock) Height() types.Height {
	i := 0
	for i < len(b.Name) && b.Name[i] >= '0' && b.Name[i] <= '9' {
		i++
	}
	h, err := strconv.Atoi(b.Name[:i])
	if err != nil {
		panic(fmt.Sprintf("test block name %q has no height prefix", b.Name))
	}
	return types.Height(h)
}

// HeaderID derives a stable 64 character id from the block's name.
func (b TestBlock) HeaderID() types.HeaderID {
	if b.Name == "0" {
		return types.ZeroHeader
	}
	sum := sha256.Sum256([]byte(b.Name))
	return hex.EncodeToString(sum[:])
}

// ParentID is the header id of the canonical block at the previous height.
func (b TestBlock) ParentID() types.HeaderID {
	h := b.Height()
	if h == 0 {
		return ""
	}
	return FromID(strconv.Itoa(int(h - 1))).HeaderID()
}

// Timestamp spaces test blocks two minutes apart.
func (b TestBlock) Timestamp() types.Timestamp {
	return types.GenesisTimestamp + types.Timestamp(b.Height())*120_000
}

// Header returns the block's chain position.
func (b TestBlock) Header() types.Header {
	return types.Header{
		Height:    b.Height(),
		Timestamp: b.Timestamp(),
		HeaderID:  b.HeaderID(),
		ParentID:  b.ParentID(),
	}
}

// HeaderJSON renders the node header JSON.
func (b TestBlock) HeaderJSON() map[string]interface{} {
	return map[string]interface{}{
		"id":               b.HeaderID(),
		"parentId":         b.ParentID(),
		"height":           b.Height(),
		"timestamp":        b.Timestamp(),
		"votes":            "000000",
		"difficulty":       "1234567890",
		"version":          2,
		"nBits":            117811961,
		"extensionId":      b.HeaderID(),
		"transactionsId":   b.HeaderID(),
		"adProofsId":       b.HeaderID(),
		"extensionHash":    b.HeaderID(),
		"transactionsRoot": b.HeaderID(),
		"adProofsRoot":     b.HeaderID(),
		"stateRoot":        b.HeaderID(),
		"powSolutions": map[string]interface{}{
			"pk": "03" + b.HeaderID()[:62],
			"w":  "02" + b.HeaderID()[:62],
			"n":  b.HeaderID()[:16],
			"d":  "0",
		},
		"size": 1024,
	}
}

// BlockJSON renders the full node block JSON with a single transaction
// moving some value to a synthetic address.
func (b TestBlock) BlockJSON() map[string]interface{} {
	txID := "tx-" + b.HeaderID()[:16]
	return map[string]interface{}{
		"header": b.HeaderJSON(),
		"blockTransactions": map[string]interface{}{
			"headerId": b.HeaderID(),
			"transactions": []interface{}{
				map[string]interface{}{
					"id":         txID,
					"inputs":     []interface{}{},
					"dataInputs": []interface{}{},
					"outputs": []interface{}{
						map[string]interface{}{
							"boxId":               "box-" + b.HeaderID()[:16],
							"value":               67_500_000_000,
							"ergoTree":            "0008cd" + b.HeaderID()[:58],
							"creationHeight":      b.Height(),
							"index":               0,
							"transactionId":       txID,
							"assets":              []interface{}{},
							"additionalRegisters": map[string]interface{}{},
						},
					},
					"size": 256,
				},
			},
			"blockVersion": 2,
			"size":         512,
		},
		"extension": map[string]interface{}{
			"headerId": b.HeaderID(),
			"digest":   b.HeaderID(),
			"fields":   []interface{}{},
		},
		"adProofs": map[string]interface{}{
			"headerId":   b.HeaderID(),
			"proofBytes": "",
			"digest":     b.HeaderID(),
			"size":       128,
		},
		"size": 1024,
	}
}

// GenesisBoxJSON is the single genesis output served by the mock node.
func GenesisBoxJSON() []interface{} {
	return []interface{}{
		map[string]interface{}{
			"boxId":               "box-genesis",
			"value":               93_409_132_500_000_000,
			"ergoTree":            "10010100d17300",
			"creationHeight":      0,
			"index":               0,
			"transactionId":       types.ZeroHeader,
			"assets":              []interface{}{},
			"additionalRegisters": map[string]interface{}{},
		},
	}
}
