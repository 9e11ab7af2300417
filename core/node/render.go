package node

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// RenderBlock converts a node block into the frozen domain representation
// fanned out to sinks. Inputs are left unresolved; the chain worker resolves
// them against previously indexed outputs.
func RenderBlock(b *Block) (*types.Block, error) {
	header, err := RenderHeader(&b.Header)
	if err != nil {
		return nil, err
	}
	txs := make([]types.Transaction, len(b.BlockTransactions.Transactions))
	for i, tx := range b.BlockTransactions.Transactions {
		txs[i] = renderTransaction(&tx, int32(i))
	}
	return &types.Block{
		Header:       *header,
		Transactions: txs,
		Size:         b.Size,
	}, nil
}

// RenderHeader converts a node header into the domain block header.
func RenderHeader(h *Header) (*types.BlockHeader, error) {
	votes, err := parseVotes(h.Votes)
	if err != nil {
		return nil, err
	}
	difficulty, err := decimal.NewFromString(h.Difficulty)
	if err != nil {
		return nil, errors.Wrapf(ErrDeserialization, "header %s: difficulty %q", h.ID, h.Difficulty)
	}
	return &types.BlockHeader{
		ID:               h.ID,
		ParentID:         h.ParentID,
		Height:           h.Height,
		Timestamp:        h.Timestamp,
		Version:          h.Version,
		NBits:            h.NBits,
		Difficulty:       difficulty,
		Votes:            votes,
		StateRoot:        h.StateRoot,
		TransactionsRoot: h.TransactionsRoot,
		ADProofsRoot:     h.ADProofsRoot,
		ExtensionHash:    h.ExtensionHash,
		ExtensionID:      h.ExtensionID,
		TransactionsID:   h.TransactionsID,
		ADProofsID:       h.ADProofsID,
		PowSolutions:     types.POWSolutions(h.PowSolutions),
		Size:             h.Size,
	}, nil
}

// PositionHeader converts a node header into a chain position.
func PositionHeader(h *Header) types.Header {
	return types.Header{
		Height:    h.Height,
		Timestamp: h.Timestamp,
		HeaderID:  h.ID,
		ParentID:  h.ParentID,
	}
}

// RenderOutput converts a node box. The address id is assigned later, at
// inclusion time.
func RenderOutput(op *Output, txID types.TransactionID) types.Output {
	assets := make([]types.Asset, len(op.Assets))
	for i, a := range op.Assets {
		assets[i] = types.Asset{TokenID: a.TokenID, Amount: a.Amount}
	}
	return types.Output{
		BoxID:          op.BoxID,
		TransactionID:  txID,
		CreationHeight: op.CreationHeight,
		ErgoTree:       op.ErgoTree,
		Index:          op.Index,
		Value:          op.Value,
		Registers:      types.NewRegisters(op.AdditionalRegisters),
		Assets:         assets,
		Size:           int32(len(op.ErgoTree)) / 2,
	}
}

func renderTransaction(tx *Transaction, index int32) types.Transaction {
	outputs := make([]types.Output, len(tx.Outputs))
	for i, op := range tx.Outputs {
		outputs[i] = RenderOutput(&op, tx.ID)
	}
	inputs := make([]types.Input, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = types.Input{BoxID: in.BoxID}
	}
	dataInputs := make([]types.Input, len(tx.DataInputs))
	for i, in := range tx.DataInputs {
		dataInputs[i] = types.Input{BoxID: in.BoxID}
	}
	return types.Transaction{
		ID:         tx.ID,
		Index:      index,
		Outputs:    outputs,
		Inputs:     inputs,
		DataInputs: dataInputs,
	}
}

// parseVotes decodes the base16 encoded vote bytes.
func parseVotes(s string) (types.Votes, error) {
	var votes types.Votes
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return votes, errors.Wrapf(ErrDeserialization, "votes %q", s)
	}
	for i, b := range raw {
		votes[i] = int8(b)
	}
	return votes, nil
}
