package types

import (
	"github.com/shopspring/decimal"
)

// CoreData is the payload published by the chain worker: the fully resolved
// block, with address ids assigned and inputs resolved to the outputs they
// spend.
type CoreData struct {
	Block *Block
}

// Block is the pre-processed block data fanned out by the tracker. Instances
// are frozen once they leave the node client and shared read-only across all
// sinks.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	Size         int32
}

// BlockHeader carries the full set of header fields consumed from the node.
// Not to be confused with Header, which is just a chain position.
type BlockHeader struct {
	ID               HeaderID
	ParentID         HeaderID
	Height           Height
	Timestamp        Timestamp
	Version          uint8
	NBits            int64
	Difficulty       decimal.Decimal
	Votes            Votes
	StateRoot        Digest32
	TransactionsRoot Digest32
	ADProofsRoot     Digest32
	ExtensionHash    Digest32
	ExtensionID      Digest32
	TransactionsID   Digest32
	ADProofsID       Digest32
	PowSolutions     POWSolutions
	Size             int32
}

// PositionHeader converts the full block header into a chain position.
func (h *BlockHeader) PositionHeader() Header {
	return Header{
		Height:    h.Height,
		Timestamp: h.Timestamp,
		HeaderID:  h.ID,
		ParentID:  h.ParentID,
	}
}

type POWSolutions struct {
	PK string
	W  string
	N  string
	D  string
}

type Transaction struct {
	ID         TransactionID
	Index      int32
	Outputs    []Output
	Inputs     []Input
	DataInputs []Input
}

// Output is a box created by a transaction. AddressID is the global index of
// the box's ergo tree, assigned by the chain worker at inclusion time.
type Output struct {
	BoxID          BoxID
	TransactionID  TransactionID
	CreationHeight Height
	ErgoTree       string
	AddressID      AddressID
	Index          int32
	Value          NanoERG
	Registers      Registers
	Assets         []Asset
	Size           int32
}

// Input is a box spent by a transaction, resolved to the output that created
// it.
type Input struct {
	BoxID             BoxID
	ErgoTree          string
	AddressID         AddressID
	Index             int32
	Value             NanoERG
	Assets            []Asset
	CreationHeight    Height
	CreationTimestamp Timestamp
}

type Asset struct {
	TokenID TokenID
	Amount  int64
}
