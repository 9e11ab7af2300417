package node

import "encoding/json"

// NodeInfo is the trimmed down response of the /info endpoint.
type NodeInfo struct {
	FullHeight       int32  `json:"fullHeight"`
	BestFullHeaderID string `json:"bestFullHeaderId"`
}

// Header mirrors the node's header JSON.
type Header struct {
	ID               string       `json:"id"`
	ParentID         string       `json:"parentId"`
	Height           int32        `json:"height"`
	Timestamp        int64        `json:"timestamp"`
	Votes            string       `json:"votes"`
	Difficulty       string       `json:"difficulty"`
	Version          uint8        `json:"version"`
	NBits            int64        `json:"nBits"`
	ExtensionID      string       `json:"extensionId"`
	TransactionsID   string       `json:"transactionsId"`
	ADProofsID       string       `json:"adProofsId"`
	ExtensionHash    string       `json:"extensionHash"`
	TransactionsRoot string       `json:"transactionsRoot"`
	ADProofsRoot     string       `json:"adProofsRoot"`
	StateRoot        string       `json:"stateRoot"`
	PowSolutions     POWSolutions `json:"powSolutions"`
	Size             int32        `json:"size"`
}

type POWSolutions struct {
	PK string `json:"pk"`
	W  string `json:"w"`
	N  string `json:"n"`
	D  string `json:"d"`
}

// Block mirrors the node's full block JSON.
type Block struct {
	Header            Header            `json:"header"`
	BlockTransactions BlockTransactions `json:"blockTransactions"`
	Extension         Extension         `json:"extension"`
	ADProofs          ADProofs          `json:"adProofs"`
	Size              int32             `json:"size"`
}

type BlockTransactions struct {
	HeaderID     string        `json:"headerId"`
	Transactions []Transaction `json:"transactions"`
	BlockVersion uint8         `json:"blockVersion"`
	Size         int32         `json:"size"`
}

type Extension struct {
	HeaderID string          `json:"headerId"`
	Digest   string          `json:"digest"`
	Fields   json.RawMessage `json:"fields"`
}

type ADProofs struct {
	HeaderID   string `json:"headerId"`
	ProofBytes string `json:"proofBytes"`
	Digest     string `json:"digest"`
	Size       int32  `json:"size"`
}

type Transaction struct {
	ID         string      `json:"id"`
	Inputs     []Input     `json:"inputs"`
	DataInputs []DataInput `json:"dataInputs"`
	Outputs    []Output    `json:"outputs"`
	Size       int32       `json:"size"`
}

type Input struct {
	BoxID string `json:"boxId"`
}

type DataInput struct {
	BoxID string `json:"boxId"`
}

// Output mirrors the node's box JSON.
type Output struct {
	BoxID               string          `json:"boxId"`
	Value               int64           `json:"value"`
	ErgoTree            string          `json:"ergoTree"`
	CreationHeight      int32           `json:"creationHeight"`
	Index               int32           `json:"index"`
	TransactionID       string          `json:"transactionId"`
	Assets              []Asset         `json:"assets"`
	AdditionalRegisters json.RawMessage `json:"additionalRegisters"`
}

type Asset struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}
