package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Felt-valued identifiers share the 32-byte representation of common.Hash.
type (
	ClassHash       = common.Hash
	ContractAddress = common.Hash
	StorageKey      = common.Hash
)

// BlockNumber is the height of a block in the chain.
type BlockNumber uint64

// Prev returns the predecessor height. The second return value is false at
// height zero, which has no predecessor.
func (n BlockNumber) Prev() (BlockNumber, bool) {
	if n == 0 {
		return 0, false
	}
	return n - 1, true
}

// Next returns the successor height.
func (n BlockNumber) Next() BlockNumber {
	return n + 1
}

func (n BlockNumber) String() string {
	return fmt.Sprintf("%d", uint64(n))
}

// Header represents a block header as served by the central source.
type Header struct {
	BlockHash  common.Hash `json:"block_hash"`
	ParentHash common.Hash `json:"parent_block_hash"`
	Number     BlockNumber `json:"block_number"`
	GlobalRoot common.Hash `json:"state_root"`
	Sequencer  common.Hash `json:"sequencer_address"`
	Timestamp  uint64      `json:"timestamp"`
}

// CopyHeader creates a deep copy of a block header.
func CopyHeader(h *Header) *Header {
	cpy := *h
	return &cpy
}

// Transaction is a transaction as it appears in a block body. The payload is
// kept in its wire shape; the sync core never interprets it.
type Transaction struct {
	Hash            common.Hash   `json:"transaction_hash"`
	Type            string        `json:"type"`
	ContractAddress common.Hash   `json:"contract_address"`
	EntryPoint      common.Hash   `json:"entry_point_selector"`
	Calldata        []common.Hash `json:"calldata"`
}

// Event is emitted by a transaction during execution.
type Event struct {
	FromAddress ContractAddress `json:"from_address"`
	Keys        []common.Hash   `json:"keys"`
	Data        []common.Hash   `json:"data"`
}

// TransactionOutput holds the execution result of a single transaction,
// including the events it emitted.
type TransactionOutput struct {
	TransactionHash common.Hash  `json:"transaction_hash"`
	ActualFee       *uint256.Int `json:"actual_fee"`
	Events          []Event      `json:"events"`
}

// Body is the transaction content of a block.
type Body struct {
	Transactions       []Transaction       `json:"transactions"`
	TransactionOutputs []TransactionOutput `json:"transaction_receipts"`
}

// Block bundles a header with its body.
type Block struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
}
