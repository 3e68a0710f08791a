package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"

	"github.com/lizatkinson/papyrus/core/rawdb"
	"github.com/lizatkinson/papyrus/core/types"
)

// Txn is a linear read-write transaction. Mutators consume the transaction
// and hand it back for chaining; using a transaction after Commit or Discard
// panics. Nothing reaches the database before Commit.
//
// Reads during a transaction observe the pre-transaction state: the batch is
// write-only. Callers that delete a row must read it first.
type Txn struct {
	storage *Storage
	db      ethdb.Database
	batch   ethdb.Batch

	headerMarker types.BlockNumber
	bodyMarker   types.BlockNumber
	stateMarker  types.BlockNumber

	done bool
}

func (t *Txn) check() {
	if t.done {
		panic("storage: use of finalized transaction")
	}
}

// HeaderMarker returns the header marker as seen by this transaction,
// including uncommitted appends and reverts.
func (t *Txn) HeaderMarker() types.BlockNumber {
	t.check()
	return t.headerMarker
}

// StateMarker returns the state marker as seen by this transaction.
func (t *Txn) StateMarker() types.BlockNumber {
	t.check()
	return t.stateMarker
}

// BlockHeader reads the header at the given height from the pre-transaction
// state.
func (t *Txn) BlockHeader(number types.BlockNumber) *types.Header {
	t.check()
	return rawdb.ReadHeader(t.db, number)
}

// HasBody reports whether a body row exists at the given height in the
// pre-transaction state.
func (t *Txn) HasBody(number types.BlockNumber) bool {
	t.check()
	return rawdb.HasBody(t.db, number)
}

// BlockTransactions reads the transactions of the block at the given height.
func (t *Txn) BlockTransactions(number types.BlockNumber) []types.Transaction {
	t.check()
	return rawdb.ReadBlockTransactions(t.db, number)
}

// BlockTransactionOutputs reads the transaction outputs of the block at the
// given height.
func (t *Txn) BlockTransactionOutputs(number types.BlockNumber) []types.TransactionOutput {
	t.check()
	return rawdb.ReadBlockTransactionOutputs(t.db, number)
}

// TransactionEvents reads the events of the transaction at the given offset
// in its block.
func (t *Txn) TransactionEvents(number types.BlockNumber, txIndex uint64) []types.Event {
	t.check()
	return rawdb.ReadTransactionEvents(t.db, number, txIndex)
}

// AppendHeader appends a header at the given height. The height must equal
// the header marker.
func (t *Txn) AppendHeader(number types.BlockNumber, header *types.Header) (*Txn, error) {
	t.check()
	if number != t.headerMarker {
		return t, fmt.Errorf("%w: append header %d, marker %d", ErrMarkerMismatch, number, t.headerMarker)
	}
	rawdb.WriteHeader(t.batch, header)
	t.headerMarker = number.Next()
	return t, nil
}

// AppendBody appends a block body at the given height. The height must equal
// the body marker.
func (t *Txn) AppendBody(number types.BlockNumber, body types.Body) (*Txn, error) {
	t.check()
	if number != t.bodyMarker {
		return t, fmt.Errorf("%w: append body %d, marker %d", ErrMarkerMismatch, number, t.bodyMarker)
	}
	rawdb.WriteBody(t.batch, number, body)
	t.bodyMarker = number.Next()
	return t, nil
}

// AppendStateDiff appends the state diff of the block at the given height.
// The height must equal the state marker and a header must already be stored
// for it. deployedClasses carries definitions of classes that appear as
// deployed in the diff without being declared in it.
func (t *Txn) AppendStateDiff(number types.BlockNumber, diff types.StateDiff, deployedClasses []types.DeclaredClass) (*Txn, error) {
	t.check()
	if number != t.stateMarker {
		return t, fmt.Errorf("%w: append state diff %d, marker %d", ErrMarkerMismatch, number, t.stateMarker)
	}
	if number >= t.headerMarker {
		return t, fmt.Errorf("%w: state diff %d ahead of header marker %d", ErrMarkerMismatch, number, t.headerMarker)
	}
	thin, declared := diff.Thin()
	rawdb.WriteStateDiff(t.batch, number, &thin)
	for _, class := range declared {
		rawdb.WriteDeclaredClass(t.batch, class)
	}
	for _, class := range deployedClasses {
		rawdb.WriteDeclaredClass(t.batch, class)
	}
	t.stateMarker = number.Next()
	return t, nil
}

// RevertHeader removes the header at the given height. Only the chain tail
// can be reverted.
func (t *Txn) RevertHeader(number types.BlockNumber) (*Txn, error) {
	t.check()
	if number.Next() != t.headerMarker {
		return t, fmt.Errorf("%w: revert header %d, marker %d", ErrMarkerMismatch, number, t.headerMarker)
	}
	rawdb.DeleteHeader(t.batch, number)
	t.headerMarker = number
	return t, nil
}

// RevertBody removes the body at the given height, events included. Only the
// tail can be reverted.
func (t *Txn) RevertBody(number types.BlockNumber) (*Txn, error) {
	t.check()
	if number.Next() != t.bodyMarker {
		return t, fmt.Errorf("%w: revert body %d, marker %d", ErrMarkerMismatch, number, t.bodyMarker)
	}
	outputs := rawdb.ReadBlockTransactionOutputs(t.db, number)
	rawdb.DeleteBody(t.batch, number, len(outputs))
	t.bodyMarker = number
	return t, nil
}

// RevertStateDiff removes the state diff at the given height, if one was
// stored, and returns the deleted thin diff together with the class
// definitions declared by it. When the state table has not reached the
// height yet the transaction is returned unchanged with no data.
func (t *Txn) RevertStateDiff(number types.BlockNumber) (*Txn, *types.ThinStateDiff, []types.DeclaredClass, error) {
	t.check()
	if t.stateMarker <= number {
		return t, nil, nil, nil
	}
	if number.Next() != t.stateMarker {
		return t, nil, nil, fmt.Errorf("%w: revert state diff %d, marker %d", ErrMarkerMismatch, number, t.stateMarker)
	}
	thin := rawdb.ReadStateDiff(t.db, number)
	if thin == nil {
		return t, nil, nil, fmt.Errorf("%w: missing state diff %d below marker %d", ErrInconsistentStorage, number, t.stateMarker)
	}
	declared := make([]types.DeclaredClass, 0, len(thin.DeclaredClassHashes))
	for _, hash := range thin.DeclaredClassHashes {
		class := rawdb.ReadDeclaredClass(t.db, hash)
		if class == nil {
			return t, nil, nil, fmt.Errorf("%w: missing class definition %s", ErrInconsistentStorage, hash)
		}
		declared = append(declared, types.DeclaredClass{ClassHash: hash, Class: class})
		rawdb.DeleteDeclaredClass(t.batch, hash)
	}
	rawdb.DeleteStateDiff(t.batch, number)
	t.stateMarker = number
	return t, thin, declared, nil
}

// InsertOmmerHeader archives a header under its block hash.
func (t *Txn) InsertOmmerHeader(hash common.Hash, header *types.Header) (*Txn, error) {
	t.check()
	rawdb.WriteOmmerHeader(t.batch, hash, header)
	return t, nil
}

// InsertOmmerBody archives a block body under its block hash.
func (t *Txn) InsertOmmerBody(hash common.Hash, transactions []types.Transaction, outputs []types.TransactionOutput, events [][]types.Event) (*Txn, error) {
	t.check()
	rawdb.WriteOmmerBody(t.batch, hash, &rawdb.OmmerBody{
		Transactions:       transactions,
		TransactionOutputs: outputs,
		Events:             events,
	})
	return t, nil
}

// InsertOmmerStateDiff archives a state diff under the block hash it was
// produced for.
func (t *Txn) InsertOmmerStateDiff(hash common.Hash, diff *types.ThinStateDiff, declared []types.DeclaredClass) (*Txn, error) {
	t.check()
	rawdb.WriteOmmerStateDiff(t.batch, hash, &rawdb.OmmerStateDiff{
		Diff:            *diff,
		DeclaredClasses: declared,
	})
	return t, nil
}

// Commit atomically persists every mutation of the transaction, markers
// included, and finalizes it.
func (t *Txn) Commit() error {
	t.check()
	rawdb.WriteHeaderMarker(t.batch, t.headerMarker)
	rawdb.WriteBodyMarker(t.batch, t.bodyMarker)
	rawdb.WriteStateMarker(t.batch, t.stateMarker)
	err := t.batch.Write()
	t.done = true
	t.storage.writing.Store(false)
	return err
}

// Discard finalizes the transaction without persisting anything. Discarding
// a committed transaction is a no-op, so it is safe to defer.
func (t *Txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.storage.writing.Store(false)
}
