// Package storage exposes the transactional view of the local chain replica:
// headers, bodies and state diffs keyed by height with per-table markers, and
// the ommer archive keyed by block hash.
//
// Writes go through a linear read-write transaction obtained from Begin. All
// mutations of one transaction accumulate in a single database batch, so a
// commit is atomic and a discarded transaction leaves no trace. At most one
// read-write transaction may exist at a time; the writer is a single-owner
// resource.
package storage

import (
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"

	"github.com/lizatkinson/papyrus/core/rawdb"
	"github.com/lizatkinson/papyrus/core/types"
)

var (
	// ErrMarkerMismatch is returned when an append or revert does not line up
	// with the table marker it must advance or retreat.
	ErrMarkerMismatch = errors.New("storage: marker mismatch")

	// ErrInconsistentStorage is returned when a row that the markers promise
	// to exist is missing. It is not recoverable.
	ErrInconsistentStorage = errors.New("storage: inconsistent storage")
)

// Storage provides read views and write transactions over the replica
// database.
type Storage struct {
	db      ethdb.Database
	writing atomic.Bool
}

// New creates a Storage over the given database.
func New(db ethdb.Database) *Storage {
	return &Storage{db: db}
}

// Reader returns a read-only view of the database. Views are cheap and
// short-lived; markers are re-read on every call.
func (s *Storage) Reader() Reader {
	return Reader{db: s.db}
}

// Begin opens a read-write transaction. It panics if another transaction is
// still open: the writer is single-owner and overlapping writers would break
// the marker discipline.
func (s *Storage) Begin() *Txn {
	if !s.writing.CompareAndSwap(false, true) {
		panic("storage: concurrent read-write transaction")
	}
	return &Txn{
		storage:      s,
		db:           s.db,
		batch:        s.db.NewBatch(),
		headerMarker: rawdb.ReadHeaderMarker(s.db),
		bodyMarker:   rawdb.ReadBodyMarker(s.db),
		stateMarker:  rawdb.ReadStateMarker(s.db),
	}
}

// Reader is a read-only view over the replica tables.
type Reader struct {
	db ethdb.Database
}

// HeaderMarker returns the height one past the highest stored header.
func (r Reader) HeaderMarker() types.BlockNumber {
	return rawdb.ReadHeaderMarker(r.db)
}

// BodyMarker returns the height one past the highest stored body.
func (r Reader) BodyMarker() types.BlockNumber {
	return rawdb.ReadBodyMarker(r.db)
}

// StateMarker returns the height one past the highest stored state diff.
func (r Reader) StateMarker() types.BlockNumber {
	return rawdb.ReadStateMarker(r.db)
}

// BlockHeader returns the header at the given height, nil when absent.
func (r Reader) BlockHeader(number types.BlockNumber) *types.Header {
	return rawdb.ReadHeader(r.db, number)
}

// BlockTransactions returns the transactions of the block at the given
// height, nil when absent.
func (r Reader) BlockTransactions(number types.BlockNumber) []types.Transaction {
	return rawdb.ReadBlockTransactions(r.db, number)
}

// BlockTransactionOutputs returns the transaction outputs of the block at the
// given height, nil when absent.
func (r Reader) BlockTransactionOutputs(number types.BlockNumber) []types.TransactionOutput {
	return rawdb.ReadBlockTransactionOutputs(r.db, number)
}

// TransactionEvents returns the events of the transaction at the given offset
// in its block.
func (r Reader) TransactionEvents(number types.BlockNumber, txIndex uint64) []types.Event {
	return rawdb.ReadTransactionEvents(r.db, number, txIndex)
}

// StateDiff returns the thin state diff at the given height, nil when absent.
func (r Reader) StateDiff(number types.BlockNumber) *types.ThinStateDiff {
	return rawdb.ReadStateDiff(r.db, number)
}

// DeclaredClass returns a class definition by hash, nil when unknown.
func (r Reader) DeclaredClass(hash types.ClassHash) types.ContractClass {
	return rawdb.ReadDeclaredClass(r.db, hash)
}

// OmmerHeader returns the archived header for the given block hash, nil when
// the hash was never reverted.
func (r Reader) OmmerHeader(hash common.Hash) *types.Header {
	return rawdb.ReadOmmerHeader(r.db, hash)
}

// OmmerBody returns the archived body for the given block hash.
func (r Reader) OmmerBody(hash common.Hash) *rawdb.OmmerBody {
	return rawdb.ReadOmmerBody(r.db, hash)
}

// OmmerStateDiff returns the archived state diff for the given block hash.
func (r Reader) OmmerStateDiff(hash common.Hash) *rawdb.OmmerStateDiff {
	return rawdb.ReadOmmerStateDiff(r.db, hash)
}
