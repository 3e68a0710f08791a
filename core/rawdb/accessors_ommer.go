package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/lizatkinson/papyrus/core/types"
)

// OmmerBody archives the full body of a superseded block, events included,
// since the per-height event keys are gone after a revert.
type OmmerBody struct {
	Transactions       []types.Transaction
	TransactionOutputs []types.TransactionOutput
	Events             [][]types.Event
}

// OmmerStateDiff archives the state diff of a superseded block together with
// the class definitions it declared.
type OmmerStateDiff struct {
	Diff            types.ThinStateDiff
	DeclaredClasses []types.DeclaredClass
}

// ReadOmmerHeader retrieves an archived header by block hash, nil when the
// hash was never reverted.
func ReadOmmerHeader(db ethdb.KeyValueReader, hash common.Hash) *types.Header {
	data, _ := db.Get(ommerHeaderKey(hash))
	if len(data) == 0 {
		return nil
	}
	header := new(types.Header)
	if err := rlp.DecodeBytes(data, header); err != nil {
		log.Error("Invalid ommer header RLP", "hash", hash, "err", err)
		return nil
	}
	return header
}

// WriteOmmerHeader archives a header under its block hash.
func WriteOmmerHeader(db ethdb.KeyValueWriter, hash common.Hash, header *types.Header) {
	data, err := rlp.EncodeToBytes(header)
	if err != nil {
		log.Crit("Failed to RLP encode ommer header", "err", err)
	}
	if err := db.Put(ommerHeaderKey(hash), data); err != nil {
		log.Crit("Failed to store ommer header", "err", err)
	}
}

// ReadOmmerBody retrieves an archived block body by block hash.
func ReadOmmerBody(db ethdb.KeyValueReader, hash common.Hash) *OmmerBody {
	data, _ := db.Get(ommerBodyKey(hash))
	if len(data) == 0 {
		return nil
	}
	body := new(OmmerBody)
	if err := rlp.DecodeBytes(data, body); err != nil {
		log.Error("Invalid ommer body RLP", "hash", hash, "err", err)
		return nil
	}
	return body
}

// WriteOmmerBody archives a block body under its block hash.
func WriteOmmerBody(db ethdb.KeyValueWriter, hash common.Hash, body *OmmerBody) {
	data, err := rlp.EncodeToBytes(body)
	if err != nil {
		log.Crit("Failed to RLP encode ommer body", "err", err)
	}
	if err := db.Put(ommerBodyKey(hash), data); err != nil {
		log.Crit("Failed to store ommer body", "err", err)
	}
}

// ReadOmmerStateDiff retrieves an archived state diff by block hash.
func ReadOmmerStateDiff(db ethdb.KeyValueReader, hash common.Hash) *OmmerStateDiff {
	data, _ := db.Get(ommerStateDiffKey(hash))
	if len(data) == 0 {
		return nil
	}
	diff := new(OmmerStateDiff)
	if err := rlp.DecodeBytes(data, diff); err != nil {
		log.Error("Invalid ommer state diff RLP", "hash", hash, "err", err)
		return nil
	}
	return diff
}

// WriteOmmerStateDiff archives a state diff under the block hash it was
// produced for.
func WriteOmmerStateDiff(db ethdb.KeyValueWriter, hash common.Hash, diff *OmmerStateDiff) {
	data, err := rlp.EncodeToBytes(diff)
	if err != nil {
		log.Crit("Failed to RLP encode ommer state diff", "err", err)
	}
	if err := db.Put(ommerStateDiffKey(hash), data); err != nil {
		log.Crit("Failed to store ommer state diff", "err", err)
	}
}
