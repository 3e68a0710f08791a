package rawdb

import (
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/lizatkinson/papyrus/core/types"
)

// ReadHeaderMarker retrieves the height one past the highest stored header.
func ReadHeaderMarker(db ethdb.KeyValueReader) types.BlockNumber {
	return readMarker(db, headerMarkerKey)
}

// WriteHeaderMarker stores the header marker.
func WriteHeaderMarker(db ethdb.KeyValueWriter, number types.BlockNumber) {
	writeMarker(db, headerMarkerKey, number)
}

// ReadBodyMarker retrieves the height one past the highest stored body.
func ReadBodyMarker(db ethdb.KeyValueReader) types.BlockNumber {
	return readMarker(db, bodyMarkerKey)
}

// WriteBodyMarker stores the body marker.
func WriteBodyMarker(db ethdb.KeyValueWriter, number types.BlockNumber) {
	writeMarker(db, bodyMarkerKey, number)
}

// ReadStateMarker retrieves the height one past the highest stored state diff.
func ReadStateMarker(db ethdb.KeyValueReader) types.BlockNumber {
	return readMarker(db, stateMarkerKey)
}

// WriteStateMarker stores the state marker.
func WriteStateMarker(db ethdb.KeyValueWriter, number types.BlockNumber) {
	writeMarker(db, stateMarkerKey, number)
}

func readMarker(db ethdb.KeyValueReader, key []byte) types.BlockNumber {
	data, _ := db.Get(key)
	if len(data) == 0 {
		return 0
	}
	var number uint64
	if err := rlp.DecodeBytes(data, &number); err != nil {
		log.Error("Invalid marker RLP", "key", string(key), "err", err)
		return 0
	}
	return types.BlockNumber(number)
}

func writeMarker(db ethdb.KeyValueWriter, key []byte, number types.BlockNumber) {
	data, err := rlp.EncodeToBytes(uint64(number))
	if err != nil {
		log.Crit("Failed to RLP encode marker", "err", err)
	}
	if err := db.Put(key, data); err != nil {
		log.Crit("Failed to store marker", "err", err)
	}
}

// ReadHeader retrieves the header at the given height, nil when absent.
func ReadHeader(db ethdb.KeyValueReader, number types.BlockNumber) *types.Header {
	data, _ := db.Get(headerKey(uint64(number)))
	if len(data) == 0 {
		return nil
	}
	header := new(types.Header)
	if err := rlp.DecodeBytes(data, header); err != nil {
		log.Error("Invalid block header RLP", "number", number, "err", err)
		return nil
	}
	return header
}

// WriteHeader stores a block header.
func WriteHeader(db ethdb.KeyValueWriter, header *types.Header) {
	data, err := rlp.EncodeToBytes(header)
	if err != nil {
		log.Crit("Failed to RLP encode header", "err", err)
	}
	if err := db.Put(headerKey(uint64(header.Number)), data); err != nil {
		log.Crit("Failed to store header", "err", err)
	}
}

// DeleteHeader removes the header at the given height.
func DeleteHeader(db ethdb.KeyValueWriter, number types.BlockNumber) {
	if err := db.Delete(headerKey(uint64(number))); err != nil {
		log.Crit("Failed to delete header", "err", err)
	}
}

// HasBody reports whether a body is stored for the given height. An empty
// block still has (empty) transaction and output rows, so a missing row
// means the body was never written or was reverted.
func HasBody(db ethdb.KeyValueReader, number types.BlockNumber) bool {
	if has, err := db.Has(transactionsKey(uint64(number))); !has || err != nil {
		return false
	}
	if has, err := db.Has(txOutputsKey(uint64(number))); !has || err != nil {
		return false
	}
	return true
}

// ReadBlockTransactions retrieves the transactions of the block at the given
// height, nil when absent.
func ReadBlockTransactions(db ethdb.KeyValueReader, number types.BlockNumber) []types.Transaction {
	data, _ := db.Get(transactionsKey(uint64(number)))
	if len(data) == 0 {
		return nil
	}
	var txs []types.Transaction
	if err := rlp.DecodeBytes(data, &txs); err != nil {
		log.Error("Invalid block transactions RLP", "number", number, "err", err)
		return nil
	}
	return txs
}

// ReadBlockTransactionOutputs retrieves the transaction outputs of the block
// at the given height, nil when absent.
func ReadBlockTransactionOutputs(db ethdb.KeyValueReader, number types.BlockNumber) []types.TransactionOutput {
	data, _ := db.Get(txOutputsKey(uint64(number)))
	if len(data) == 0 {
		return nil
	}
	var outs []types.TransactionOutput
	if err := rlp.DecodeBytes(data, &outs); err != nil {
		log.Error("Invalid transaction outputs RLP", "number", number, "err", err)
		return nil
	}
	return outs
}

// ReadTransactionEvents retrieves the events emitted by the transaction at
// the given offset in its block.
func ReadTransactionEvents(db ethdb.KeyValueReader, number types.BlockNumber, txIndex uint64) []types.Event {
	data, _ := db.Get(eventsKey(uint64(number), txIndex))
	if len(data) == 0 {
		return nil
	}
	var events []types.Event
	if err := rlp.DecodeBytes(data, &events); err != nil {
		log.Error("Invalid transaction events RLP", "number", number, "txIndex", txIndex, "err", err)
		return nil
	}
	return events
}

// WriteBody stores the transactions, outputs and per-transaction events of a
// block.
func WriteBody(db ethdb.KeyValueWriter, number types.BlockNumber, body types.Body) {
	data, err := rlp.EncodeToBytes(body.Transactions)
	if err != nil {
		log.Crit("Failed to RLP encode block transactions", "err", err)
	}
	if err := db.Put(transactionsKey(uint64(number)), data); err != nil {
		log.Crit("Failed to store block transactions", "err", err)
	}
	data, err = rlp.EncodeToBytes(body.TransactionOutputs)
	if err != nil {
		log.Crit("Failed to RLP encode transaction outputs", "err", err)
	}
	if err := db.Put(txOutputsKey(uint64(number)), data); err != nil {
		log.Crit("Failed to store transaction outputs", "err", err)
	}
	for i, out := range body.TransactionOutputs {
		data, err = rlp.EncodeToBytes(out.Events)
		if err != nil {
			log.Crit("Failed to RLP encode transaction events", "err", err)
		}
		if err := db.Put(eventsKey(uint64(number), uint64(i)), data); err != nil {
			log.Crit("Failed to store transaction events", "err", err)
		}
	}
}

// DeleteBody removes the transactions, outputs and events of the block at the
// given height. The transaction count bounds the event keys to clear.
func DeleteBody(db ethdb.KeyValueWriter, number types.BlockNumber, txCount int) {
	if err := db.Delete(transactionsKey(uint64(number))); err != nil {
		log.Crit("Failed to delete block transactions", "err", err)
	}
	if err := db.Delete(txOutputsKey(uint64(number))); err != nil {
		log.Crit("Failed to delete transaction outputs", "err", err)
	}
	for i := 0; i < txCount; i++ {
		if err := db.Delete(eventsKey(uint64(number), uint64(i))); err != nil {
			log.Crit("Failed to delete transaction events", "err", err)
		}
	}
}
