// Package rawdb contains a collection of low level database accessors for the
// chain replica tables.
package rawdb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Database key prefixes and fixed keys. The layout follows the usual
// prefix + big-endian-number scheme so that per-table iteration stays ordered
// by height. Ommer tables are keyed by block hash: superseded blocks have no
// canonical height anymore.
var (
	headerMarkerKey = []byte("HeaderMarker") // next height to append a header
	bodyMarkerKey   = []byte("BodyMarker")   // next height to append a body
	stateMarkerKey  = []byte("StateMarker")  // next height to append a state diff

	headerPrefix       = []byte("h") // headerPrefix + num (uint64 big endian) -> header
	transactionsPrefix = []byte("b") // transactionsPrefix + num -> block transactions
	txOutputsPrefix    = []byte("r") // txOutputsPrefix + num -> transaction outputs
	eventsPrefix       = []byte("e") // eventsPrefix + num + txIndex -> transaction events
	stateDiffPrefix    = []byte("s") // stateDiffPrefix + num -> thin state diff
	declaredClassKey   = []byte("c") // declaredClassKey + classHash -> class definition

	ommerHeaderPrefix    = []byte("oh") // ommerHeaderPrefix + blockHash -> header
	ommerBodyPrefix      = []byte("ob") // ommerBodyPrefix + blockHash -> body + events
	ommerStateDiffPrefix = []byte("os") // ommerStateDiffPrefix + blockHash -> diff + classes
)

// encodeBlockNumber encodes a block number as big endian uint64.
func encodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

func headerKey(number uint64) []byte {
	return append(headerPrefix, encodeBlockNumber(number)...)
}

func transactionsKey(number uint64) []byte {
	return append(transactionsPrefix, encodeBlockNumber(number)...)
}

func txOutputsKey(number uint64) []byte {
	return append(txOutputsPrefix, encodeBlockNumber(number)...)
}

func eventsKey(number uint64, txIndex uint64) []byte {
	return append(append(eventsPrefix, encodeBlockNumber(number)...), encodeBlockNumber(txIndex)...)
}

func stateDiffKey(number uint64) []byte {
	return append(stateDiffPrefix, encodeBlockNumber(number)...)
}

func declaredClassesKey(hash common.Hash) []byte {
	return append(declaredClassKey, hash.Bytes()...)
}

func ommerHeaderKey(hash common.Hash) []byte {
	return append(ommerHeaderPrefix, hash.Bytes()...)
}

func ommerBodyKey(hash common.Hash) []byte {
	return append(ommerBodyPrefix, hash.Bytes()...)
}

func ommerStateDiffKey(hash common.Hash) []byte {
	return append(ommerStateDiffPrefix, hash.Bytes()...)
}
