package rawdb

import (
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/lizatkinson/papyrus/core/types"
)

// ReadStateDiff retrieves the thin state diff stored for the given height,
// nil when absent.
func ReadStateDiff(db ethdb.KeyValueReader, number types.BlockNumber) *types.ThinStateDiff {
	data, _ := db.Get(stateDiffKey(uint64(number)))
	if len(data) == 0 {
		return nil
	}
	diff := new(types.ThinStateDiff)
	if err := rlp.DecodeBytes(data, diff); err != nil {
		log.Error("Invalid state diff RLP", "number", number, "err", err)
		return nil
	}
	return diff
}

// WriteStateDiff stores the thin state diff of a block.
func WriteStateDiff(db ethdb.KeyValueWriter, number types.BlockNumber, diff *types.ThinStateDiff) {
	data, err := rlp.EncodeToBytes(diff)
	if err != nil {
		log.Crit("Failed to RLP encode state diff", "err", err)
	}
	if err := db.Put(stateDiffKey(uint64(number)), data); err != nil {
		log.Crit("Failed to store state diff", "err", err)
	}
}

// DeleteStateDiff removes the thin state diff at the given height.
func DeleteStateDiff(db ethdb.KeyValueWriter, number types.BlockNumber) {
	if err := db.Delete(stateDiffKey(uint64(number))); err != nil {
		log.Crit("Failed to delete state diff", "err", err)
	}
}

// ReadDeclaredClass retrieves a class definition by hash, nil when unknown.
func ReadDeclaredClass(db ethdb.KeyValueReader, hash types.ClassHash) types.ContractClass {
	data, _ := db.Get(declaredClassesKey(hash))
	if len(data) == 0 {
		return nil
	}
	var class types.ContractClass
	if err := rlp.DecodeBytes(data, &class); err != nil {
		log.Error("Invalid class definition RLP", "hash", hash, "err", err)
		return nil
	}
	return class
}

// WriteDeclaredClass stores a class definition under its hash.
func WriteDeclaredClass(db ethdb.KeyValueWriter, class types.DeclaredClass) {
	data, err := rlp.EncodeToBytes(class.Class)
	if err != nil {
		log.Crit("Failed to RLP encode class definition", "err", err)
	}
	if err := db.Put(declaredClassesKey(class.ClassHash), data); err != nil {
		log.Crit("Failed to store class definition", "err", err)
	}
}

// DeleteDeclaredClass removes a class definition.
func DeleteDeclaredClass(db ethdb.KeyValueWriter, hash types.ClassHash) {
	if err := db.Delete(declaredClassesKey(hash)); err != nil {
		log.Crit("Failed to delete class definition", "err", err)
	}
}
