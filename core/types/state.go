package types

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ContractClass is a raw class definition. The sync core treats it as an
// opaque blob; decoding is left to execution layers.
type ContractClass = hexutil.Bytes

// DeclaredClass pairs a class hash with its definition.
type DeclaredClass struct {
	ClassHash ClassHash     `json:"class_hash"`
	Class     ContractClass `json:"class"`
}

// DeployedContract records a contract instantiated at an address.
type DeployedContract struct {
	Address   ContractAddress `json:"address"`
	ClassHash ClassHash       `json:"class_hash"`
}

// StorageEntry is a single storage cell mutation.
type StorageEntry struct {
	Key   StorageKey   `json:"key"`
	Value *uint256.Int `json:"value"`
}

// StorageDiff is the set of storage mutations of one contract.
type StorageDiff struct {
	Address ContractAddress `json:"address"`
	Entries []StorageEntry  `json:"storage_entries"`
}

// ContractNonce records the new nonce of a contract.
type ContractNonce struct {
	Address ContractAddress `json:"contract_address"`
	Nonce   *uint256.Int    `json:"nonce"`
}

// StateDiff is the set of state mutations produced by executing one block.
// Its canonical form keeps every collection sorted by key; use SortStateDiff
// to normalize a diff received from the wire.
type StateDiff struct {
	DeployedContracts []DeployedContract `json:"deployed_contracts"`
	StorageDiffs      []StorageDiff      `json:"storage_diffs"`
	DeclaredClasses   []DeclaredClass    `json:"declared_classes"`
	Nonces            []ContractNonce    `json:"nonces"`
}

// ThinStateDiff is a StateDiff with class definitions stripped, keeping only
// the declared class hashes. This is the shape stored in the state table and
// in the ommer archive.
type ThinStateDiff struct {
	DeployedContracts   []DeployedContract `json:"deployed_contracts"`
	StorageDiffs        []StorageDiff      `json:"storage_diffs"`
	DeclaredClassHashes []ClassHash        `json:"declared_class_hashes"`
	Nonces              []ContractNonce    `json:"nonces"`
}

// Thin splits the diff into its storable thin form and the class definitions
// it declared.
func (d *StateDiff) Thin() (ThinStateDiff, []DeclaredClass) {
	hashes := make([]ClassHash, len(d.DeclaredClasses))
	for i, c := range d.DeclaredClasses {
		hashes[i] = c.ClassHash
	}
	thin := ThinStateDiff{
		DeployedContracts:   d.DeployedContracts,
		StorageDiffs:        d.StorageDiffs,
		DeclaredClassHashes: hashes,
		Nonces:              d.Nonces,
	}
	return thin, d.DeclaredClasses
}

// SortStateDiff reorders every collection of the diff into ascending key
// order, recursively for per-contract storage entries. It is idempotent and
// defined for every diff.
func SortStateDiff(d *StateDiff) {
	sort.Slice(d.DeployedContracts, func(i, j int) bool {
		return bytes.Compare(d.DeployedContracts[i].Address[:], d.DeployedContracts[j].Address[:]) < 0
	})
	sort.Slice(d.DeclaredClasses, func(i, j int) bool {
		return bytes.Compare(d.DeclaredClasses[i].ClassHash[:], d.DeclaredClasses[j].ClassHash[:]) < 0
	})
	sort.Slice(d.Nonces, func(i, j int) bool {
		return bytes.Compare(d.Nonces[i].Address[:], d.Nonces[j].Address[:]) < 0
	})
	sort.Slice(d.StorageDiffs, func(i, j int) bool {
		return bytes.Compare(d.StorageDiffs[i].Address[:], d.StorageDiffs[j].Address[:]) < 0
	})
	for i := range d.StorageDiffs {
		entries := d.StorageDiffs[i].Entries
		sort.Slice(entries, func(a, b int) bool {
			return bytes.Compare(entries[a].Key[:], entries[b].Key[:]) < 0
		})
	}
}
