// Package central defines the port to the trusted central source of chain
// data and a client for its HTTP gateway.
package central

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lizatkinson/papyrus/core/types"
)

// BlockResult is one item of a block stream: either a block or a surfaced
// transport error. A stream ends (the channel closes) after yielding an
// error item.
type BlockResult struct {
	Number types.BlockNumber
	Block  *types.Block
	Err    error
}

// StateUpdateResult is one item of a state-update stream. DeployedClasses
// holds definitions of classes that appear as deployed in the diff without
// being declared in it.
type StateUpdateResult struct {
	Number          types.BlockNumber
	BlockHash       common.Hash
	Diff            types.StateDiff
	DeployedClasses []types.DeclaredClass
	Err             error
}

// Source serves canonical chain data. Implementations are trusted: the sync
// core does not validate commitments, it only cross-checks block hashes to
// detect reverts.
type Source interface {
	// BlockMarker returns one past the latest block the source is willing to
	// serve. It is monotonic non-decreasing unless the source itself observed
	// a chain revert.
	BlockMarker(ctx context.Context) (types.BlockNumber, error)

	// BlockHash returns the hash of the block at the given height. The
	// second return value is false when the source has no block there.
	BlockHash(ctx context.Context, number types.BlockNumber) (common.Hash, bool, error)

	// StreamNewBlocks lazily produces the blocks in [from, to), heights
	// strictly ascending. The channel is closed at the end of the range,
	// after a surfaced error, or when the context is cancelled.
	StreamNewBlocks(ctx context.Context, from, to types.BlockNumber) <-chan BlockResult

	// StreamStateUpdates lazily produces the state updates in [from, to)
	// under the same contract as StreamNewBlocks.
	StreamStateUpdates(ctx context.Context, from, to types.BlockNumber) <-chan StateUpdateResult
}
