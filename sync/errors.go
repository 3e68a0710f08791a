package sync

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lizatkinson/papyrus/core/types"
)

// ParentHashMismatchError reports an incoming block whose parent hash does
// not extend the stored chain. It signals a revert, not a failure: the
// controller reacts by re-running the revert engine.
type ParentHashMismatchError struct {
	Number   types.BlockNumber
	Expected common.Hash // parent hash carried by the incoming block
	Stored   common.Hash // hash of the stored block below it
}

func (e *ParentHashMismatchError) Error() string {
	return fmt.Sprintf("parent block hash of block %d is not consistent with the stored block: expected %s, found %s",
		e.Number, e.Expected, e.Stored)
}

// UnmatchedStateDiffError reports a state diff whose block hash matches
// neither a live header nor an ommer header. It is not recoverable.
type UnmatchedStateDiffError struct {
	Number    types.BlockNumber
	BlockHash common.Hash
}

func (e *UnmatchedStateDiffError) Error() string {
	return fmt.Sprintf("received state diff of block %d and block hash %s without a matching header (neither in the ommer headers)",
		e.Number, e.BlockHash)
}

// isRecoverable whitelists errors the controller may retry after a sleep
// instead of failing the sync. It must stay a pure function of the error
// value. The whitelist is currently empty: until transport retry policies
// settle, every error fails fast.
func isRecoverable(err error) bool {
	return false
}
