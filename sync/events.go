package sync

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/lizatkinson/papyrus/core/types"
)

// Event is a unit of work handed from a stream driver to the controller.
type Event interface {
	syncEvent()
}

// BlockAvailable carries a block ready to be stored.
type BlockAvailable struct {
	Number types.BlockNumber
	Block  *types.Block
}

// StateDiffAvailable carries a normalized state diff ready to be stored,
// together with the definitions of classes deployed but not declared in it.
type StateDiffAvailable struct {
	Number          types.BlockNumber
	BlockHash       common.Hash
	Diff            types.StateDiff
	DeployedClasses []types.DeclaredClass
}

func (*BlockAvailable) syncEvent()     {}
func (*StateDiffAvailable) syncEvent() {}

// streamItem is what the drivers put on their channels: an event or a
// surfaced error for the controller to classify.
type streamItem struct {
	event Event
	err   error
}

// StatusEvent is a progress notification published on the sync status feed.
type StatusEvent interface {
	statusEvent()
}

// BlocksPassEvent marks the start of a block download pass over [From, To).
type BlocksPassEvent struct {
	From, To types.BlockNumber
}

// StateDiffsPassEvent marks the start of a state-diff download pass over
// [From, To).
type StateDiffsPassEvent struct {
	From, To types.BlockNumber
}

// HeaderStoredEvent reports a header appended to the live chain.
type HeaderStoredEvent struct {
	Number types.BlockNumber
	Hash   common.Hash
}

// StateDiffStoredEvent reports a state diff appended to the live chain.
type StateDiffStoredEvent struct {
	Number types.BlockNumber
}

// RevertEvent reports a block moved to the ommer tables.
type RevertEvent struct {
	Number types.BlockNumber
	Hash   common.Hash
}

// RecoverableErrorEvent reports an error the controller absorbed before
// restarting.
type RecoverableErrorEvent struct {
	Err error
}

func (BlocksPassEvent) statusEvent()       {}
func (StateDiffsPassEvent) statusEvent()   {}
func (HeaderStoredEvent) statusEvent()     {}
func (StateDiffStoredEvent) statusEvent()  {}
func (RevertEvent) statusEvent()           {}
func (RecoverableErrorEvent) statusEvent() {}
