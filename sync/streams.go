package sync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/lizatkinson/papyrus/core/types"
)

// The stream drivers are infinite cooperative producers. Each pass re-reads
// its markers, asks the central source for the open range and forwards every
// item to the controller in ascending height order. Central errors are
// forwarded as failing items and the pass restarts; the controller owns
// their classification. Drivers stop only when the context is cancelled.

func (s *Sync) streamNewBlocks(ctx context.Context, out chan<- streamItem) {
	for {
		headerMarker := s.storage.Reader().HeaderMarker()
		to, err := s.source.BlockMarker(ctx)
		if err != nil {
			if !s.emit(ctx, out, streamItem{err: err}) {
				return
			}
			if !sleepCtx(ctx, s.config.BlockPropagationSleepDuration) {
				return
			}
			continue
		}
		log.Debug("Downloading blocks", "from", headerMarker, "to", to)
		s.notify(BlocksPassEvent{From: headerMarker, To: to})
		if headerMarker == to {
			if !sleepCtx(ctx, s.config.BlockPropagationSleepDuration) {
				return
			}
			continue
		}
		for item := range s.source.StreamNewBlocks(ctx, headerMarker, to) {
			if item.Err != nil {
				if !s.emit(ctx, out, streamItem{err: item.Err}) {
					return
				}
				break
			}
			ev := &BlockAvailable{Number: item.Number, Block: item.Block}
			if !s.emit(ctx, out, streamItem{event: ev}) {
				return
			}
		}
	}
}

func (s *Sync) streamNewStateDiffs(ctx context.Context, out chan<- streamItem) {
	for {
		reader := s.storage.Reader()
		stateMarker := reader.StateMarker()
		headerMarker := reader.HeaderMarker()
		log.Debug("Downloading state diffs", "from", stateMarker, "to", headerMarker)
		s.notify(StateDiffsPassEvent{From: stateMarker, To: headerMarker})
		if stateMarker == headerMarker {
			if !sleepCtx(ctx, s.config.BlockPropagationSleepDuration) {
				return
			}
			continue
		}
		for item := range s.source.StreamStateUpdates(ctx, stateMarker, headerMarker) {
			if item.Err != nil {
				if !s.emit(ctx, out, streamItem{err: item.Err}) {
					return
				}
				break
			}
			types.SortStateDiff(&item.Diff)
			ev := &StateDiffAvailable{
				Number:          item.Number,
				BlockHash:       item.BlockHash,
				Diff:            item.Diff,
				DeployedClasses: item.DeployedClasses,
			}
			if !s.emit(ctx, out, streamItem{event: ev}) {
				return
			}
		}
	}
}

// emit forwards an item to the controller, giving up when the streaming pass
// is cancelled.
func (s *Sync) emit(ctx context.Context, out chan<- streamItem, item streamItem) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleepCtx pauses for the given duration, returning false when the context
// is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
