// Package sync replicates canonical chain data from a trusted central source
// into local storage, detecting chain reverts online and archiving superseded
// blocks into the ommer tables.
//
// The controller runs a single outer loop: heal reverts first, then consume
// the block and state-diff streams until one of them reports a revert or an
// error. Storage writes are totally ordered; the two streams only race on
// reads.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/lizatkinson/papyrus/core/types"
	"github.com/lizatkinson/papyrus/storage"
	"github.com/lizatkinson/papyrus/sync/central"
)

// Config holds the sync loop settings.
type Config struct {
	// BlockPropagationSleepDuration is how long the streams idle when caught
	// up with the central source, and how long the controller idles after a
	// recoverable error.
	BlockPropagationSleepDuration time.Duration
}

// DefaultConfig is the default sync configuration.
var DefaultConfig = Config{
	BlockPropagationSleepDuration: 2 * time.Second,
}

// Sync orchestrates the central source and writes to storage.
type Sync struct {
	config  Config
	source  central.Source
	storage *storage.Storage

	statusFeed event.Feed
}

// New creates a sync over the given source and storage. The storage writer
// becomes the controller's single-owner resource; no other writer may run
// while the sync does.
func New(config Config, source central.Source, store *storage.Storage) *Sync {
	return &Sync{config: config, source: source, storage: store}
}

// SubscribeStatus subscribes to progress notifications. The subscription
// channel receives StatusEvent values.
func (s *Sync) SubscribeStatus(ch chan<- StatusEvent) event.Subscription {
	return s.statusFeed.Subscribe(ch)
}

func (s *Sync) notify(ev StatusEvent) {
	s.statusFeed.Send(ev)
}

// Run drives the sync until the context is cancelled or an unrecoverable
// error occurs.
func (s *Sync) Run(ctx context.Context) error {
	log.Info("State sync started")
	for {
		if err := s.handleBlockReverts(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isRecoverable(err) {
				return err
			}
			if !s.absorb(ctx, err) {
				return ctx.Err()
			}
			continue
		}

		err := s.streamingPass(ctx)
		var mismatch *ParentHashMismatchError
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &mismatch):
			// A revert was detected; restart the outer loop so the revert
			// engine can heal the tail.
			log.Info("Detected revert while processing block", "number", mismatch.Number)
		case isRecoverable(err):
			if !s.absorb(ctx, err) {
				return ctx.Err()
			}
		default:
			return err
		}
	}
}

// absorb logs a recoverable error and idles before the next attempt. It
// returns false when the context is cancelled during the sleep.
func (s *Sync) absorb(ctx context.Context, err error) bool {
	log.Error("Recoverable sync error", "err", err)
	recoverableErrorMeter.Mark(1)
	s.notify(RecoverableErrorEvent{Err: err})
	return sleepCtx(ctx, s.config.BlockPropagationSleepDuration)
}

// streamingPass multiplexes the two stream drivers and dispatches their
// events until an error surfaces. The select is unbiased, so neither stream
// can starve the other.
func (s *Sync) streamingPass(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan streamItem)
	diffs := make(chan streamItem)
	go s.streamNewBlocks(streamCtx, blocks)
	go s.streamNewStateDiffs(streamCtx, diffs)

	for {
		var item streamItem
		select {
		case <-streamCtx.Done():
			return streamCtx.Err()
		case item = <-blocks:
		case item = <-diffs:
		}
		if item.err != nil {
			return item.err
		}
		if err := s.processSyncEvent(item.event); err != nil {
			return err
		}
	}
}

// processSyncEvent stores the incoming data.
func (s *Sync) processSyncEvent(ev Event) error {
	switch ev := ev.(type) {
	case *BlockAvailable:
		return s.storeBlock(ev.Number, ev.Block)
	case *StateDiffAvailable:
		return s.storeStateDiff(ev)
	default:
		return fmt.Errorf("unknown sync event %T", ev)
	}
}

// storeBlock appends a block to the live tables after checking that it
// extends the stored chain.
func (s *Sync) storeBlock(number types.BlockNumber, block *types.Block) error {
	// The central source is trusted, so reverts are detected by comparing
	// the incoming parent hash against the stored tip, not by validating
	// the block itself.
	if err := s.verifyParentBlockHash(number, block); err != nil {
		return err
	}

	txn := s.storage.Begin()
	defer txn.Discard()
	txn, err := txn.AppendHeader(number, &block.Header)
	if err != nil {
		return err
	}
	txn, err = txn.AppendBody(number, block.Body)
	if err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Debug("Stored block", "number", number, "hash", block.Header.BlockHash)
	headerMarkerGauge.Update(int64(number.Next()))
	s.notify(HeaderStoredEvent{Number: number, Hash: block.Header.BlockHash})
	return nil
}

// verifyParentBlockHash compares the incoming block's parent hash to the
// stored block below it. Height zero has no predecessor and always passes.
func (s *Sync) verifyParentBlockHash(number types.BlockNumber, block *types.Block) error {
	prev, ok := number.Prev()
	if !ok {
		return nil
	}
	header := s.storage.Reader().BlockHeader(prev)
	if header == nil {
		return fmt.Errorf("%w: missing block %d in the storage (for verifying block %d)",
			storage.ErrInconsistentStorage, prev, number)
	}
	if header.BlockHash != block.Header.ParentHash {
		return &ParentHashMismatchError{
			Number:   number,
			Expected: block.Header.ParentHash,
			Stored:   header.BlockHash,
		}
	}
	return nil
}

// storeStateDiff routes a diff to the live tables, or to the ommer archive
// when its block was reverted while the diff was in flight.
func (s *Sync) storeStateDiff(ev *StateDiffAvailable) error {
	reverted, err := s.isRevertedStateDiff(ev.Number, ev.BlockHash)
	if err != nil {
		return err
	}

	txn := s.storage.Begin()
	defer txn.Discard()
	if !reverted {
		txn, err = txn.AppendStateDiff(ev.Number, ev.Diff, ev.DeployedClasses)
		if err != nil {
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		log.Debug("Stored state diff", "number", ev.Number)
		stateMarkerGauge.Update(int64(ev.Number.Next()))
		s.notify(StateDiffStoredEvent{Number: ev.Number})
		return nil
	}

	thin, declared := ev.Diff.Thin()
	declared = append(declared, ev.DeployedClasses...)
	txn, err = txn.InsertOmmerStateDiff(ev.BlockHash, &thin, declared)
	if err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	log.Debug("Archived state diff of reverted block", "number", ev.Number, "hash", ev.BlockHash)
	return nil
}

// isRevertedStateDiff reports whether the diff belongs to a reverted block.
// False means a live header matches; true means an ommer header does. A diff
// matching neither is an unrecoverable protocol violation.
func (s *Sync) isRevertedStateDiff(number types.BlockNumber, hash common.Hash) (bool, error) {
	reader := s.storage.Reader()
	if header := reader.BlockHeader(number); header != nil && header.BlockHash == hash {
		return false, nil
	}
	if ommer := reader.OmmerHeader(hash); ommer != nil {
		return true, nil
	}
	return false, &UnmatchedStateDiffError{Number: number, BlockHash: hash}
}

// handleBlockReverts walks the chain tail downwards, reverting every block
// the central source no longer agrees with. Each height is reverted in its
// own committed transaction, so a crash mid-cascade leaves a consistent
// prefix.
func (s *Sync) handleBlockReverts(ctx context.Context) error {
	marker := s.storage.Reader().HeaderMarker()

	tail, ok := marker.Prev()
	for ok {
		revert, err := s.shouldRevertBlock(ctx, tail)
		if err != nil {
			return err
		}
		if !revert {
			return nil
		}
		if err := s.revertBlock(tail); err != nil {
			return err
		}
		tail, ok = tail.Prev()
	}
	return nil
}

// shouldRevertBlock reports whether the central source's hash at the given
// height differs from ours or is absent.
func (s *Sync) shouldRevertBlock(ctx context.Context, number types.BlockNumber) (bool, error) {
	centralHash, exists, err := s.source.BlockHash(ctx, number)
	if err != nil {
		return false, err
	}
	if !exists {
		// The central source's chain is shorter than ours, revert.
		return true, nil
	}
	header := s.storage.Reader().BlockHeader(number)
	if header == nil {
		return false, nil
	}
	return header.BlockHash != centralHash, nil
}

// revertBlock moves one block from the live tables to the ommer tables in a
// single atomic transaction.
func (s *Sync) revertBlock(number types.BlockNumber) error {
	log.Info("Reverting block", "number", number)

	txn := s.storage.Begin()
	defer txn.Discard()

	header := txn.BlockHeader(number)
	if header == nil {
		return fmt.Errorf("%w: tried to revert a missing header of block %d",
			storage.ErrInconsistentStorage, number)
	}
	if !txn.HasBody(number) {
		return fmt.Errorf("%w: tried to revert a missing body of block %d",
			storage.ErrInconsistentStorage, number)
	}
	transactions := txn.BlockTransactions(number)
	outputs := txn.BlockTransactionOutputs(number)
	events := make([][]types.Event, len(transactions))
	for i := range transactions {
		events[i] = txn.TransactionEvents(number, uint64(i))
	}

	txn, err := txn.RevertHeader(number)
	if err != nil {
		return err
	}
	txn, err = txn.InsertOmmerHeader(header.BlockHash, header)
	if err != nil {
		return err
	}
	txn, err = txn.RevertBody(number)
	if err != nil {
		return err
	}
	txn, err = txn.InsertOmmerBody(header.BlockHash, transactions, outputs, events)
	if err != nil {
		return err
	}
	txn, thin, declared, err := txn.RevertStateDiff(number)
	if err != nil {
		return err
	}
	if thin != nil {
		txn, err = txn.InsertOmmerStateDiff(header.BlockHash, thin, declared)
		if err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	revertMeter.Mark(1)
	headerMarkerGauge.Update(int64(number))
	s.notify(RevertEvent{Number: number, Hash: header.BlockHash})
	return nil
}
