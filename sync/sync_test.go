package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/lizatkinson/papyrus/core/types"
	"github.com/lizatkinson/papyrus/storage"
	"github.com/lizatkinson/papyrus/sync/central"
)

// fakeSource serves a mutable in-memory chain. Swapping the chain between
// passes simulates a revert on the central side.
type fakeSource struct {
	mu        gosync.Mutex
	blocks    []*types.Block
	markerErr error
}

func (f *fakeSource) setChain(blocks []*types.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = blocks
}

func (f *fakeSource) snapshot() []*types.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks
}

func (f *fakeSource) BlockMarker(ctx context.Context) (types.BlockNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markerErr != nil {
		return 0, f.markerErr
	}
	return types.BlockNumber(len(f.blocks)), nil
}

func (f *fakeSource) BlockHash(ctx context.Context, number types.BlockNumber) (common.Hash, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(number) >= len(f.blocks) {
		return common.Hash{}, false, nil
	}
	return f.blocks[number].Header.BlockHash, true, nil
}

func (f *fakeSource) StreamNewBlocks(ctx context.Context, from, to types.BlockNumber) <-chan central.BlockResult {
	chain := f.snapshot()
	out := make(chan central.BlockResult)
	go func() {
		defer close(out)
		for number := from; number < to && int(number) < len(chain); number = number.Next() {
			select {
			case out <- central.BlockResult{Number: number, Block: chain[number]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeSource) StreamStateUpdates(ctx context.Context, from, to types.BlockNumber) <-chan central.StateUpdateResult {
	chain := f.snapshot()
	out := make(chan central.StateUpdateResult)
	go func() {
		defer close(out)
		for number := from; number < to && int(number) < len(chain); number = number.Next() {
			update := central.StateUpdateResult{
				Number:    number,
				BlockHash: chain[number].Header.BlockHash,
				Diff:      diffFor(number),
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// makeChain builds a linked chain of the given length. The salt keeps hashes
// of different chains apart.
func makeChain(count int, salt byte) []*types.Block {
	blocks := make([]*types.Block, count)
	parent := common.Hash{}
	for i := range blocks {
		hash := common.BytesToHash([]byte{salt, byte(i) + 1})
		blocks[i] = &types.Block{
			Header: types.Header{
				BlockHash:  hash,
				ParentHash: parent,
				Number:     types.BlockNumber(i),
			},
			Body: types.Body{
				Transactions: []types.Transaction{
					{Hash: common.BytesToHash([]byte{salt, 0xf0, byte(i)}), Type: "INVOKE_FUNCTION"},
				},
				TransactionOutputs: []types.TransactionOutput{
					{
						TransactionHash: common.BytesToHash([]byte{salt, 0xf0, byte(i)}),
						ActualFee:       uint256.NewInt(1),
						Events:          []types.Event{{FromAddress: common.HexToHash("0x5")}},
					},
				},
			},
		}
		parent = hash
	}
	return blocks
}

// forkChain copies base up to keep blocks, then extends it with fresh blocks
// carrying the given salt.
func forkChain(base []*types.Block, keep int, total int, salt byte) []*types.Block {
	blocks := make([]*types.Block, 0, total)
	blocks = append(blocks, base[:keep]...)
	parent := common.Hash{}
	if keep > 0 {
		parent = base[keep-1].Header.BlockHash
	}
	for i := keep; i < total; i++ {
		hash := common.BytesToHash([]byte{salt, byte(i) + 1})
		blocks = append(blocks, &types.Block{
			Header: types.Header{
				BlockHash:  hash,
				ParentHash: parent,
				Number:     types.BlockNumber(i),
			},
		})
		parent = hash
	}
	return blocks
}

func diffFor(number types.BlockNumber) types.StateDiff {
	return types.StateDiff{
		StorageDiffs: []types.StorageDiff{
			{
				Address: common.HexToHash("0x1"),
				Entries: []types.StorageEntry{
					{Key: common.BytesToHash([]byte{byte(number) + 1}), Value: uint256.NewInt(uint64(number) + 1)},
				},
			},
		},
	}
}

func newTestSync(t *testing.T) (*Sync, *storage.Storage, *fakeSource) {
	t.Helper()
	store := storage.New(gethrawdb.NewMemoryDatabase())
	source := &fakeSource{}
	cfg := Config{BlockPropagationSleepDuration: 5 * time.Millisecond}
	return New(cfg, source, store), store, source
}

// fillStorage appends the given blocks through the regular store path.
func fillStorage(t *testing.T, s *Sync, blocks []*types.Block) {
	t.Helper()
	for _, block := range blocks {
		require.NoError(t, s.storeBlock(block.Header.Number, block))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

type statusRecorder struct {
	mu     gosync.Mutex
	events []StatusEvent
}

// recordStatus subscribes to the sync status feed. The returned stop
// function unsubscribes and drains whatever is still buffered, so every
// event sent before stop is visible afterwards.
func recordStatus(s *Sync) (*statusRecorder, func()) {
	r := new(statusRecorder)
	ch := make(chan StatusEvent, 1024)
	sub := s.SubscribeStatus(ch)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case ev := <-ch:
				r.mu.Lock()
				r.events = append(r.events, ev)
				r.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
	stop := func() {
		sub.Unsubscribe()
		close(done)
		<-exited
		for {
			select {
			case ev := <-ch:
				r.events = append(r.events, ev)
			default:
				return
			}
		}
	}
	return r, stop
}

func (r *statusRecorder) headerStores() []HeaderStoredEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stored []HeaderStoredEvent
	for _, ev := range r.events {
		if hs, ok := ev.(HeaderStoredEvent); ok {
			stored = append(stored, hs)
		}
	}
	return stored
}

func (r *statusRecorder) reverts() []RevertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reverts []RevertEvent
	for _, ev := range r.events {
		if rv, ok := ev.(RevertEvent); ok {
			reverts = append(reverts, rv)
		}
	}
	return reverts
}

func TestCleanForwardSync(t *testing.T) {
	s, store, source := newTestSync(t)
	source.setChain(makeChain(3, 0xa0))

	recorder, stopRecording := recordStatus(s)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	waitFor(t, func() bool {
		reader := store.Reader()
		return reader.HeaderMarker() == 3 && reader.StateMarker() == 3
	})
	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)
	stopRecording()

	reader := store.Reader()
	require.Equal(t, types.BlockNumber(3), reader.BodyMarker())
	for number := types.BlockNumber(1); number < 3; number++ {
		header := reader.BlockHeader(number)
		require.NotNil(t, header)
		require.Equal(t, reader.BlockHeader(number-1).BlockHash, header.ParentHash)
		require.NotNil(t, reader.StateDiff(number))
	}

	stored := recorder.headerStores()
	require.Len(t, stored, 3)
	for i, ev := range stored {
		require.Equal(t, types.BlockNumber(i), ev.Number)
	}
}

func TestGenesisSkipsParentCheck(t *testing.T) {
	s, store, _ := newTestSync(t)
	block := makeChain(1, 0xb0)[0]
	require.NoError(t, s.storeBlock(0, block))
	require.Equal(t, types.BlockNumber(1), store.Reader().HeaderMarker())
}

func TestStoreBlockParentMismatch(t *testing.T) {
	s, _, _ := newTestSync(t)
	chain := makeChain(5, 0xc0)
	fillStorage(t, s, chain)

	rogue := &types.Block{
		Header: types.Header{
			BlockHash:  common.HexToHash("0xdead"),
			ParentHash: common.HexToHash("0xbeef"),
			Number:     5,
		},
	}
	err := s.storeBlock(5, rogue)

	var mismatch *ParentHashMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, types.BlockNumber(5), mismatch.Number)
	require.Equal(t, common.HexToHash("0xbeef"), mismatch.Expected)
	require.Equal(t, chain[4].Header.BlockHash, mismatch.Stored)
}

func TestStoreBlockMissingParentIsFatal(t *testing.T) {
	s, _, _ := newTestSync(t)
	block := makeChain(2, 0xc5)[1]
	err := s.storeBlock(1, block)
	require.ErrorIs(t, err, storage.ErrInconsistentStorage)
}

func TestRevertSingleBlock(t *testing.T) {
	s, store, source := newTestSync(t)
	local := makeChain(3, 0xd0)
	fillStorage(t, s, local)

	// The central source replaced the tip.
	replaced := forkChain(local, 2, 3, 0xd1)
	source.setChain(replaced)

	require.NoError(t, s.handleBlockReverts(context.Background()))

	reader := store.Reader()
	require.Equal(t, types.BlockNumber(2), reader.HeaderMarker())
	require.Nil(t, reader.BlockHeader(2))
	require.NotNil(t, reader.OmmerHeader(local[2].Header.BlockHash))
	require.NotNil(t, reader.OmmerBody(local[2].Header.BlockHash))

	// The replacement block extends the chain again.
	require.NoError(t, s.storeBlock(2, replaced[2]))
	reader = store.Reader()
	require.Equal(t, types.BlockNumber(3), reader.HeaderMarker())
	require.Equal(t, replaced[2].Header.BlockHash, reader.BlockHeader(2).BlockHash)

	// No hash lives in both tables.
	require.Nil(t, reader.OmmerHeader(replaced[2].Header.BlockHash))
	require.Nil(t, reader.BlockHeader(3))
}

func TestRevertCascade(t *testing.T) {
	s, store, source := newTestSync(t)
	local := makeChain(4, 0xe0)
	fillStorage(t, s, local)

	// Central dropped height 3 entirely and replaced height 2.
	source.setChain(forkChain(local, 2, 3, 0xe1))

	recorder, stopRecording := recordStatus(s)
	require.NoError(t, s.handleBlockReverts(context.Background()))
	stopRecording()

	reader := store.Reader()
	require.Equal(t, types.BlockNumber(2), reader.HeaderMarker())
	require.NotNil(t, reader.OmmerHeader(local[3].Header.BlockHash))
	require.NotNil(t, reader.OmmerHeader(local[2].Header.BlockHash))
	require.NotNil(t, reader.BlockHeader(1))

	reverts := recorder.reverts()
	require.Len(t, reverts, 2)
	require.Equal(t, types.BlockNumber(3), reverts[0].Number)
	require.Equal(t, types.BlockNumber(2), reverts[1].Number)
}

func TestRevertIsClosed(t *testing.T) {
	s, store, source := newTestSync(t)
	local := makeChain(4, 0xe5)
	fillStorage(t, s, local)
	source.setChain(forkChain(local, 2, 3, 0xe6))

	require.NoError(t, s.handleBlockReverts(context.Background()))
	marker := store.Reader().HeaderMarker()

	// Re-running the revert engine over a healed tail is a no-op.
	require.NoError(t, s.handleBlockReverts(context.Background()))
	require.Equal(t, marker, store.Reader().HeaderMarker())
}

func TestLateStateDiffAfterRevert(t *testing.T) {
	s, store, source := newTestSync(t)
	local := makeChain(6, 0xf0)
	fillStorage(t, s, local)

	// Revert the tip and extend with the replacement, leaving the old tip in
	// the ommer tables.
	replaced := forkChain(local, 5, 6, 0xf1)
	source.setChain(replaced)
	require.NoError(t, s.handleBlockReverts(context.Background()))
	require.NoError(t, s.storeBlock(5, replaced[5]))

	oldHash := local[5].Header.BlockHash
	stateMarker := store.Reader().StateMarker()

	err := s.processSyncEvent(&StateDiffAvailable{
		Number:    5,
		BlockHash: oldHash,
		Diff:      diffFor(5),
	})
	require.NoError(t, err)

	reader := store.Reader()
	require.NotNil(t, reader.OmmerStateDiff(oldHash))
	require.Equal(t, stateMarker, reader.StateMarker())
}

func TestStateDiffWithoutMatchingHeader(t *testing.T) {
	s, _, _ := newTestSync(t)

	err := s.processSyncEvent(&StateDiffAvailable{
		Number:    7,
		BlockHash: common.HexToHash("0x7a"),
	})

	var unmatched *UnmatchedStateDiffError
	require.ErrorAs(t, err, &unmatched)
	require.Equal(t, types.BlockNumber(7), unmatched.Number)
	require.Equal(t, common.HexToHash("0x7a"), unmatched.BlockHash)
}

func TestRunHealsRevertBeforeStreaming(t *testing.T) {
	s, store, source := newTestSync(t)
	local := makeChain(5, 0xa5)
	fillStorage(t, s, local)

	// Central replaced the tip before the sync started.
	replaced := forkChain(local, 4, 6, 0xa6)
	source.setChain(replaced)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	waitFor(t, func() bool {
		reader := store.Reader()
		header := reader.BlockHeader(4)
		return reader.HeaderMarker() == 6 && header != nil &&
			header.BlockHash == replaced[4].Header.BlockHash
	})
	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)

	reader := store.Reader()
	require.NotNil(t, reader.OmmerHeader(local[4].Header.BlockHash))
	require.Nil(t, reader.OmmerHeader(replaced[4].Header.BlockHash))
}

func TestCaughtUpMakesNoWrites(t *testing.T) {
	s, store, _ := newTestSync(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)

	reader := store.Reader()
	require.Equal(t, types.BlockNumber(0), reader.HeaderMarker())
	require.Equal(t, types.BlockNumber(0), reader.StateMarker())
}

func TestCentralErrorIsFatal(t *testing.T) {
	s, _, source := newTestSync(t)
	markerErr := errors.New("gateway unreachable")
	source.markerErr = markerErr

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(context.Background()) }()

	select {
	case err := <-runDone:
		require.ErrorIs(t, err, markerErr)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not fail on central error")
	}
}
