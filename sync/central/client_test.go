package central

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/lizatkinson/papyrus/core/types"
)

type fakeGateway struct {
	blocks  []map[string]interface{}
	classes map[string]string
	fail    map[string]bool // heights whose get_block answers 500
}

func blockHash(i int) common.Hash {
	return common.BytesToHash([]byte{0xaa, byte(i) + 1})
}

func newFakeGateway(count int) *fakeGateway {
	gw := &fakeGateway{classes: map[string]string{}, fail: map[string]bool{}}
	parent := common.Hash{}
	for i := 0; i < count; i++ {
		hash := blockHash(i)
		gw.blocks = append(gw.blocks, map[string]interface{}{
			"block_hash":           hash,
			"parent_block_hash":    parent,
			"block_number":         i,
			"state_root":           common.Hash{},
			"sequencer_address":    common.Hash{},
			"timestamp":            1700000000 + i,
			"transactions":         []interface{}{},
			"transaction_receipts": []interface{}{},
		})
		parent = hash
	}
	return gw
}

func (gw *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	notFound := func() {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    codeBlockNotFound,
			"message": "Block not found",
		})
	}
	switch r.URL.Path {
	case "/get_block":
		number := r.URL.Query().Get("blockNumber")
		if number == "latest" {
			if len(gw.blocks) == 0 {
				notFound()
				return
			}
			json.NewEncoder(w).Encode(gw.blocks[len(gw.blocks)-1])
			return
		}
		var n int
		fmt.Sscanf(number, "%d", &n)
		if gw.fail[number] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if n >= len(gw.blocks) {
			notFound()
			return
		}
		json.NewEncoder(w).Encode(gw.blocks[n])
	case "/get_state_update":
		number := r.URL.Query().Get("blockNumber")
		var n int
		fmt.Sscanf(number, "%d", &n)
		if n >= len(gw.blocks) {
			notFound()
			return
		}
		declared := common.BytesToHash([]byte{0xd0, byte(n)})
		deployed := common.BytesToHash([]byte{0xd1, byte(n)})
		gw.classes[declared.Hex()] = `{"kind":"declared"}`
		gw.classes[deployed.Hex()] = `{"kind":"deployed"}`
		json.NewEncoder(w).Encode(map[string]interface{}{
			"block_hash": blockHash(n),
			"state_diff": map[string]interface{}{
				"storage_diffs": map[string]interface{}{
					common.HexToHash("0x1").Hex(): []map[string]interface{}{
						{"key": common.HexToHash("0xa"), "value": "0x5"},
					},
				},
				"deployed_contracts": []map[string]interface{}{
					{"address": common.HexToHash("0x2"), "class_hash": deployed},
				},
				"declared_classes": []map[string]interface{}{
					{"class_hash": declared},
				},
				"nonces": map[string]interface{}{
					common.HexToHash("0x2").Hex(): "0x1",
				},
			},
		})
	case "/get_class_by_hash":
		hash := r.URL.Query().Get("classHash")
		class, ok := gw.classes[hash]
		if !ok {
			notFound()
			return
		}
		w.Write([]byte(class))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, gw *fakeGateway) *Client {
	t.Helper()
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)
	return NewClient(Config{URL: server.URL})
}

func TestBlockMarker(t *testing.T) {
	client := newTestClient(t, newFakeGateway(3))
	marker, err := client.BlockMarker(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.BlockNumber(3), marker)
}

func TestBlockMarkerEmptyChain(t *testing.T) {
	client := newTestClient(t, newFakeGateway(0))
	marker, err := client.BlockMarker(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.BlockNumber(0), marker)
}

func TestBlockHash(t *testing.T) {
	client := newTestClient(t, newFakeGateway(2))

	hash, ok, err := client.BlockHash(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blockHash(1), hash)

	_, ok, err = client.BlockHash(context.Background(), 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStreamNewBlocks(t *testing.T) {
	client := newTestClient(t, newFakeGateway(3))

	var got []types.BlockNumber
	for item := range client.StreamNewBlocks(context.Background(), 0, 3) {
		require.NoError(t, item.Err)
		require.Equal(t, item.Number, item.Block.Header.Number)
		got = append(got, item.Number)
	}
	require.Equal(t, []types.BlockNumber{0, 1, 2}, got)
}

func TestStreamNewBlocksSurfacesErrors(t *testing.T) {
	gw := newFakeGateway(3)
	gw.fail["1"] = true
	client := newTestClient(t, gw)

	var items []BlockResult
	for item := range client.StreamNewBlocks(context.Background(), 0, 3) {
		items = append(items, item)
	}
	require.Len(t, items, 2)
	require.NoError(t, items[0].Err)
	require.Error(t, items[1].Err)
	require.Equal(t, types.BlockNumber(1), items[1].Number)
}

func TestStreamStateUpdates(t *testing.T) {
	client := newTestClient(t, newFakeGateway(2))

	var got []StateUpdateResult
	for item := range client.StreamStateUpdates(context.Background(), 0, 2) {
		require.NoError(t, item.Err)
		got = append(got, item)
	}
	require.Len(t, got, 2)

	update := got[1]
	require.Equal(t, types.BlockNumber(1), update.Number)
	require.Equal(t, blockHash(1), update.BlockHash)
	require.Len(t, update.Diff.StorageDiffs, 1)
	require.Len(t, update.Diff.DeclaredClasses, 1)
	require.JSONEq(t, `{"kind":"declared"}`, string(update.Diff.DeclaredClasses[0].Class))
	require.Len(t, update.Diff.Nonces, 1)
	require.Len(t, update.DeployedClasses, 1)
	require.JSONEq(t, `{"kind":"deployed"}`, string(update.DeployedClasses[0].Class))
}
