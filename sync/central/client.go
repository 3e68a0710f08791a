package central

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/lizatkinson/papyrus/core/types"
)

// Config holds the settings of the gateway client.
type Config struct {
	// URL is the base URL of the central gateway, e.g.
	// https://alpha-mainnet.starknet.io/feeder_gateway.
	URL string

	// RequestTimeout bounds a single HTTP request. Zero means no timeout.
	RequestTimeout time.Duration `toml:",omitempty"`
}

// GatewayError is a protocol-level error answer from the gateway.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("central gateway: %s (%s)", e.Message, e.Code)
}

const codeBlockNotFound = "StarknetErrorCode.BLOCK_NOT_FOUND"

// Client talks to the central gateway over HTTP. It implements Source.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a gateway client from the given config.
func NewClient(config Config) *Client {
	return &Client{
		baseURL: config.URL,
		client:  &http.Client{Timeout: config.RequestTimeout},
	}
}

// BlockMarker returns one past the latest block served by the gateway, zero
// when the gateway serves an empty chain.
func (c *Client) BlockMarker(ctx context.Context) (types.BlockNumber, error) {
	block, err := c.getBlock(ctx, "latest")
	if err != nil {
		var gwerr *GatewayError
		if errors.As(err, &gwerr) && gwerr.Code == codeBlockNotFound {
			return 0, nil
		}
		return 0, err
	}
	return block.Header.Number.Next(), nil
}

// BlockHash returns the hash of the block at the given height; false when
// the gateway has no block there.
func (c *Client) BlockHash(ctx context.Context, number types.BlockNumber) (common.Hash, bool, error) {
	block, err := c.getBlock(ctx, number.String())
	if err != nil {
		var gwerr *GatewayError
		if errors.As(err, &gwerr) && gwerr.Code == codeBlockNotFound {
			return common.Hash{}, false, nil
		}
		return common.Hash{}, false, err
	}
	return block.Header.BlockHash, true, nil
}

// StreamNewBlocks fetches the blocks in [from, to) sequentially, forwarding
// each one as it arrives.
func (c *Client) StreamNewBlocks(ctx context.Context, from, to types.BlockNumber) <-chan BlockResult {
	out := make(chan BlockResult)
	go func() {
		defer close(out)
		for number := from; number < to; number = number.Next() {
			block, err := c.getBlock(ctx, number.String())
			if err != nil {
				send(ctx, out, BlockResult{Number: number, Err: err})
				return
			}
			if !send(ctx, out, BlockResult{Number: number, Block: block}) {
				return
			}
		}
	}()
	return out
}

// StreamStateUpdates fetches the state updates in [from, to) sequentially,
// resolving the class definitions each diff needs.
func (c *Client) StreamStateUpdates(ctx context.Context, from, to types.BlockNumber) <-chan StateUpdateResult {
	out := make(chan StateUpdateResult)
	go func() {
		defer close(out)
		for number := from; number < to; number = number.Next() {
			update, err := c.getStateUpdate(ctx, number)
			if err != nil {
				send(ctx, out, StateUpdateResult{Number: number, Err: err})
				return
			}
			update.Number = number
			if !send(ctx, out, *update) {
				return
			}
		}
	}()
	return out
}

func send[T any](ctx context.Context, out chan<- T, item T) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// blockJSON is the wire shape of get_block.
type blockJSON struct {
	BlockHash    common.Hash               `json:"block_hash"`
	ParentHash   common.Hash               `json:"parent_block_hash"`
	Number       uint64                    `json:"block_number"`
	StateRoot    common.Hash               `json:"state_root"`
	Sequencer    common.Hash               `json:"sequencer_address"`
	Timestamp    uint64                    `json:"timestamp"`
	Transactions []types.Transaction       `json:"transactions"`
	Receipts     []types.TransactionOutput `json:"transaction_receipts"`
}

func (c *Client) getBlock(ctx context.Context, number string) (*types.Block, error) {
	var wire blockJSON
	if err := c.getJSON(ctx, "get_block", url.Values{"blockNumber": {number}}, &wire); err != nil {
		return nil, err
	}
	return &types.Block{
		Header: types.Header{
			BlockHash:  wire.BlockHash,
			ParentHash: wire.ParentHash,
			Number:     types.BlockNumber(wire.Number),
			GlobalRoot: wire.StateRoot,
			Sequencer:  wire.Sequencer,
			Timestamp:  wire.Timestamp,
		},
		Body: types.Body{
			Transactions:       wire.Transactions,
			TransactionOutputs: wire.Receipts,
		},
	}, nil
}

// stateUpdateJSON is the wire shape of get_state_update.
type stateUpdateJSON struct {
	BlockHash common.Hash `json:"block_hash"`
	StateDiff struct {
		StorageDiffs map[common.Hash][]struct {
			Key   common.Hash  `json:"key"`
			Value *uint256.Int `json:"value"`
		} `json:"storage_diffs"`
		DeployedContracts []types.DeployedContract `json:"deployed_contracts"`
		DeclaredClasses   []struct {
			ClassHash common.Hash `json:"class_hash"`
		} `json:"declared_classes"`
		Nonces map[common.Hash]*uint256.Int `json:"nonces"`
	} `json:"state_diff"`
}

func (c *Client) getStateUpdate(ctx context.Context, number types.BlockNumber) (*StateUpdateResult, error) {
	var wire stateUpdateJSON
	if err := c.getJSON(ctx, "get_state_update", url.Values{"blockNumber": {number.String()}}, &wire); err != nil {
		return nil, err
	}

	diff := types.StateDiff{}
	for address, entries := range wire.StateDiff.StorageDiffs {
		sd := types.StorageDiff{Address: address}
		for _, entry := range entries {
			sd.Entries = append(sd.Entries, types.StorageEntry{Key: entry.Key, Value: entry.Value})
		}
		diff.StorageDiffs = append(diff.StorageDiffs, sd)
	}
	diff.DeployedContracts = wire.StateDiff.DeployedContracts
	for address, nonce := range wire.StateDiff.Nonces {
		diff.Nonces = append(diff.Nonces, types.ContractNonce{Address: address, Nonce: nonce})
	}

	declared := make(map[types.ClassHash]bool, len(wire.StateDiff.DeclaredClasses))
	for _, class := range wire.StateDiff.DeclaredClasses {
		definition, err := c.getClass(ctx, class.ClassHash)
		if err != nil {
			return nil, err
		}
		diff.DeclaredClasses = append(diff.DeclaredClasses, types.DeclaredClass{
			ClassHash: class.ClassHash,
			Class:     definition,
		})
		declared[class.ClassHash] = true
	}

	// Definitions of classes deployed in this diff without a matching
	// declaration still have to travel with it.
	var deployedClasses []types.DeclaredClass
	fetched := make(map[types.ClassHash]bool)
	for _, contract := range diff.DeployedContracts {
		if declared[contract.ClassHash] || fetched[contract.ClassHash] {
			continue
		}
		definition, err := c.getClass(ctx, contract.ClassHash)
		if err != nil {
			return nil, err
		}
		deployedClasses = append(deployedClasses, types.DeclaredClass{
			ClassHash: contract.ClassHash,
			Class:     definition,
		})
		fetched[contract.ClassHash] = true
	}

	return &StateUpdateResult{
		BlockHash:       wire.BlockHash,
		Diff:            diff,
		DeployedClasses: deployedClasses,
	}, nil
}

func (c *Client) getClass(ctx context.Context, hash types.ClassHash) (types.ContractClass, error) {
	return c.getRaw(ctx, "get_class_by_hash", url.Values{"classHash": {hash.Hex()}})
}

func (c *Client) getJSON(ctx context.Context, method string, query url.Values, out interface{}) error {
	body, err := c.getRaw(ctx, method, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("central gateway: decoding %s: %w", method, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, method string, query url.Values) ([]byte, error) {
	target := fmt.Sprintf("%s/%s?%s", c.baseURL, method, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		gwerr := new(GatewayError)
		if err := json.Unmarshal(body, gwerr); err != nil || gwerr.Code == "" {
			return nil, fmt.Errorf("central gateway: %s returned status %d", method, resp.StatusCode)
		}
		log.Trace("Gateway request failed", "method", method, "code", gwerr.Code)
		return nil, gwerr
	}
	return body, nil
}
