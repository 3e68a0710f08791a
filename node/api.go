package node

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lizatkinson/papyrus/params"
	"github.com/lizatkinson/papyrus/storage"
)

// syncStatus is the JSON answer of the status endpoint.
type syncStatus struct {
	Network         string      `json:"network"`
	ChainID         string      `json:"chain_id"`
	HeaderMarker    uint64      `json:"header_marker"`
	BodyMarker      uint64      `json:"body_marker"`
	StateMarker     uint64      `json:"state_marker"`
	LatestBlockHash common.Hash `json:"latest_block_hash"`
}

type statusHandler struct {
	storage *storage.Storage
	chain   *params.ChainConfig
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	reader := h.storage.Reader()
	status := syncStatus{
		Network:      h.chain.Name,
		ChainID:      h.chain.ChainID,
		HeaderMarker: uint64(reader.HeaderMarker()),
		BodyMarker:   uint64(reader.BodyMarker()),
		StateMarker:  uint64(reader.StateMarker()),
	}
	if tail, ok := reader.HeaderMarker().Prev(); ok {
		if header := reader.BlockHeader(tail); header != nil {
			status.LatestBlockHash = header.BlockHash
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
