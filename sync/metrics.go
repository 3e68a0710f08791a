package sync

import (
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	headerMarkerGauge = metrics.NewRegisteredGauge("sync/markers/header", nil)
	stateMarkerGauge  = metrics.NewRegisteredGauge("sync/markers/state", nil)

	revertMeter           = metrics.NewRegisteredMeter("sync/reverts", nil)
	recoverableErrorMeter = metrics.NewRegisteredMeter("sync/errors/recoverable", nil)
)
