// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"github.com/noxproject/dposd/metrics"
)

var (
	connectCounter    = metrics.NewCounter("chain/connect")
	disconnectCounter = metrics.NewCounter("chain/disconnect")
	reorgCounter      = metrics.NewCounter("chain/reorg")
	orphanGauge       = metrics.NewGauge("chain/orphans")
	forkCacheGauge    = metrics.NewGauge("chain/forkcache")
	connectTimer      = metrics.NewTimer("chain/connect/time")
)
