// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2016-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/log"
)

// logInterval is the minimum time between two progress messages.
const logInterval = 10 * time.Second

// BlockProgressLogger provides periodic logging for other services in order
// to show users progress of certain "actions" involving some or all current
// blocks. Ex: syncing to best chain, importing blocks, etc.
type BlockProgressLogger struct {
	receivedLogBlocks int64
	receivedLogTx     int64
	lastBlockLogTime  time.Time

	subsystemLogger log.Logger
	progressAction  string

	// now is the clock, replaced in tests.
	now func() time.Time
	sync.Mutex
}

// NewBlockProgressLogger returns a new block progress logger.
// The progress message is logged with the following fields:
//  {progressAction} blocks={numProcessed} duration={timePeriod}
//  txs={numTxs} height={lastBlockHeight} time={lastBlockTimeStamp}
func NewBlockProgressLogger(progressMessage string, logger log.Logger) *BlockProgressLogger {
	return &BlockProgressLogger{
		lastBlockLogTime: time.Now(),
		progressAction:   progressMessage,
		subsystemLogger:  logger,
		now:              time.Now,
	}
}

// LogBlockHeight logs a new block height as an information message to show
// progress to the user.  In order to prevent spam, it limits logging to one
// message every 10 seconds with duration and totals included.  It reports
// whether a message was logged.
func (b *BlockProgressLogger) LogBlockHeight(block *types.Block) bool {
	b.Lock()
	defer b.Unlock()
	b.receivedLogBlocks++
	b.receivedLogTx += int64(len(block.Transactions))

	now := b.now()
	duration := now.Sub(b.lastBlockLogTime)
	if duration < logInterval {
		return false
	}

	// Truncate the duration to 10s of milliseconds.
	tDuration := duration.Truncate(10 * time.Millisecond)

	b.subsystemLogger.Info(b.progressAction, "blocks", b.receivedLogBlocks,
		"duration", tDuration, "txs", b.receivedLogTx, "height", block.Height(),
		"time", block.Header.Timestamp)

	b.receivedLogBlocks = 0
	b.receivedLogTx = 0
	b.lastBlockLogTime = now
	return true
}

// SetLastLogTime resets the start of the current logging period.
func (b *BlockProgressLogger) SetLastLogTime(time time.Time) {
	b.Lock()
	b.lastBlockLogTime = time
	b.Unlock()
}
