// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// Constants for the type of a notification message.
const (
	// BlockAccepted indicates the associated block was accepted into
	// the block chain.  Note that this does not necessarily mean it was
	// added to the main chain.  For that, use BlockConnected.
	BlockAccepted NotificationType = iota

	// BlockConnected indicates the associated block was connected to the
	// main chain.
	BlockConnected

	// BlockDisconnected indicates the associated block was disconnected
	// from the main chain.
	BlockDisconnected

	// Reorganization indicates that a blockchain reorganization took place.
	Reorganization
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	BlockAccepted:     "BlockAccepted",
	BlockConnected:    "BlockConnected",
	BlockDisconnected: "BlockDisconnected",
	Reorganization:    "Reorganization",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// BlockAcceptedNotifyData is the structure for data indicating information
// about an accepted block.  Note that this does not necessarily mean the block
// that was accepted extended the best chain as it might have created or
// extended a side chain.
type BlockAcceptedNotifyData struct {
	// Block is the block that was accepted into the chain.
	Block *types.Block

	Flags BehaviorFlags
}

// ReorganizationNotifyData is the structure for data indicating information
// about a reorganization.
type ReorganizationNotifyData struct {
	OldTip       *hash.Hash
	OldHeight    uint32
	NewTip       *hash.Hash
	NewHeight    uint32
	Disconnected int
	Connected    int
}

// Notification defines notification that is sent to subscribers of the event
// feed given to New and consists of a notification type as well as associated
// data that depends on the type as follows:
//   - BlockAccepted:         *BlockAcceptedNotifyData
//   - BlockConnected:        *types.Block
//   - BlockDisconnected:     *types.Block
//   - Reorganization:        *ReorganizationNotifyData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// sendNotification queues a notification with the passed type and data.
// Notifications are delivered once the chain lock is released so that
// subscribers may call back into the chain.
func (b *BlockChain) sendNotification(typ NotificationType, data interface{}) {
	// Ignore it if the caller didn't request notifications.
	if b.events == nil {
		return
	}

	n := &Notification{Type: typ, Data: data}
	b.notifyLock.Lock()
	b.pendingNotifications = append(b.pendingNotifications, n)
	b.notifyLock.Unlock()
}

// flushNotifications delivers the queued notifications.
//
// This function MUST NOT be called with the chain lock held.
func (b *BlockChain) flushNotifications() {
	b.notifyLock.Lock()
	pending := b.pendingNotifications
	b.pendingNotifications = nil
	b.notifyLock.Unlock()

	for _, n := range pending {
		log.Trace("send chain notification", "type", n.Type)
		b.events.Send(n)
	}
}
