// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"time"
)

// MedianTimeSource provides the network adjusted time blocks are checked
// against.
type MedianTimeSource interface {
	// AdjustedTime returns the current time adjusted by the median offset
	// of the peers.
	AdjustedTime() time.Time
}

// timeSource provides an implementation of the MedianTimeSource interface
// that simply returns the current local time.
type timeSource struct{}

// AdjustedTime returns the current local time, with one second precision.
func (m *timeSource) AdjustedTime() time.Time {
	return time.Unix(time.Now().Unix(), 0)
}

// NewTimeSource returns a new instance of a MedianTimeSource reading the local
// clock.
func NewTimeSource() MedianTimeSource {
	return &timeSource{}
}
