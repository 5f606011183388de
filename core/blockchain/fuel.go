// Copyright (c) 2017-2018 The nox developers

package blockchain

import "github.com/noxproject/dposd/params"

// runStepsPerFuelUnit is the number of run steps one unit of fuel rate pays
// for.
const runStepsPerFuelUnit = 100

// calcFuelRate returns the fuel rate the child of prev must declare.  The
// rate tracks demand: the average run steps spent over the last window of
// blocks moves it down by a tenth when below the low band and up by a tenth
// when above the high band.
func calcFuelRate(prev *BlockNode, p *params.Params) uint32 {
	if prev == nil {
		return p.InitFuelRate
	}
	window := int64(p.FuelRateWindow)
	if window <= 0 || window*2 >= int64(prev.height)-1 {
		return p.InitFuelRate
	}

	var total uint64
	n := prev
	for i := int64(0); i < window && n != nil; i++ {
		if n.fuelRate != 0 {
			total += n.fuel / uint64(n.fuelRate) * runStepsPerFuelUnit
		}
		n = n.parent
	}
	avg := total / uint64(window)

	low, high := p.FuelRateBand()
	rate := uint64(prev.fuelRate)
	switch {
	case avg < low:
		rate = rate * 9 / 10
	case avg > high:
		rate = rate * 11 / 10
	}
	if rate < uint64(p.MinFuelRate) {
		rate = uint64(p.MinFuelRate)
	}
	return uint32(rate)
}

// txFuel returns the fuel charged for runStep run steps at rate.
func txFuel(runStep uint64, rate uint32) uint64 {
	return (runStep + runStepsPerFuelUnit - 1) / runStepsPerFuelUnit * uint64(rate)
}

// CalcNextFuelRate returns the fuel rate a block built on the current tip
// must declare.
//
// This function is safe for concurrent access.
func (b *BlockChain) CalcNextFuelRate() uint32 {
	b.chainLock.RLock()
	rate := calcFuelRate(b.bestChain.Tip(), b.params)
	b.chainLock.RUnlock()
	return rate
}
