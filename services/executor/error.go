// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package executor

import "fmt"

// RejectCode identifies why the executor refused a transaction.
type RejectCode int

const (
	// RejectUnknownType indicates a transaction type the executor cannot
	// run.
	RejectUnknownType RejectCode = iota

	// RejectValidHeight indicates the valid height of a transaction is
	// too far from the height of the block including it.
	RejectValidHeight

	// RejectFeeSymbol indicates a fee paid in a symbol that is not
	// accepted for fees.
	RejectFeeSymbol

	// RejectUnknownAsset indicates a transfer of an unregistered asset.
	RejectUnknownAsset

	// RejectInsufficientFunds indicates the sender cannot cover the
	// amount plus the fee.
	RejectInsufficientFunds

	// RejectZeroAmount indicates a transfer of nothing.
	RejectZeroAmount

	// RejectBadMiner indicates a reward naming someone other than the
	// producer of the block.
	RejectBadMiner
)

var rejectCodeStrings = map[RejectCode]string{
	RejectUnknownType:       "RejectUnknownType",
	RejectValidHeight:       "RejectValidHeight",
	RejectFeeSymbol:         "RejectFeeSymbol",
	RejectUnknownAsset:      "RejectUnknownAsset",
	RejectInsufficientFunds: "RejectInsufficientFunds",
	RejectZeroAmount:        "RejectZeroAmount",
	RejectBadMiner:          "RejectBadMiner",
}

// String returns the RejectCode as a human-readable name.
func (c RejectCode) String() string {
	if s := rejectCodeStrings[c]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown RejectCode (%d)", int(c))
}

// TxRuleError identifies a transaction the executor refused.  The chain
// turns it into a block rule violation.
type TxRuleError struct {
	RejectCode  RejectCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

func txRuleError(c RejectCode, format string, args ...interface{}) TxRuleError {
	return TxRuleError{RejectCode: c, Description: fmt.Sprintf(format, args...)}
}
