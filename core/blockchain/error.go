// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/pkg/errors"
)

// HashError identifies an error that indicates a hash was specified that does
// not exist.
type HashError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e HashError) Error() string {
	return fmt.Sprintf("hash %v does not exist", string(e))
}

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorKind groups error codes by how the chain recovers from them.
type ErrorKind int

const (
	// KindStructural is a malformed block.  It is rejected before any
	// state is touched.
	KindStructural ErrorKind = iota

	// KindConsensus is a well formed block that breaks a rule depending
	// on chain state.  The block is marked failed.
	KindConsensus

	// KindResource is input refused to bound resource use.  Nothing is
	// marked and the input may be offered again later.
	KindResource
)

var errorKindStrings = map[ErrorKind]string{
	KindStructural: "structural",
	KindConsensus:  "consensus",
	KindResource:   "resource",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s := errorKindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock ErrorCode = iota

	// ErrBlockTooBig indicates the serialized block size exceeds the
	// maximum allowed size.
	ErrBlockTooBig

	// ErrBadBlockVersion indicates the block version does not match the
	// version required by the network.
	ErrBadBlockVersion

	// ErrNoTransactions indicates the block does not have at least one
	// transaction.  A valid block must have at least the reward
	// transaction.
	ErrNoTransactions

	// ErrFirstTxNotReward indicates the first transaction in a block
	// is not the reward transaction.
	ErrFirstTxNotReward

	// ErrMultipleRewardTxs indicates a block contains more than one
	// reward transaction.
	ErrMultipleRewardTxs

	// ErrDuplicateTx indicates a block contains an identical transaction
	// (or at least two transactions which hash to the same value).  A
	// valid block may only contain unique transactions.
	ErrDuplicateTx

	// ErrBadMerkleRoot indicates the calculated merkle root does not match
	// the expected value.
	ErrBadMerkleRoot

	// ErrTimeTooNew indicates the time is too far in the future as compared
	// the current time.
	ErrTimeTooNew

	// ErrBadNonce indicates the header nonce exceeds the network maximum.
	ErrBadNonce

	// ErrBadRewardHeight indicates the reward transaction names a height
	// other than the block's.
	ErrBadRewardHeight

	// ErrBadHeight indicates the block height is not one more than the
	// height of its parent.
	ErrBadHeight

	// ErrTimeTooOld indicates the time is either before the parent's time
	// plus the block interval.
	ErrTimeTooOld

	// ErrBadFuelRate indicates the declared fuel rate differs from the rate
	// derived from the parent chain.
	ErrBadFuelRate

	// ErrBadFuel indicates the declared block fuel differs from the fuel
	// consumed by its transactions.
	ErrBadFuel

	// ErrRunStepExceeded indicates the transactions of a block used more
	// run steps than a block may.
	ErrRunStepExceeded

	// ErrBadReward indicates the reward transaction does not pay exactly
	// the collected fees less the burned fuel.
	ErrBadReward

	// ErrDuplicateConfirmedTx indicates a transaction already confirmed on
	// the chain was included again.
	ErrDuplicateConfirmedTx

	// ErrTxRejected indicates the executor refused a transaction.
	ErrTxRejected

	// ErrBadDelegate indicates the delegate rotation refused the block.
	ErrBadDelegate

	// ErrInvalidAncestorBlock indicates that an ancestor of this block has
	// failed validation.
	ErrInvalidAncestorBlock

	// ErrKnownInvalidBlock indicates the block has already been marked
	// invalid.
	ErrKnownInvalidBlock

	// ErrForkTooDeep indicates a competing branch forks further below the
	// tip than a fork may.
	ErrForkTooDeep

	// ErrOrphanLimit indicates the orphan pool is full of blocks closer to
	// the tip than the offered one.
	ErrOrphanLimit

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrBlockTooBig:          "ErrBlockTooBig",
	ErrBadBlockVersion:      "ErrBadBlockVersion",
	ErrNoTransactions:       "ErrNoTransactions",
	ErrFirstTxNotReward:     "ErrFirstTxNotReward",
	ErrMultipleRewardTxs:    "ErrMultipleRewardTxs",
	ErrDuplicateTx:          "ErrDuplicateTx",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrBadNonce:             "ErrBadNonce",
	ErrBadRewardHeight:      "ErrBadRewardHeight",
	ErrBadHeight:            "ErrBadHeight",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrBadFuelRate:          "ErrBadFuelRate",
	ErrBadFuel:              "ErrBadFuel",
	ErrRunStepExceeded:      "ErrRunStepExceeded",
	ErrBadReward:            "ErrBadReward",
	ErrDuplicateConfirmedTx: "ErrDuplicateConfirmedTx",
	ErrTxRejected:           "ErrTxRejected",
	ErrBadDelegate:          "ErrBadDelegate",
	ErrInvalidAncestorBlock: "ErrInvalidAncestorBlock",
	ErrKnownInvalidBlock:    "ErrKnownInvalidBlock",
	ErrForkTooDeep:          "ErrForkTooDeep",
	ErrOrphanLimit:          "ErrOrphanLimit",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Kind classifies the code.  Duplicates count as resource errors: the input
// is refused without marking anything.
func (e ErrorCode) Kind() ErrorKind {
	switch e {
	case ErrDuplicateBlock, ErrForkTooDeep, ErrOrphanLimit:
		return KindResource
	case ErrBlockTooBig, ErrBadBlockVersion, ErrNoTransactions,
		ErrFirstTxNotReward, ErrMultipleRewardTxs, ErrDuplicateTx,
		ErrBadMerkleRoot, ErrTimeTooNew, ErrBadNonce, ErrBadRewardHeight:
		return KindStructural
	}
	return KindConsensus
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block failed due to one of the many validation rules.  The
// caller can use type assertions to determine if a failure was specifically
// due to a rule violation and access the ErrorCode field to ascertain the
// specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Kind returns the recovery class of the error.
func (e RuleError) Kind() ErrorKind {
	return e.ErrorCode.Kind()
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// ruleErrorf is ruleError with a format string.
func ruleErrorf(c ErrorCode, format string, args ...interface{}) RuleError {
	return RuleError{ErrorCode: c, Description: fmt.Sprintf(format, args...)}
}

// AsRuleError unwraps err to a RuleError.
func AsRuleError(err error) (RuleError, bool) {
	if err == nil {
		return RuleError{}, false
	}
	re, ok := errors.Cause(err).(RuleError)
	return re, ok
}

// IsErrorCode returns whether err is a RuleError carrying code c.
func IsErrorCode(err error, c ErrorCode) bool {
	re, ok := AsRuleError(err)
	return ok && re.ErrorCode == c
}

// IsSystemError returns whether err is neither nil nor a rule violation.
// System errors mean the node can no longer trust its storage and block
// processing must stop.
func IsSystemError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := AsRuleError(err)
	return !ok
}
