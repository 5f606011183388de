// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import "fmt"

// RejectCode identifies why the pool refused a transaction.
type RejectCode uint8

const (
	RejectInvalid RejectCode = iota + 1
	RejectDuplicate
	RejectExpired
	RejectPoolFull
	RejectNonstandard
)

var rejectCodeStrings = map[RejectCode]string{
	RejectInvalid:     "REJECT_INVALID",
	RejectDuplicate:   "REJECT_DUPLICATE",
	RejectExpired:     "REJECT_EXPIRED",
	RejectPoolFull:    "REJECT_POOLFULL",
	RejectNonstandard: "REJECT_NONSTANDARD",
}

// String returns the RejectCode in human-readable form.
func (code RejectCode) String() string {
	if s, ok := rejectCodeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RejectCode (%d)", uint8(code))
}

// TxRuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the RejectCode field to
// ascertain the specific reason for the rule violation.
type TxRuleError struct {
	RejectCode  RejectCode // The code to send with reject messages
	Description string     // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates a TxRuleError given a set of arguments.
func txRuleError(c RejectCode, format string, args ...interface{}) TxRuleError {
	return TxRuleError{RejectCode: c, Description: fmt.Sprintf(format, args...)}
}
