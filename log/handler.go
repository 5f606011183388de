// Copyright (c) 2017-2018 The nox developers

package log

import (
	"fmt"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/go-stack/stack"
)

// The handler, format and record machinery is the log15 fork maintained by
// go-ethereum.  It is re-exported here so callers only import this package.
type (
	Logger      = ethlog.Logger
	Ctx         = ethlog.Ctx
	Lvl         = ethlog.Lvl
	Handler     = ethlog.Handler
	Format      = ethlog.Format
	Record      = ethlog.Record
	GlogHandler = ethlog.GlogHandler
)

const (
	LvlCrit  = ethlog.LvlCrit
	LvlError = ethlog.LvlError
	LvlWarn  = ethlog.LvlWarn
	LvlInfo  = ethlog.LvlInfo
	LvlDebug = ethlog.LvlDebug
	LvlTrace = ethlog.LvlTrace
)

var (
	New            = ethlog.New
	Root           = ethlog.Root
	StreamHandler  = ethlog.StreamHandler
	TerminalFormat = ethlog.TerminalFormat
	NewGlogHandler = ethlog.NewGlogHandler
	LvlFromString  = ethlog.LvlFromString
	DiscardHandler = ethlog.DiscardHandler
	PrintOrigins   = ethlog.PrintOrigins

	Trace = ethlog.Trace
	Debug = ethlog.Debug
	Info  = ethlog.Info
	Warn  = ethlog.Warn
	Error = ethlog.Error
	Crit  = ethlog.Crit
)

// Location returns the file:line of the caller skip frames above the caller
// of Location.
func Location(skip int) string {
	return fmt.Sprintf("%+v", stack.Caller(skip+1))
}
