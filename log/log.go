// Copyright (c) 2017-2018 The nox developers

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var (
	glogger *GlogHandler

	logWrite *logWriter
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct {
	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	// Use for color terminal
	colorableWrite io.Writer
}

func (lw *logWriter) Init() {
	// init a colorful logger if possible
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"

	if usecolor {
		lw.colorableWrite = colorable.NewColorableStderr()
	}
}

func (lw *logWriter) Close() {
	if lw.logRotator != nil {
		lw.logRotator.Close()
	}
}

func (lw *logWriter) IsUseColor() bool {
	return lw.colorableWrite != nil
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	if lw.logRotator != nil {
		lw.logRotator.Write(p)
	}

	if lw.colorableWrite != nil {
		lw.colorableWrite.Write(p)
	} else {
		os.Stderr.Write(p)
	}
	return len(p), nil
}

func init() {
	// output set to Stderr
	// it's easier to handle when run as a daemon through systemd or supervisord,
	// and Go runtime exceptions are printed to stderr as well.
	logWrite = &logWriter{}
	logWrite.Init()
	glogger = NewGlogHandler(StreamHandler(io.Writer(logWrite), TerminalFormat(logWrite.IsUseColor())))

	Root().SetHandler(glogger)

	glogger.Verbosity(LvlInfo)
}

// InitLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %v", err)
	}

	logWrite.logRotator = r
	return nil
}

// SetLevel parses a level name such as "debug" and applies it to the global
// handler.
func SetLevel(level string) error {
	lvl, err := LvlFromString(level)
	if err != nil {
		return err
	}
	glogger.Verbosity(lvl)
	return nil
}

func LogWrite() *logWriter {
	return logWrite
}

func Glogger() *GlogHandler {
	return glogger
}
