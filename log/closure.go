package log

import (
	"github.com/davecgh/go-spew/spew"
)

// LogClosure is a closure that can be printed with %v to be used to
// generate expensive-to-create data for a detailed log level and avoid doing
// the work if the data isn't printed.
type LogClosure func() string

func (c LogClosure) String() string {
	return c()
}

func NewLogClosure(c func() string) LogClosure {
	return LogClosure(c)
}

// SpewClosure dumps v with go-spew only when the record is actually
// rendered.
func SpewClosure(v interface{}) LogClosure {
	return LogClosure(func() string {
		return spew.Sdump(v)
	})
}
