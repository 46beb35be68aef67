package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stacktrace is the log field holding the stack trace of a logged error.
const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err and, if one can be found, the stack trace recorded when it was created to entry.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(Stacktrace, stack)
	}
	return entry
}

// ExtractStack returns the outermost stack trace in the chain of err, following both
// pkg/errors causes and standard library wrapping. It returns nil if there is none.
func ExtractStack(err error) errors.StackTrace {
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			return tracer.StackTrace()
		}
		switch wrapped := err.(type) {
		case interface{ Cause() error }:
			err = wrapped.Cause()
		case interface{ Unwrap() error }:
			err = wrapped.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
