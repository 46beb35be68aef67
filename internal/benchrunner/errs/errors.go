// Package errs contains generic validation errors shared by config, manifest and CLI parsing.
//
// Callers should look for these types with errors.As, since they are usually wrapped
// by github.com/pkg/errors on the way up. Where several problems are found at once
// (e.g. when validating config) they are collected in a multierror.Error from
// github.com/hashicorp/go-multierror.
package errs

import "fmt"

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "workerCount"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value \"%v\" is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value \"%v\" is invalid for field %q; %s", err.Value, err.Name, err.Message)
}
