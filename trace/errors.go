package trace

import "github.com/zeebo/errs/v2"

// Error is the error class for failures that are not caused by trace data.
var Error = errs.Tag("trace")

// ContractError reports a misuse of the model API: out-of-order begins,
// ending a slice that was never opened, merging groups with open slices.
// Malformed trace data is reported through warnings instead.
type ContractError struct {
	Op      string
	Message string
}

func (e *ContractError) Error() string { return e.Op + ": " + e.Message }

func contractError(op, message string) *ContractError {
	return &ContractError{Op: op, Message: message}
}
