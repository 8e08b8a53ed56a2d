package bridge

import "fmt"

// TransportError reports a failure of the bridge channel itself: the
// driver process is unreachable or crashed, or it violated the wire
// protocol. Transport errors are fatal to the connection and are never
// retried automatically.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "bridge transport: " + e.Op
	}
	return fmt.Sprintf("bridge transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DriverError reports a failure the driver itself diagnosed, typically
// built from a follow-up status call. The connection remains usable.
type DriverError struct {
	Code    int64
	Message string
	State   string
}

func (e *DriverError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("driver error %d [%s]: %s", e.Code, e.State, e.Message)
	}
	return fmt.Sprintf("driver error %d: %s", e.Code, e.Message)
}

// ProgrammingError reports a core-logic defect, such as binding a data
// source to an already bound connection. It signals a bug in the
// caller, not a recoverable condition.
type ProgrammingError struct {
	Op     string
	Reason string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("programming error in %s: %s", e.Op, e.Reason)
}

// ValidationError reports invalid caller input, such as an empty data
// source URI. It is recovered locally with a re-prompt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
