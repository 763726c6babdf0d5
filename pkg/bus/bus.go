// Package bus provides the remote-call client used by gateway handlers to
// talk to message-bus-backed services.
package bus

import (
	"context"
	"fmt"
)

// Caller is the remote-call primitive handlers invoke: a method name plus
// positional parameters, answered by a result or an error.
type Caller interface {
	Request(ctx context.Context, method string, params []interface{}) (interface{}, error)
}

// RemoteProcedureCallError is a structured error answered by a remote
// service.
type RemoteProcedureCallError struct {
	Code    int
	Message string
	Data    interface{}
}

// Error implements the error interface.
func (e *RemoteProcedureCallError) Error() string {
	return fmt.Sprintf("remote call failed with code %d: %s", e.Code, e.Message)
}
