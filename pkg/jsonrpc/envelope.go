// Package jsonrpc defines the call envelope exchanged between the gateway
// dispatcher, its handlers, and bus services.
package jsonrpc

import (
	"fmt"

	"github.com/google/uuid"
)

// Error codes carried in a ResponseError. The JSON-RPC reserved codes
// cover request-shape problems; NotFound and Conflict extend the range
// for storage outcomes.
const (
	ParseError        = -32700
	InvalidRequest    = -32600
	MethodNotFound    = -32601
	InvalidParameters = -32602
	InternalError     = -32603
	NotFound          = -32604
	Conflict          = -32605
)

// Message is the envelope handed to a handler for one inbound call.
// For HTTP-originated calls Method carries the transport verb (GET, PUT,
// ...), not a domain action name.
type Message struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

// Request is the positional-parameter envelope sent to bus services.
type Request struct {
	ID     string        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is the envelope a handler or bus service answers with. Exactly
// one of Result and Error is populated; a response carrying neither is
// malformed.
type Response struct {
	ID     string         `json:"id"`
	Result interface{}    `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError holds structured error information.
type ResponseError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewID returns a fresh correlation id for one request. IDs are random
// 128-bit values; collisions over a process lifetime are negligible.
func NewID() string {
	return uuid.NewString()
}

// NewResponse creates a success response echoing the request id.
func NewResponse(id string, result interface{}) *Response {
	return &Response{ID: id, Result: result}
}

// NewErrorResponse creates an error response echoing the request id.
func NewErrorResponse(id string, code int, message string) *Response {
	return &Response{
		ID: id,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	}
}
