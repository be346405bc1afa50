package transport

import (
	"github.com/fxamacker/cbor/v2"
)

// Request is the RPC envelope sent for every backend call: {command, args, kwargs}. CBOR's self-describing major types let
// Args/Kwargs round-trip as arbitrary values without a schema registry.
type Request struct {
	Command string                 `cbor:"command"`
	Args    []any                  `cbor:"args"`
	Kwargs  map[string]any         `cbor:"kwargs"`
}

// Response is the RPC envelope returned for every backend call.
type Response struct {
	Status    string `cbor:"status"` // "success" or "error"
	Data      any    `cbor:"data,omitempty"`
	ErrorType string `cbor:"error_type,omitempty"`
	Message   string `cbor:"message,omitempty"`
}

// OK reports whether the response indicates success.
func (r Response) OK() bool {
	return r.Status == "success"
}

// Success builds a successful Response wrapping data.
func Success(data any) Response {
	return Response{Status: "success", Data: data}
}

// Failure builds an error Response.
func Failure(errorType, message string) Response {
	return Response{Status: "error", ErrorType: errorType, Message: message}
}

// EncodeRequest serialises req to the canonical CBOR wire form.
func EncodeRequest(req Request) ([]byte, error) {
	return cbor.Marshal(req)
}

// DecodeRequest parses a CBOR-encoded Request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	err := cbor.Unmarshal(data, &req)
	return req, err
}

// EncodeResponse serialises resp to the canonical CBOR wire form.
func EncodeResponse(resp Response) ([]byte, error) {
	return cbor.Marshal(resp)
}

// DecodeResponse parses a CBOR-encoded Response.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	err := cbor.Unmarshal(data, &resp)
	return resp, err
}
