package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const Version = "2.0"

// ErrEmptyBody is returned by ParseBody when there is nothing to dispatch.
var ErrEmptyBody = errors.New("empty request body")

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return isNullID(r.ID)
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type ErrorCode int

const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
	// ServerError is the generic implementation-defined server error.
	ServerError ErrorCode = -32000
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string, data any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewResult builds a success response. A nil result is sent as an empty object
// so the envelope always carries exactly one of result or error.
func NewResult(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Result:  result,
	}
}

// NewErrorResponse builds an error response echoing id.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	if err == nil {
		err = NewError(InternalError, "Internal error", nil)
	}
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Error:   err,
	}
}

// ParseBody splits a transport body into raw request messages. A body starting
// with '[' is a batch; anything else is a single message. Bodies that are not
// valid JSON are rejected, as are empty bodies and the blank values null,
// false, 0 and "".
func ParseBody(data []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, ErrEmptyBody
	}
	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, false, NewError(ParseError, "Parse error", nil)
	}
	if isBlank(probe) {
		return nil, false, ErrEmptyBody
	}

	if trimmed[0] == '[' {
		var msgs []json.RawMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, true, NewError(ParseError, "Parse error", nil)
		}
		return msgs, true, nil
	}

	return []json.RawMessage{json.RawMessage(trimmed)}, false, nil
}

// DecodeRequest decodes one raw message into a Request. On failure the returned
// id is whatever could be salvaged from the message so the error response can
// still echo it.
func DecodeRequest(raw json.RawMessage) (Request, json.RawMessage, *Error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		var partial struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(raw, &partial)
		return Request{}, partial.ID, NewError(InvalidRequest, "Invalid Request", nil)
	}
	return req, req.ID, nil
}

func isBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	}
	return false
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func isNullID(id json.RawMessage) bool {
	trimmed := bytes.TrimSpace(id)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
