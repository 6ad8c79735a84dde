package protocol

import (
	"fmt"
	"strconv"
)

const maxQuotedLine = 256

// DecodeError reports a line that is not a well-formed message.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	line := e.Line
	if len(line) > maxQuotedLine {
		line = line[:maxQuotedLine] + "..."
	}
	return fmt.Sprintf("decode %q: %v", line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError reports a well-formed message that the node cannot
// accept in its current context, such as a reply routed through the request
// path or a topology that omits this node.
type ProtocolViolationError struct {
	Msg    Message
	Reason string
}

// NewProtocolViolation builds a ProtocolViolationError for msg.
func NewProtocolViolation(msg Message, format string, args ...any) *ProtocolViolationError {
	return &ProtocolViolationError{Msg: msg, Reason: fmt.Sprintf(format, args...)}
}

func (e *ProtocolViolationError) Error() string {
	msgID := "none"
	if e.Msg.Body.MsgID != nil {
		msgID = strconv.FormatUint(*e.Msg.Body.MsgID, 10)
	}
	return fmt.Sprintf("protocol violation: %s (type=%q src=%q dest=%q msg_id=%s)",
		e.Reason, e.Msg.Type(), e.Msg.Src, e.Msg.Dest, msgID)
}

// TransportError reports a failure to read from or write to the stream.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
