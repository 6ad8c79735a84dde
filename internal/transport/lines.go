package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"gossipnode/internal/protocol"
)

// Reader decodes one message per input line.
// It is not safe for concurrent use.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next blocks until a full line is available and decodes it.
// It returns io.EOF once the stream is exhausted, a *protocol.DecodeError for
// a malformed line, and a *protocol.TransportError if the stream fails.
// Blank lines are skipped.
func (r *Reader) Next() (protocol.Message, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return protocol.Message{}, &protocol.TransportError{Op: "read", Err: err}
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			return protocol.Decode(trimmed)
		}
		if err != nil {
			return protocol.Message{}, io.EOF
		}
	}
}

// Writer encodes messages one per line and flushes after each.
// It is not safe for concurrent use; the control loop is its only caller.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Send writes msg as a single line.
func (w *Writer) Send(msg protocol.Message) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(line); err != nil {
		return &protocol.TransportError{Op: "write", Err: err}
	}
	if err := w.w.Flush(); err != nil {
		return &protocol.TransportError{Op: "write", Err: err}
	}
	return nil
}
