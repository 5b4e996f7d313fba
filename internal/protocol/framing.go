package protocol

import (
	"bytes"
	"errors"
)

// MaxLineBytes bounds a single protocol line. A peer that sends more without a newline is
// misbehaving and its pending bytes are discarded.
const MaxLineBytes = 64 * 1024

var ErrLineTooLong = errors.New("protocol line exceeds maximum length")

// LineBuffer accumulates raw transport reads and yields complete newline-terminated lines.
// It is owned by a single session and not safe for concurrent use.
type LineBuffer struct {
	buf []byte
	max int
}

func NewLineBuffer(limit int) *LineBuffer {
	if limit <= 0 {
		limit = MaxLineBytes
	}
	return &LineBuffer{max: limit}
}

// Write appends a chunk. If the pending partial line grows past the limit the buffer is
// cleared and ErrLineTooLong is returned.
func (b *LineBuffer) Write(p []byte) error {
	b.buf = append(b.buf, p...)
	tail := b.buf
	if i := bytes.LastIndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	if len(tail) > b.max {
		b.Reset()
		return ErrLineTooLong
	}
	return nil
}

// Next pops the next complete, non-blank line without its terminator. The returned slice is a
// copy and remains valid after further writes.
func (b *LineBuffer) Next() ([]byte, bool) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return nil, false
		}
		line := bytes.TrimSpace(b.buf[:i])
		b.buf = b.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), true
	}
}

// Reset drops everything buffered, including complete lines not yet consumed.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}

// Pending reports the number of buffered bytes.
func (b *LineBuffer) Pending() int {
	return len(b.buf)
}
