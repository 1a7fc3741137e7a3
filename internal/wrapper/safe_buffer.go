// Completion: 100% - Module complete
package wrapper

import (
	"bytes"
	"fmt"

	"github.com/xyproto/elf2efi/internal/logging"
)

// SafeBuffer wraps bytes.Buffer with explicit lifecycle management. Once an
// image is committed it can be read but no longer written to.
type SafeBuffer struct {
	buf       *bytes.Buffer
	committed bool   // True once Commit() is called
	name      string // For debugging
}

// NewSafeBuffer creates a new SafeBuffer with a name for debugging
func NewSafeBuffer(name string) *SafeBuffer {
	return &SafeBuffer{
		buf:  &bytes.Buffer{},
		name: name,
	}
}

// Write appends bytes to the buffer. Panics if buffer is committed.
func (sb *SafeBuffer) Write(p []byte) (n int, err error) {
	if sb.committed {
		panic(fmt.Sprintf("SafeBuffer(%s): Cannot write to committed buffer", sb.name))
	}
	return sb.buf.Write(p)
}

// Grow reserves room for n more bytes
func (sb *SafeBuffer) Grow(n int) {
	sb.buf.Grow(n)
}

// Bytes returns the buffer contents. Safe to call after commit.
func (sb *SafeBuffer) Bytes() []byte {
	return sb.buf.Bytes()
}

// Len returns the buffer length
func (sb *SafeBuffer) Len() int {
	return sb.buf.Len()
}

// Commit marks the buffer as complete. After this, no more writes are allowed.
func (sb *SafeBuffer) Commit() {
	logging.Debugf("SafeBuffer(%s): Committed with %d bytes", sb.name, sb.buf.Len())
	sb.committed = true
}

// Reset clears the buffer and uncommits it. Safe to call anytime.
func (sb *SafeBuffer) Reset() {
	if sb.committed {
		logging.Debugf("SafeBuffer(%s): Reset called on committed buffer, clearing %d bytes", sb.name, sb.buf.Len())
	}
	sb.buf.Reset()
	sb.committed = false
}

// IsCommitted returns true if the buffer has been committed
func (sb *SafeBuffer) IsCommitted() bool {
	return sb.committed
}
