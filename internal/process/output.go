package process

import (
	"bytes"
	"strings"
	"sync"
)

// outputBuffer collects the merged stdout/stderr of a child process.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the output decoded as text. Invalid UTF-8 sequences are
// replaced rather than passed through.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(b.buf.String(), "\uFFFD")
}
