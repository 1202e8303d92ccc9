// Package console reads interactive terminal input without outliving the caller's context.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// LineReader reads newline-terminated lines from one input.
//
// A read abandoned by cancellation stays in flight and is handed to the next
// ReadLine call, so the underlying reader is never read concurrently.
type LineReader struct {
	mu      sync.Mutex
	in      *bufio.Reader
	pending chan lineResult
}

// NewLineReader wraps in.
func NewLineReader(in io.Reader) *LineReader {
	return &LineReader{in: bufio.NewReader(in)}
}

// ReadLine returns the next line including its terminator. A final line
// without a newline is returned with a nil error; io.EOF is reported only
// when nothing was left to read.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if r == nil {
		return "", fmt.Errorf("read line: nil reader")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("read line: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		r.pending = make(chan lineResult, 1)
		go func(result chan<- lineResult) {
			line, err := r.in.ReadString('\n')
			result <- lineResult{line: line, err: err}
		}(r.pending)
	}

	select {
	case result := <-r.pending:
		r.pending = nil
		if result.err != nil && errors.Is(result.err, io.EOF) && result.line != "" {
			return result.line, nil
		}
		return result.line, result.err
	case <-ctx.Done():
		return "", fmt.Errorf("read line: %w", ctx.Err())
	}
}
