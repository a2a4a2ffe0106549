// Package control implements the token protocol used to coordinate the
// owner, the job runner and the monitor process. Each channel is a simple
// FIFO token stream with one writer and one reader per direction.
package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// TokenStop asks the monitor to finish the current round and exit.
	TokenStop = "stop"
	// TokenFinished is sent by the job runner when the supervised call
	// completed; the supervisor answers it with TokenStop.
	TokenFinished = "Finished"
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("control connection closed")

// Conn is one endpoint of a duplex control channel. Poll never blocks;
// absence of a token means "continue". Close is idempotent.
type Conn interface {
	Send(token string) error
	Poll() (string, bool)
	Close() error
}

// tokenBufferSize bounds pending tokens per direction. The protocol only
// ever carries a handful of tokens, so a small buffer is plenty.
const tokenBufferSize = 16

// PipeConn carries tokens as newline-delimited text over a byte stream
// pair, typically a child process's stdin and stdout.
type PipeConn struct {
	w      io.Writer
	wmu    sync.Mutex
	in     chan string
	closed atomic.Bool
	once   sync.Once
}

// NewPipeConn wraps a reader/writer pair as a control endpoint. A
// background goroutine drains r into an internal buffer until r is
// exhausted or the connection is closed.
func NewPipeConn(r io.Reader, w io.Writer) *PipeConn {
	c := &PipeConn{
		w:  w,
		in: make(chan string, tokenBufferSize),
	}
	go c.readLoop(r)
	return c
}

func (c *PipeConn) readLoop(r io.Reader) {
	defer close(c.in)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c.closed.Load() {
			return
		}
		select {
		case c.in <- scanner.Text():
		default:
			// Reader is not draining; drop rather than block the pipe.
		}
	}
}

func (c *PipeConn) Send(token string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := fmt.Fprintln(c.w, token)
	return err
}

func (c *PipeConn) Poll() (string, bool) {
	select {
	case token, ok := <-c.in:
		if !ok {
			return "", false
		}
		return token, true
	default:
		return "", false
	}
}

func (c *PipeConn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		if wc, ok := c.w.(io.Closer); ok {
			err = wc.Close()
		}
	})
	return err
}

// MemConn is an in-process control endpoint, used for the job-runner
// channel and in tests.
type MemConn struct {
	in     chan string
	out    chan string
	closed atomic.Bool
}

// Pair returns two connected in-memory endpoints.
func Pair() (*MemConn, *MemConn) {
	ab := make(chan string, tokenBufferSize)
	ba := make(chan string, tokenBufferSize)
	return &MemConn{in: ab, out: ba}, &MemConn{in: ba, out: ab}
}

func (c *MemConn) Send(token string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.out <- token:
		return nil
	default:
		return fmt.Errorf("control channel full, dropping %q", token)
	}
}

func (c *MemConn) Poll() (string, bool) {
	select {
	case token := <-c.in:
		return token, true
	default:
		return "", false
	}
}

func (c *MemConn) Close() error {
	c.closed.Store(true)
	return nil
}
