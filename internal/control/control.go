// Package control owns the running flag of a capture session and the
// producers that may clear it.
package control

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

type Reason string

const (
	ReasonInterrupt Reason = "interrupt"
	ReasonInput     Reason = "stdin"
	ReasonControl   Reason = "control"
	ReasonError     Reason = "error"
)

// Controller is a one-way running flag. Once stopped it stays stopped, and
// the reason reported is the one passed by the first Stop.
type Controller struct {
	running atomic.Bool

	mu     sync.Mutex
	reason Reason
	done   chan struct{}
}

func New() *Controller {
	c := &Controller{done: make(chan struct{})}
	c.running.Store(true)
	return c
}

func (c *Controller) Running() bool {
	return c.running.Load()
}

// Stop clears the running flag. It reports whether this call did so.
func (c *Controller) Stop(reason Reason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return false
	}
	c.reason = reason
	c.running.Store(false)
	close(c.done)
	return true
}

func (c *Controller) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed by the first Stop.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// WatchContext stops the controller when ctx is cancelled.
func (c *Controller) WatchContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.Stop(ReasonInterrupt)
		case <-c.done:
		}
	}()
}

// WatchInput stops the controller once any byte arrives on r. End of input
// without data leaves the session running.
func (c *Controller) WatchInput(r io.Reader) {
	go func() {
		var b [1]byte
		for c.Running() {
			n, err := r.Read(b[:])
			if n > 0 {
				c.Stop(ReasonInput)
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("control: stdin watch ended: %v", err)
				}
				return
			}
		}
	}()
}
