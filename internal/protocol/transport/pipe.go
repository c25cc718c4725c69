package transport

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/lnpnet/internal/protocol"
	"github.com/danmuck/lnpnet/internal/protocol/frame"
)

// pipeBuffer is the number of frames each direction holds before SendRaw
// blocks.
const pipeBuffer = 64

// PipeConn is one end of an in-memory duplex created by Pipe.
type PipeConn struct {
	name string
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once

	readTimeout time.Duration
}

// Pipe returns two connected in-memory ends. Closing either end closes
// both.
func Pipe() (*PipeConn, *PipeConn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &PipeConn{name: "pipe:b", in: ba, out: ab, done: done, once: once}
	b := &PipeConn{name: "pipe:a", in: ab, out: ba, done: done, once: once}
	return a, b
}

// SetReadTimeout bounds each RecvRaw; zero waits forever.
func (p *PipeConn) SetReadTimeout(d time.Duration) {
	p.readTimeout = d
}

func (p *PipeConn) SendRaw(b []byte) error {
	if len(b) > protocol.MaxMsgLen {
		return fmt.Errorf("%w: %d", frame.ErrFrameTooLarge, len(b))
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- bytes.Clone(b):
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *PipeConn) RecvRaw() ([]byte, error) {
	var timeout <-chan time.Time
	if p.readTimeout > 0 {
		t := time.NewTimer(p.readTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case b := <-p.in:
		return b, nil
	case <-p.done:
		return nil, ErrClosed
	case <-timeout:
		return nil, fmt.Errorf("%w: pipe read after %s", ErrTimeout, p.readTimeout)
	}
}

func (p *PipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (*PipeConn) Kind() Kind { return KindPipe }

func (p *PipeConn) RemoteAddr() string { return p.name }

func (*PipeConn) duplex() {}
