// Package framebroker is an in-process broker speaking the frame:// transport.
// Tests script its replies per request.
package framebroker

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/brokerbot/internal/protocol"
	"github.com/danmuck/brokerbot/internal/protocol/frame"
)

// Handler returns the raw reply bytes for one request. Returning nil closes
// the client connection without replying.
type Handler func(req protocol.Request) []byte

type Broker struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	requests []protocol.Request
	accepted int
	open     map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Start listens on a loopback port and stops when the test ends.
func Start(t *testing.T, handler Handler) *Broker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("framebroker listen: %v", err)
	}
	b := &Broker{ln: ln, handler: handler, open: make(map[net.Conn]struct{})}
	b.wg.Add(1)
	go b.accept()
	t.Cleanup(b.Close)
	return b
}

// Endpoint is the frame:// endpoint clients dial.
func (b *Broker) Endpoint() string {
	return "frame://" + b.ln.Addr().String()
}

func (b *Broker) Requests() []protocol.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Connections counts accepted client connections.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepted
}

func (b *Broker) Close() {
	_ = b.ln.Close()
	b.mu.Lock()
	b.closed = true
	for conn := range b.open {
		_ = conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broker) accept() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.accepted++
		b.open[conn] = struct{}{}
		b.mu.Unlock()
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *Broker) serve(conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.open, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()
	reader := bufio.NewReader(conn)
	for {
		fr, err := frame.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(fr.Payload)
		if err != nil && !errors.Is(err, protocol.ErrDecode) {
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		reply := b.handler(req)
		if reply == nil {
			return
		}
		out := frame.Frame{
			Header:  frame.Header{MessageID: fr.Header.MessageID, Flags: frame.FlagIsReply},
			Payload: reply,
		}
		if err := frame.WriteFrame(conn, out, frame.DefaultLimits()); err != nil {
			return
		}
	}
}

// MustReply encodes a reply envelope. It panics on encode failure so it can
// be called from handlers running on the broker goroutine.
func MustReply(service protocol.Service, data map[string]any) []byte {
	raw, err := protocol.EncodeReply(protocol.Reply{Service: service, Data: data})
	if err != nil {
		panic(err)
	}
	return raw
}
