// Package session provides a node's transport endpoint: a TCP listener that
// accepts exactly one connection (from the relayer) and bridges it to the
// node's input and output channels.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/relaymesh/backend/internal/bridge"
	"github.com/relaymesh/backend/internal/wire"
)

// Options tune the transport loops.
type Options struct {
	// ReadBufferSize is the socket read buffer size (4096 when zero).
	ReadBufferSize int
	// CompatFraming decodes each socket read in isolation instead of
	// carrying partial frames across reads.
	CompatFraming bool
	// RegisterQueueSize bounds the launch channel (32 when zero).
	RegisterQueueSize int
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	if o.RegisterQueueSize <= 0 {
		o.RegisterQueueSize = 32
	}
	return o
}

// Registrar consumes LaunchInfo records and spins up one session per node.
// Sessions live until process exit; there is no per-node teardown.
type Registrar struct {
	opts     Options
	launches chan bridge.LaunchInfo
	logger   *slog.Logger
}

// NewRegistrar starts the register listener.
func NewRegistrar(opts Options) *Registrar {
	opts = opts.withDefaults()
	r := &Registrar{
		opts:     opts,
		launches: make(chan bridge.LaunchInfo, opts.RegisterQueueSize),
		logger:   slog.Default().With("component", "session"),
	}
	go r.listen()
	return r
}

// Submit hands a node's launch info to the registrar.
func (r *Registrar) Submit(ctx context.Context, info bridge.LaunchInfo) error {
	select {
	case r.launches <- info:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new launches. Live sessions are unaffected.
func (r *Registrar) Close() {
	close(r.launches)
}

func (r *Registrar) listen() {
	for info := range r.launches {
		r.logger.Info("client received new register", "addr", info.Addr)
		go func(info bridge.LaunchInfo) {
			if err := r.serve(info); err != nil {
				r.logger.Error("client failed to listen", "addr", info.Addr, "error", err)
				return
			}
			fmt.Printf("success register in client end, addr=%s\n", info.Addr)
		}(info)
	}
}

// serve binds the node's listener, signals readiness, accepts the single
// relayer connection and starts the two transport loops.
func (r *Registrar) serve(info bridge.LaunchInfo) error {
	ln, err := net.Listen("tcp", info.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", info.Addr, err)
	}
	if info.Ready != nil {
		close(info.Ready)
	}

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept on %s: %w", info.Addr, err)
	}

	r.logger.Debug("listener has built", "addr", info.Addr)

	go r.sendLoop(info.Name, info.Input, conn)
	go r.recvLoop(info.Name, info.Output, conn)
	return nil
}

// sendLoop drains the node's input channel and writes framed messages to the
// socket. Write and encode errors are logged without terminating the loop;
// channel close terminates it.
func (r *Registrar) sendLoop(who string, input <-chan bridge.Message, conn net.Conn) {
	for msg := range input {
		data, err := wire.Encode(&msg)
		if err != nil {
			r.logger.Error("sender serialize message error", "who", who, "error", err)
			continue
		}
		r.logger.Debug("sender got message", "who", who, "frame", string(data))
		if _, err := conn.Write(data); err != nil {
			r.logger.Error("sender error writing to stream", "who", who, "error", err)
		}
	}
}

// recvLoop reads framed messages from the socket and pushes them to the
// node's output channel. Read errors (including EOF) terminate the loop.
func (r *Registrar) recvLoop(who string, output chan<- bridge.Message, conn net.Conn) {
	buf := make([]byte, r.opts.ReadBufferSize)
	dec := wire.NewDecoder(r.opts.CompatFraming)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		r.logger.Debug("receiver got bytes", "who", who, "size", n)
		dec.DecodeMessages(buf[:n], func(fragment []byte) error {
			var msg bridge.Message
			if err := wire.Unmarshal(fragment, &msg); err != nil {
				return err
			}
			output <- msg
			return nil
		})
	}
}
