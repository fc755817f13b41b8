// Package relayer implements the central switchboard: it dials every
// registered node, authenticates inbound messages by RSA signature, and
// forwards them to the target's outbound queue.
//
// Each node's outbound queue is a single-consumer bounded channel. When it is
// full, transfer blocks the sending node's inbound loop until the queue
// drains; messages are never dropped for lack of queue space.
package relayer

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/relaymesh/backend/internal/bridge"
	"github.com/relaymesh/backend/internal/events"
	"github.com/relaymesh/backend/internal/keys"
	"github.com/relaymesh/backend/internal/metrics"
	"github.com/relaymesh/backend/internal/wire"
)

// ErrNotReady is returned by RegisterNode before Launch.
var ErrNotReady = errors.New("relayer not ready")

// Options tune the relayer's transport and queues.
type Options struct {
	// ReadBufferSize is the socket read buffer size (4096 when zero).
	ReadBufferSize int
	// OutboundQueueSize bounds each node's outbound queue (16 when zero).
	OutboundQueueSize int
	// RegisterQueueSize bounds the register channel (32 when zero).
	RegisterQueueSize int
	// CompatFraming decodes each socket read in isolation.
	CompatFraming bool
	// Metrics, when set, counts relayed, bounced and dropped messages.
	Metrics *metrics.Metrics
	// Bus, when set, receives relay lifecycle events.
	Bus *events.Bus
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	if o.OutboundQueueSize <= 0 {
		o.OutboundQueueSize = 16
	}
	if o.RegisterQueueSize <= 0 {
		o.RegisterQueueSize = 32
	}
	return o
}

// Relayer owns the route table and the public-key table. It starts in the
// New state; Launch allocates the tables and the register endpoint, after
// which IsReady reports true.
//
// Lock discipline: routeMu before keyMu, always. Neither lock is held across
// a channel send or any socket I/O; transfer resolves the destination queue
// under the locks and sends after releasing them.
type Relayer struct {
	opts   Options
	logger *slog.Logger

	routeMu sync.Mutex
	routes  map[string]chan bridge.Message

	keyMu   sync.Mutex
	pubKeys map[string]*rsa.PublicKey

	register chan bridge.RegisterInfo
}

// New returns a relayer in the New state: no tables, no register endpoint.
func New(opts Options) *Relayer {
	return &Relayer{
		opts:   opts.withDefaults(),
		logger: slog.Default().With("component", "relayer"),
	}
}

// Launch allocates the route and public-key tables and starts the register
// listener. Calling Launch twice is a no-op.
func (r *Relayer) Launch() {
	if r.IsReady() {
		return
	}
	r.routeMu.Lock()
	r.routes = make(map[string]chan bridge.Message)
	r.routeMu.Unlock()

	r.keyMu.Lock()
	r.pubKeys = make(map[string]*rsa.PublicKey)
	r.keyMu.Unlock()

	r.register = make(chan bridge.RegisterInfo, r.opts.RegisterQueueSize)
	go r.listenRegister()
}

// IsReady reports whether the tables and the register endpoint are live.
func (r *Relayer) IsReady() bool {
	r.routeMu.Lock()
	routesLive := r.routes != nil
	r.routeMu.Unlock()

	r.keyMu.Lock()
	keysLive := r.pubKeys != nil
	r.keyMu.Unlock()

	return routesLive && keysLive && r.register != nil
}

// RegisterNode files the node's public key under its source id and enqueues
// the registration for the connect loop.
func (r *Relayer) RegisterNode(ctx context.Context, info bridge.RegisterInfo, pub *rsa.PublicKey) error {
	if !r.IsReady() {
		return ErrNotReady
	}

	r.keyMu.Lock()
	r.pubKeys[info.SourceID()] = pub
	r.keyMu.Unlock()

	select {
	case r.register <- info:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Shutdown closes the register endpoint. Live sessions end when their
// sockets or queues close.
func (r *Relayer) Shutdown() {
	if r.register != nil {
		close(r.register)
	}
}

// RouteCount returns the number of live route entries.
func (r *Relayer) RouteCount() int {
	r.routeMu.Lock()
	defer r.routeMu.Unlock()
	return len(r.routes)
}

func (r *Relayer) listenRegister() {
	for info := range r.register {
		r.logger.Info("relayer received new register", "addr", info.Addr)
		go func(info bridge.RegisterInfo) {
			if err := r.connect(info); err != nil {
				r.logger.Error("relayer failed to connect", "addr", info.Addr, "error", err)
				return
			}
			fmt.Printf("success register in relayer end, addr=%s\n", info.Addr)
		}(info)
	}
}

// connect dials the node, installs its outbound queue in the route table and
// starts the two per-node loops.
func (r *Relayer) connect(info bridge.RegisterInfo) error {
	conn, err := net.Dial("tcp", info.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", info.Addr, err)
	}

	r.logger.Debug("connected", "addr", info.Addr)

	out := make(chan bridge.Message, r.opts.OutboundQueueSize)
	r.routeMu.Lock()
	r.routes[info.SourceID()] = out
	r.routeMu.Unlock()

	if m := r.opts.Metrics; m != nil {
		m.NodesRegistered.Inc()
	}
	r.opts.Bus.Emit(events.TypeNodeRegistered, "relayer", info.SourceID(), map[string]interface{}{
		"name": info.Name, "group": info.Group, "addr": info.Addr,
	})

	go r.sendLoop(out, conn)
	go r.recvLoop(conn)
	return nil
}

// sendLoop drains a node's outbound queue and writes framed messages to its
// socket.
func (r *Relayer) sendLoop(out <-chan bridge.Message, conn net.Conn) {
	for msg := range out {
		data, err := wire.Encode(&msg)
		if err != nil {
			r.logger.Error("relayer sender serialize message error", "error", err)
			continue
		}
		if _, err := conn.Write(data); err != nil {
			r.logger.Error("relayer sender error writing to stream", "error", err)
		}
	}
}

// recvLoop reads framed messages from one node's socket and runs transfer on
// each. Per-message failures are logged; the loop only ends when the socket
// does.
func (r *Relayer) recvLoop(conn net.Conn) {
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
		dec.DecodeMessages(buf[:n], func(fragment []byte) error {
			var msg bridge.Message
			if err := wire.Unmarshal(fragment, &msg); err != nil {
				return err
			}
			if err := r.transfer(&msg); err != nil {
				r.logger.Error("relayer transfer failed",
					"from", msg.SourceID(), "to", msg.TargetID(), "error", err)
			}
			return nil
		})
	}
}

// transfer authenticates one message and resolves its destination queue.
// The sender's key and the destination are resolved in a single critical
// section (route lock, then key lock) so the message sees one consistent
// snapshot of both tables; the channel send happens after both locks are
// released.
func (r *Relayer) transfer(msg *bridge.Message) error {
	target := msg.TargetID()
	source := msg.SourceID()

	dest, err := r.resolve(msg, source, target)
	if err != nil {
		return err
	}

	dest <- *msg

	if m := r.opts.Metrics; m != nil {
		if msg.ErrorMsg != "" {
			m.MessagesBounced.Inc()
		} else {
			m.MessagesRelayed.Inc()
		}
	}
	if msg.ErrorMsg != "" {
		r.opts.Bus.Emit(events.TypeMessageBounced, "relayer", source, map[string]interface{}{
			"target": target, "error": msg.ErrorMsg,
		})
	} else {
		r.opts.Bus.Emit(events.TypeMessageRelayed, "relayer", target, map[string]interface{}{
			"source": source,
		})
	}
	return nil
}

func (r *Relayer) resolve(msg *bridge.Message, source, target string) (chan bridge.Message, error) {
	r.routeMu.Lock()
	defer r.routeMu.Unlock()

	r.keyMu.Lock()
	pub, ok := r.pubKeys[source]
	r.keyMu.Unlock()
	if !ok {
		r.drop(metrics.DropMissKey, source, target)
		return nil, fmt.Errorf("miss public key for %s", source)
	}
	if err := keys.Verify(source, pub, msg.Sig); err != nil {
		r.drop(metrics.DropVerifyFailed, source, target)
		if m := r.opts.Metrics; m != nil {
			m.VerifyFailures.Inc()
		}
		r.opts.Bus.Emit(events.TypeVerifyFailed, "relayer", source, nil)
		return nil, err
	}

	if dest, ok := r.routes[target]; ok {
		return dest, nil
	}
	if dest, ok := r.routes[source]; ok {
		msg.SetError("can't find target")
		return dest, nil
	}
	r.drop(metrics.DropNoRoute, source, target)
	return nil, fmt.Errorf("relayer can't find both source and target, from=%s to=%s", source, target)
}

func (r *Relayer) drop(reason, source, target string) {
	if m := r.opts.Metrics; m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
	r.opts.Bus.Emit(events.TypeMessageDropped, "relayer", source, map[string]interface{}{
		"reason": reason, "target": target,
	})
}
