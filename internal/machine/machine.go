// Package machine owns the registered nodes (identity, keys, input handles),
// orchestrates registration and signs user-initiated messages.
package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaymesh/backend/internal/bridge"
	"github.com/relaymesh/backend/internal/config"
	"github.com/relaymesh/backend/internal/hooks"
	"github.com/relaymesh/backend/internal/keys"
	"github.com/relaymesh/backend/internal/relayer"
	"github.com/relaymesh/backend/internal/session"
)

// ErrDuplicateClient is returned when a node name is already registered.
// The historical spelling is part of the CLI contract.
var ErrDuplicateClient = errors.New("client already exitst")

// Node is one registered identity and its channel bookkeeping.
type Node struct {
	name    string
	group   string
	addr    string
	keypair *keys.Keypair
	input   chan bridge.Message
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// Group returns the node's group label.
func (n *Node) Group() string { return n.group }

// Addr returns the listen address of the node's session.
func (n *Node) Addr() string { return n.addr }

// SourceID returns the node's routing key: name + group.
func (n *Node) SourceID() string { return n.name + n.group }

// PublicKeyPEM returns the node's public key in PKIX PEM form.
func (n *Node) PublicKeyPEM() (string, error) {
	return keys.EncodePublicKeyPEM(n.keypair.Public)
}

// Machine is the user-facing API of the relay.
type Machine struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *hooks.Registry
	pool       *hooks.Pool
	registrar  *session.Registrar
	dispatcher *hooks.Dispatcher

	mu    sync.Mutex
	nodes map[string]*Node
}

// New wires the machine's session registrar, post-receive dispatcher and
// shared worker pool from cfg.
func New(cfg *config.Config, registry *hooks.Registry) *Machine {
	pool := hooks.NewPool(cfg.Hooks.WorkerCount)
	return &Machine{
		cfg:      cfg,
		logger:   slog.Default().With("component", "machine"),
		registry: registry,
		pool:     pool,
		registrar: session.NewRegistrar(session.Options{
			ReadBufferSize:    cfg.Relay.ReadBufferSize,
			CompatFraming:     cfg.Relay.CompatFraming,
			RegisterQueueSize: cfg.Relay.RegisterQueueSize,
		}),
		dispatcher: hooks.NewDispatcher(registry, pool, cfg.Relay.TaskQueueSize),
		nodes:      make(map[string]*Node),
	}
}

// Pool exposes the shared worker pool (admin surface).
func (m *Machine) Pool() *hooks.Pool { return m.pool }

// RegisterNode creates a fresh identity for (name, group), starts its node
// session and post-receive task, then registers it with the relayer. The
// node is stored only after all three registrations succeed.
func (m *Machine) RegisterNode(ctx context.Context, rel *relayer.Relayer, name, group, addr string) error {
	m.mu.Lock()
	_, exists := m.nodes[name]
	m.mu.Unlock()
	if exists {
		return ErrDuplicateClient
	}

	kp, err := keys.Generate()
	if err != nil {
		return err
	}

	input := make(chan bridge.Message, m.cfg.Relay.InputQueueSize)
	output := make(chan bridge.Message, m.cfg.Relay.InputQueueSize)
	ready := make(chan struct{})

	launch := bridge.LaunchInfo{
		Name:   name,
		Addr:   addr,
		Input:  input,
		Output: output,
		Ready:  ready,
	}
	if err := m.registrar.Submit(ctx, launch); err != nil {
		return fmt.Errorf("client register: %w", err)
	}
	if err := m.dispatcher.Submit(ctx, hooks.Task{Output: output}); err != nil {
		return fmt.Errorf("task register: %w", err)
	}

	// The relayer dials the node, so the node's listener must be bound
	// first. The session closes ready once bind succeeds; the fallback timer
	// covers a listener that never comes up. Registration then goes ahead and
	// the relayer's asynchronous dial fails and is logged on its side, unless
	// another listener already holds addr.
	fallback := time.Duration(m.cfg.Relay.HandshakeFallbackSleepSec) * time.Second
	select {
	case <-ready:
	case <-time.After(fallback):
		m.logger.Warn("node listener not ready before dial", "name", name, "addr", addr)
	case <-ctx.Done():
		return ctx.Err()
	}

	info := bridge.RegisterInfo{Name: name, Group: group, Addr: addr}
	if err := rel.RegisterNode(ctx, info, kp.Public); err != nil {
		return fmt.Errorf("relayer register: %w", err)
	}

	node := &Node{
		name:    name,
		group:   group,
		addr:    addr,
		keypair: kp,
		input:   input,
	}
	m.mu.Lock()
	m.nodes[name] = node
	m.mu.Unlock()
	return nil
}

// SendMessage signs and enqueues a message from one registered node to
// another. The pre-send hook for the sender's group runs synchronously
// before the message is enqueued.
func (m *Machine) SendMessage(ctx context.Context, from, to, content string) error {
	m.mu.Lock()
	sender, ok := m.nodes[from]
	if !ok {
		m.mu.Unlock()
		return errors.New("sender do not exist or init!")
	}
	recipient, ok := m.nodes[to]
	if !ok {
		m.mu.Unlock()
		return errors.New("receiver do not exist or init!")
	}
	m.mu.Unlock()

	msg := bridge.Message{
		FromName:  sender.name,
		FromGroup: sender.group,
		ToName:    recipient.name,
		ToGroup:   recipient.group,
		Payload:   content,
	}
	sig, err := keys.Sign(msg.SourceID(), sender.keypair.Private)
	if err != nil {
		return err
	}
	msg.Sig = sig

	if hook := m.registry.PreSend(sender.group); hook != nil {
		hook(&msg)
	}

	select {
	case sender.input <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nodes returns a snapshot of the registered nodes.
func (m *Machine) Nodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out
}

// Shutdown closes every node's input channel, the register endpoints and the
// worker pool. Transport loops end as their channels and sockets close.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	for _, n := range m.nodes {
		close(n.input)
	}
	m.nodes = make(map[string]*Node)
	m.mu.Unlock()

	m.registrar.Close()
	m.dispatcher.Close()
	m.pool.Shutdown()
}
