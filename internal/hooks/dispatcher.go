package hooks

import (
	"context"
	"fmt"
	"log"

	"github.com/relaymesh/backend/internal/bridge"
)

// Task carries one node's output channel to the receive-side dispatcher.
type Task struct {
	Output <-chan bridge.Message
}

// Dispatcher drains each registered node's output channel, prints the
// delivery line, and offloads the group's post-receive hook to the shared
// worker pool.
type Dispatcher struct {
	registry *Registry
	pool     *Pool
	tasks    chan Task
	logger   *log.Logger
}

// NewDispatcher starts the dispatcher's register listener.
func NewDispatcher(registry *Registry, pool *Pool, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 8
	}
	d := &Dispatcher{
		registry: registry,
		pool:     pool,
		tasks:    make(chan Task, queueSize),
		logger:   log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags),
	}
	go d.listen()
	return d
}

// Submit registers a node's output channel. Blocks when the task queue is
// full.
func (d *Dispatcher) Submit(ctx context.Context, t Task) error {
	select {
	case d.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new tasks. Running drain loops end when their node
// output channels close.
func (d *Dispatcher) Close() {
	close(d.tasks)
}

func (d *Dispatcher) listen() {
	for t := range d.tasks {
		go d.drain(t)
	}
}

func (d *Dispatcher) drain(t Task) {
	for msg := range t.Output {
		fmt.Printf("%s: receive msg from %s: %s\n", msg.ToName, msg.FromName, msg.Payload)
		if msg.ErrorMsg != "" {
			fmt.Printf("%s: relay error: %s\n", msg.ToName, msg.ErrorMsg)
		}

		hook := d.registry.PostReceive(msg.ToGroup)
		if hook == nil {
			fmt.Println("no special task for the group")
			continue
		}
		m := msg
		d.pool.Submit(func() { hook(&m) })
	}
}
