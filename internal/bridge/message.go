// Package bridge defines the message envelope and registration records
// exchanged between the machine, the node sessions, and the relayer.
package bridge

// Message is the JSON envelope carrying one payload between two named nodes.
// The signature covers the source id (sender name + group), never the payload:
// it authenticates sender identity, not content.
type Message struct {
	FromName  string `json:"from_name"`
	FromGroup string `json:"from_group"`
	ToName    string `json:"to_name"`
	ToGroup   string `json:"to_group"`
	Payload   string `json:"message"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	Sig       []byte `json:"sig,omitempty"`
}

// SourceID is the routing key of the sender: name + group, no separator.
func (m *Message) SourceID() string {
	return m.FromName + m.FromGroup
}

// TargetID is the routing key of the recipient.
func (m *Message) TargetID() string {
	return m.ToName + m.ToGroup
}

// SetError annotates the message with a relay-side failure before it is
// bounced back to the sender.
func (m *Message) SetError(msg string) {
	m.ErrorMsg = msg
}

// RegisterInfo is handed from the machine to the relayer when a node joins.
type RegisterInfo struct {
	Name  string
	Group string
	Addr  string
}

// SourceID derives the routing key the relayer files this node under.
func (r RegisterInfo) SourceID() string {
	return r.Name + r.Group
}

// LaunchInfo is handed from the machine to the node-session registrar.
// The session consumes Input (business -> transport) and produces into
// Output (transport -> business). Ready, when non-nil, is closed once the
// node's listener is bound, so the caller knows the relayer may dial.
type LaunchInfo struct {
	Name   string
	Addr   string
	Input  <-chan Message
	Output chan<- Message
	Ready  chan<- struct{}
}
