package session

import "fmt"

// Bridge routes packet buffers between one co-located client and server
// in place of a socket. Delivery is a direct same-goroutine hand-off
// into the peer's packet processing: no queue, no copy, no reordering.
// Both ends must be bound before the first send; delivering through an
// unbound end is a configuration error, never a silent drop.
type Bridge struct {
	client      *Client
	clientIndex int
	server      *Server
}

func NewBridge() *Bridge {
	return &Bridge{clientIndex: -1}
}

func (b *Bridge) bindClient(c *Client, index int) {
	b.client = c
	b.clientIndex = index
}

func (b *Bridge) bindServer(s *Server) {
	b.server = s
}

func (b *Bridge) unbindClient() {
	b.client = nil
	b.clientIndex = -1
}

func (b *Bridge) unbindServer() {
	b.server = nil
}

// toServer hands a client payload to the server slot it originated
// from.
func (b *Bridge) toServer(index int, data []byte, sequence uint64) error {
	if b.server == nil {
		return fmt.Errorf("%w: server side", ErrBridgeUnbound)
	}
	return b.server.processLoopbackPayload(index, data, sequence)
}

// toClient hands a server payload to the one bound client.
func (b *Bridge) toClient(index int, data []byte, sequence uint64) error {
	if b.client == nil {
		return fmt.Errorf("%w: client side", ErrBridgeUnbound)
	}
	if index != b.clientIndex {
		return fmt.Errorf("%w: got %d bound %d", ErrBridgeIndex, index, b.clientIndex)
	}
	b.client.processLoopbackPayload(data, sequence)
	return nil
}
