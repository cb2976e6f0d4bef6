package session

import "sync/atomic"

// Counters tracks wire activity for one endpoint. Increments happen on
// the session goroutine; snapshots may be read from anywhere.
type Counters struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	payloadsDropped atomic.Uint64
}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	PayloadsDropped uint64
}

func (c *Counters) sent(bytes int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(bytes))
}

func (c *Counters) received(bytes int) {
	c.packetsReceived.Add(1)
	c.bytesReceived.Add(uint64(bytes))
}

func (c *Counters) dropped() {
	c.payloadsDropped.Add(1)
}

func (c *Counters) snapshot() Stats {
	return Stats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		PayloadsDropped: c.payloadsDropped.Load(),
	}
}
