package session

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	socketRecvBuffer = 1024 * 1024
	socketSendBuffer = 1024 * 1024
	conduitQueueSize = 256
)

// datagram is one raw inbound packet with its source address.
type datagram struct {
	from netip.AddrPort
	data []byte
}

// udpConduit owns a UDP socket plus a receive goroutine that feeds a
// bounded queue. All processing happens on the session goroutine when
// it drains the queue; the receive goroutine never touches session
// state. The queue drops datagrams when full rather than blocking.
type udpConduit struct {
	conn     *net.UDPConn
	dialed   bool
	maxBytes int

	recvCh    chan datagram
	closeCh   chan struct{}
	closeOnce sync.Once
}

// dialConduit opens a client socket bound to one remote endpoint.
func dialConduit(remote netip.AddrPort, maxBytes int) (*udpConduit, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(remote))
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", remote, err)
	}
	return newConduit(conn, true, maxBytes), nil
}

// listenConduit opens a server socket on the bind endpoint.
func listenConduit(bind netip.AddrPort, maxBytes int) (*udpConduit, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, fmt.Errorf("session: listen %s: %w", bind, err)
	}
	return newConduit(conn, false, maxBytes), nil
}

func newConduit(conn *net.UDPConn, dialed bool, maxBytes int) *udpConduit {
	conn.SetReadBuffer(socketRecvBuffer)
	conn.SetWriteBuffer(socketSendBuffer)
	c := &udpConduit{
		conn:     conn,
		dialed:   dialed,
		maxBytes: maxBytes,
		recvCh:   make(chan datagram, conduitQueueSize),
		closeCh:  make(chan struct{}),
	}
	go c.receiver()
	return c
}

func (c *udpConduit) receiver() {
	for {
		buf := make([]byte, c.maxBytes)
		n, from, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}
			log.Debug().Err(err).Msg("conduit_read_error")
			continue
		}
		if n == 0 {
			continue
		}
		// normalize 4-in-6 mapped sources so addresses compare equal
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		select {
		case c.recvCh <- datagram{from: from, data: buf[:n]}:
		default:
			// queue full: drop rather than block the socket reader
		}
	}
}

// send transmits one packet. The destination is ignored on a dialed
// conduit, which can only reach its remote endpoint.
func (c *udpConduit) send(to netip.AddrPort, b []byte) error {
	select {
	case <-c.closeCh:
		return ErrConduitClosed
	default:
	}
	var err error
	if c.dialed {
		_, err = c.conn.Write(b)
	} else {
		_, err = c.conn.WriteToUDPAddrPort(b, to)
	}
	return err
}

// drain hands every queued datagram to fn without blocking and reports
// how many were handed over.
func (c *udpConduit) drain(fn func(from netip.AddrPort, data []byte)) int {
	count := 0
	for {
		select {
		case d := <-c.recvCh:
			fn(d.from, d.data)
			count++
		default:
			return count
		}
	}
}

func (c *udpConduit) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// localAddr reports the bound endpoint, useful when listening on port 0.
func (c *udpConduit) localAddr() netip.AddrPort {
	if addr, ok := c.conn.LocalAddr().(*net.UDPAddr); ok {
		ap := addr.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
