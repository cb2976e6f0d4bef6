package session

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepnet-protocol/stepnet/internal/auth"
)

// numDisconnectPackets is how many redundant disconnect frames a clean
// teardown fires at the peer.
const numDisconnectPackets = 10

type connectMode uint8

const (
	modeNone connectMode = iota
	modeInsecure
	modeSecure
	modeLoopback
)

type connectPhase uint8

const (
	phaseRequest connectPhase = iota
	phaseResponse
)

// Client drives one session against a server. It is confined to a
// single goroutine: the driver loop calls SendPackets, ReceivePackets
// and AdvanceTime in order, once per fixed timestep, and reads status
// between calls. Nothing here blocks.
type Client struct {
	rt  *Runtime
	cfg Config
	log zerolog.Logger

	state  State
	reason FailReason
	mode   connectMode
	phase  connectPhase

	clientID    uint64
	serverAddr  netip.AddrPort
	token       []byte
	key         []byte
	challenge   uint64
	clientIndex int
	maxClients  int

	now      time.Duration
	lastSend time.Duration
	lastRecv time.Duration
	deadline time.Duration
	timeout  time.Duration

	sequence uint64

	conduit *udpConduit
	bridge  *Bridge

	outbox [][]byte
	inbox  [][]byte

	counters Counters
}

func NewClient(rt *Runtime, cfg Config) (*Client, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		rt:          rt,
		cfg:         cfg,
		log:         rt.Logger().With().Str("component", "client").Logger(),
		state:       StateIdle,
		clientIndex: -1,
	}, nil
}

// ConnectInsecure starts a handshake that presents a shared key instead
// of a connect token. Development servers only.
func (c *Client) ConnectInsecure(key []byte, clientID uint64, rawAddr string) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrNotIdle, c.state)
	}
	if len(key) != auth.KeyBytes {
		return fmt.Errorf("session: insecure key: %w", auth.ErrKeySize)
	}
	addr, err := ParseAddr(rawAddr, DefaultPort)
	if err != nil {
		return err
	}
	conduit, err := dialConduit(addr, c.cfg.MaxPacketBytes)
	if err != nil {
		return err
	}

	c.conduit = conduit
	c.serverAddr = addr
	c.mode = modeInsecure
	c.key = append([]byte(nil), key...)
	c.clientID = clientID
	c.begin(c.cfg.IdleTimeout)
	c.log.Info().
		Uint64("client_id", clientID).
		Str("server", addr.String()).
		Msg("connect_insecure")
	return nil
}

// ConnectSecure starts a handshake that presents a match-maker token.
// The token is passed through unmodified; the dial address and timeout
// come from its client-readable envelope.
func (c *Client) ConnectSecure(clientID uint64, token []byte) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrNotIdle, c.state)
	}
	env, err := auth.ParseEnvelope(token)
	if err != nil {
		return err
	}
	if env.ProtocolID != c.cfg.ProtocolID {
		return fmt.Errorf("%w: token %#x session %#x", auth.ErrTokenProtocol, env.ProtocolID, c.cfg.ProtocolID)
	}
	if time.Now().After(env.Expires) {
		return auth.ErrTokenExpired
	}
	addr, err := ParseAddr(env.ServerAddr, DefaultPort)
	if err != nil {
		return err
	}
	conduit, err := dialConduit(addr, c.cfg.MaxPacketBytes)
	if err != nil {
		return err
	}

	c.conduit = conduit
	c.serverAddr = addr
	c.mode = modeSecure
	c.token = append([]byte(nil), token...)
	c.clientID = clientID
	timeout := c.cfg.IdleTimeout
	if env.Timeout > 0 {
		timeout = env.Timeout
	}
	c.begin(timeout)
	c.log.Info().
		Uint64("client_id", clientID).
		Str("server", addr.String()).
		Msg("connect_secure")
	return nil
}

// ConnectLoopback attaches this client to a co-located server through
// bridge, occupying the given slot. There is no handshake and no socket
// path; the session is connected on return.
func (c *Client) ConnectLoopback(bridge *Bridge, index int, clientID uint64, maxClients int) error {
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrNotIdle, c.state)
	}
	if bridge == nil {
		return fmt.Errorf("%w: nil bridge", ErrBridgeUnbound)
	}
	if index < 0 || index >= maxClients {
		return fmt.Errorf("%w: %d of %d", ErrSlotIndex, index, maxClients)
	}

	bridge.bindClient(c, index)
	c.bridge = bridge
	c.mode = modeLoopback
	c.clientID = clientID
	c.clientIndex = index
	c.maxClients = maxClients
	c.state = StateConnected
	c.reason = FailNone
	c.lastRecv = c.now
	c.lastSend = c.now
	c.log.Info().
		Uint64("client_id", clientID).
		Int("client_index", index).
		Msg("connect_loopback")
	return nil
}

func (c *Client) begin(timeout time.Duration) {
	c.state = StateConnecting
	c.reason = FailNone
	c.phase = phaseRequest
	c.deadline = c.now + c.cfg.ConnectTimeout
	c.timeout = timeout
	c.lastRecv = c.now
	// backdate so the first SendPackets fires immediately
	c.lastSend = c.now - c.cfg.ResendInterval
}

// QueuePayload stages one opaque payload batch for the next
// SendPackets. The caller yields ownership of data.
func (c *Client) QueuePayload(data []byte) error {
	if c.state != StateConnected {
		return fmt.Errorf("%w: %s", ErrNotConnected, c.state)
	}
	if len(data) > c.cfg.PayloadBudget() {
		return fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(data))
	}
	if len(c.outbox) >= c.cfg.PayloadQueueSize {
		return ErrQueueFull
	}
	c.outbox = append(c.outbox, data)
	return nil
}

// SendPackets flushes control traffic for the current state plus any
// queued payload batches.
func (c *Client) SendPackets() error {
	switch c.state {
	case StateConnecting:
		if c.now-c.lastSend < c.cfg.ResendInterval {
			return nil
		}
		if c.phase == phaseResponse {
			return c.sendPacket(packet{kind: pktResponse, challenge: c.challenge})
		}
		if c.mode == modeSecure {
			return c.sendPacket(packet{kind: pktSecureRequest, token: c.token})
		}
		return c.sendPacket(packet{
			kind:       pktInsecureRequest,
			protocolID: c.cfg.ProtocolID,
			clientID:   c.clientID,
			key:        c.key,
		})
	case StateConnected:
		sent := false
		for _, batch := range c.outbox {
			c.sequence++
			if err := c.sendPacket(packet{kind: pktPayload, sequence: c.sequence, payload: batch}); err != nil {
				return err
			}
			sent = true
		}
		c.outbox = c.outbox[:0]
		if !sent && c.mode != modeLoopback && c.now-c.lastSend >= c.cfg.KeepAliveInterval {
			return c.sendPacket(packet{
				kind:        pktKeepAlive,
				clientIndex: uint32(c.clientIndex),
				maxClients:  uint32(c.maxClients),
			})
		}
		return nil
	default:
		return nil
	}
}

func (c *Client) sendPacket(p packet) error {
	if c.mode == modeLoopback {
		// loopback carries payloads only; there is no control traffic
		if p.kind != pktPayload {
			return nil
		}
		if err := c.bridge.toServer(c.clientIndex, p.payload, p.sequence); err != nil {
			return err
		}
		c.counters.sent(len(p.payload))
		c.lastSend = c.now
		return nil
	}

	buf, err := p.encode(c.cfg.MaxPacketBytes)
	if err != nil {
		return err
	}
	if err := c.conduit.send(c.serverAddr, buf); err != nil {
		return fmt.Errorf("session: send %s: %w", p.kind, err)
	}
	c.counters.sent(len(buf))
	c.lastSend = c.now
	return nil
}

// ReceivePackets drains the conduit and dispatches every packet that
// arrived since the last call. Loopback delivery is synchronous, so
// this is a no-op in loopback mode.
func (c *Client) ReceivePackets() int {
	if c.mode == modeLoopback || c.conduit == nil {
		return 0
	}
	return c.conduit.drain(func(from netip.AddrPort, data []byte) {
		if from != c.serverAddr {
			c.log.Debug().Str("from", from.String()).Msg("packet_from_unknown_address")
			return
		}
		p, err := decodePacket(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("packet_decode_failed")
			return
		}
		c.counters.received(len(data))
		c.processPacket(p)
	})
}

func (c *Client) processPacket(p packet) {
	switch p.kind {
	case pktDenied:
		if c.state == StateConnecting {
			c.log.Warn().Uint8("deny_reason", p.denyReason).Msg("connection_denied")
			c.fail(FailDenied)
		}
	case pktChallenge:
		if c.state == StateConnecting && c.phase == phaseRequest {
			c.challenge = p.challenge
			c.phase = phaseResponse
			c.lastRecv = c.now
			// answer on the next send without waiting out the pacing
			c.lastSend = c.now - c.cfg.ResendInterval
		}
	case pktKeepAlive:
		if c.state == StateConnecting && c.phase == phaseResponse {
			c.clientIndex = int(p.clientIndex)
			c.maxClients = int(p.maxClients)
			c.state = StateConnected
			c.lastRecv = c.now
			c.log.Info().
				Int("client_index", c.clientIndex).
				Int("max_clients", c.maxClients).
				Msg("client_connected")
		} else if c.state == StateConnected {
			c.lastRecv = c.now
		}
	case pktPayload:
		if c.state != StateConnected {
			return
		}
		c.pushInbox(p.payload)
		c.lastRecv = c.now
	case pktDisconnect:
		// Connecting may only resolve to Connected or ConnectionFailed;
		// a disconnect mid-handshake is a refusal, not a session end.
		if c.state == StateConnecting {
			c.log.Warn().Msg("disconnected_during_handshake")
			c.fail(FailDenied)
			return
		}
		if c.state == StateConnected {
			c.state = StateDisconnected
			c.log.Info().Msg("peer_disconnect")
		}
	}
}

func (c *Client) processLoopbackPayload(data []byte, sequence uint64) {
	if c.state != StateConnected {
		return
	}
	_ = sequence
	c.counters.received(len(data))
	c.pushInbox(data)
	c.lastRecv = c.now
}

func (c *Client) pushInbox(data []byte) {
	if len(c.inbox) >= c.cfg.PayloadQueueSize {
		c.counters.dropped()
		return
	}
	c.inbox = append(c.inbox, data)
}

// NextPayload pops the oldest received payload batch, or nil when the
// inbox is empty.
func (c *Client) NextPayload() []byte {
	if len(c.inbox) == 0 {
		return nil
	}
	data := c.inbox[0]
	c.inbox = c.inbox[1:]
	return data
}

// AdvanceTime moves the logical clock one step and applies the timeout
// exits for the current state.
func (c *Client) AdvanceTime(dt time.Duration) {
	c.now += dt
	switch c.state {
	case StateConnecting:
		if c.now >= c.deadline {
			c.fail(FailTimeout)
		}
	case StateConnected:
		if c.mode != modeLoopback && c.now-c.lastRecv >= c.timeout {
			c.state = StateDisconnected
			c.log.Warn().Dur("idle", c.now-c.lastRecv).Msg("peer_silent_disconnected")
		}
	}
}

func (c *Client) fail(reason FailReason) {
	c.state = StateConnectionFailed
	c.reason = reason
	c.log.Warn().Str("reason", reason.String()).Msg("connection_failed")
}

// Disconnect stops the session on any state and returns it to Idle. On
// a live networked session the peer is told with redundant disconnect
// frames before the socket closes.
func (c *Client) Disconnect() error {
	if c.state == StateIdle {
		return nil
	}

	if c.mode == modeLoopback {
		if c.bridge != nil {
			c.bridge.unbindClient()
		}
	} else if c.conduit != nil {
		if c.state == StateConnecting || c.state == StateConnected {
			for i := 0; i < numDisconnectPackets; i++ {
				if err := c.sendPacket(packet{kind: pktDisconnect}); err != nil {
					break
				}
			}
		}
		c.conduit.close()
	}

	c.log.Info().Str("state", c.state.String()).Msg("client_disconnected")
	c.resetConnectionData()
	return nil
}

func (c *Client) resetConnectionData() {
	c.state = StateIdle
	c.reason = FailNone
	c.mode = modeNone
	c.phase = phaseRequest
	c.serverAddr = netip.AddrPort{}
	c.token = nil
	c.key = nil
	c.challenge = 0
	c.clientIndex = -1
	c.maxClients = 0
	c.sequence = 0
	c.conduit = nil
	c.bridge = nil
	c.outbox = nil
	c.inbox = nil
	c.lastSend = c.now
	c.lastRecv = c.now
	c.deadline = 0
	c.timeout = 0
}

func (c *Client) State() State { return c.state }

func (c *Client) Connected() bool { return c.state == StateConnected }

func (c *Client) Disconnected() bool { return c.state == StateDisconnected }

func (c *Client) ConnectionFailed() bool { return c.state == StateConnectionFailed }

// FailureReason reports why the last connect failed; FailNone otherwise.
func (c *Client) FailureReason() FailReason { return c.reason }

func (c *Client) ClientID() uint64 { return c.clientID }

// ClientIndex is the server-assigned slot, or -1 before admission.
func (c *Client) ClientIndex() int { return c.clientIndex }

func (c *Client) MaxClients() int { return c.maxClients }

func (c *Client) Stats() Stats { return c.counters.snapshot() }
