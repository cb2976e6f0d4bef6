package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepnet-protocol/stepnet/internal/auth"
)

// slot is one admitted client, keyed by index.
type slot struct {
	used     bool
	loopback bool
	clientID uint64
	addr     netip.AddrPort
	sequence uint64
	lastSend time.Duration
	lastRecv time.Duration
	outbox   [][]byte
}

// pendingConn tracks a handshake that has been challenged but not yet
// admitted, keyed by source address.
type pendingConn struct {
	clientID  uint64
	challenge uint64
	at        time.Duration
}

// inPayload is one received payload batch tagged with its origin slot.
type inPayload struct {
	index int
	data  []byte
}

// Server admits clients over UDP or over a loopback bridge and fans
// their payload batches into a single inbox. Like Client it is confined
// to one goroutine driving the send/receive/advance pump.
type Server struct {
	rt  *Runtime
	cfg Config
	log zerolog.Logger

	bindAddr    string
	insecureKey []byte
	tokenKey    []byte

	running bool
	now     time.Duration

	conduit *udpConduit
	bridge  *Bridge

	slots   []slot
	pending map[netip.AddrPort]pendingConn
	inbox   []inPayload

	counters Counters
}

// NewServer builds a server bound to bindAddr on Start. An empty
// bindAddr means loopback-only: no socket is opened and only bridge
// clients can attach. Either key may be nil to disable that admission
// path.
func NewServer(rt *Runtime, cfg Config, bindAddr string, insecureKey, tokenKey []byte) (*Server, error) {
	if err := rt.check(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if insecureKey != nil && len(insecureKey) != auth.KeyBytes {
		return nil, fmt.Errorf("session: insecure key: %w", auth.ErrKeySize)
	}
	if tokenKey != nil && len(tokenKey) != auth.KeyBytes {
		return nil, fmt.Errorf("session: token key: %w", auth.ErrKeySize)
	}
	return &Server{
		rt:          rt,
		cfg:         cfg,
		log:         rt.Logger().With().Str("component", "server").Logger(),
		bindAddr:    bindAddr,
		insecureKey: append([]byte(nil), insecureKey...),
		tokenKey:    append([]byte(nil), tokenKey...),
	}, nil
}

// Start opens the socket (when bound to an address) and allocates the
// slot table.
func (s *Server) Start() error {
	if s.running {
		return ErrAlreadyRunning
	}
	s.slots = make([]slot, s.cfg.MaxClients)
	s.pending = make(map[netip.AddrPort]pendingConn)
	s.inbox = nil

	if s.bindAddr != "" {
		bind, err := ParseAddr(s.bindAddr, DefaultPort)
		if err != nil {
			return err
		}
		conduit, err := listenConduit(bind, s.cfg.MaxPacketBytes)
		if err != nil {
			return err
		}
		s.conduit = conduit
		s.log.Info().
			Str("bind", conduit.localAddr().String()).
			Int("max_clients", s.cfg.MaxClients).
			Msg("server_started")
	} else {
		s.log.Info().
			Int("max_clients", s.cfg.MaxClients).
			Msg("server_started_loopback_only")
	}

	s.running = true
	return nil
}

// Stop disconnects every client and closes the socket. The server can
// be started again afterwards.
func (s *Server) Stop() {
	if !s.running {
		return
	}
	for i := range s.slots {
		if s.slots[i].used {
			s.disconnectSlot(i, true)
		}
	}
	if s.conduit != nil {
		s.conduit.close()
		s.conduit = nil
	}
	if s.bridge != nil {
		s.bridge.unbindServer()
		s.bridge = nil
	}
	s.pending = nil
	s.inbox = nil
	s.running = false
	s.log.Info().Msg("server_stopped")
}

// ConnectLoopbackClient reserves a slot for a bridge-attached client.
// The slot is connected on return; there is no handshake.
func (s *Server) ConnectLoopbackClient(bridge *Bridge, index int, clientID uint64) error {
	if !s.running {
		return ErrNotRunning
	}
	if bridge == nil {
		return fmt.Errorf("%w: nil bridge", ErrBridgeUnbound)
	}
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d of %d", ErrSlotIndex, index, len(s.slots))
	}
	if s.slots[index].used {
		return fmt.Errorf("%w: %d", ErrSlotUsed, index)
	}

	bridge.bindServer(s)
	s.bridge = bridge
	s.slots[index] = slot{
		used:     true,
		loopback: true,
		clientID: clientID,
		lastSend: s.now,
		lastRecv: s.now,
	}
	s.log.Info().
		Uint64("client_id", clientID).
		Int("client_index", index).
		Msg("loopback_client_connected")
	return nil
}

// DisconnectClient frees one slot. Networked clients are told with
// redundant disconnect frames.
func (s *Server) DisconnectClient(index int) error {
	if !s.running {
		return ErrNotRunning
	}
	if index < 0 || index >= len(s.slots) || !s.slots[index].used {
		return fmt.Errorf("%w: %d", ErrSlotIndex, index)
	}
	s.disconnectSlot(index, true)
	return nil
}

func (s *Server) disconnectSlot(index int, sendDisconnect bool) {
	sl := &s.slots[index]
	if sl.used && !sl.loopback && sendDisconnect && s.conduit != nil {
		buf, err := packet{kind: pktDisconnect}.encode(s.cfg.MaxPacketBytes)
		if err == nil {
			for i := 0; i < numDisconnectPackets; i++ {
				if s.conduit.send(sl.addr, buf) != nil {
					break
				}
				s.counters.sent(len(buf))
			}
		}
	}
	s.log.Info().
		Uint64("client_id", sl.clientID).
		Int("client_index", index).
		Msg("client_slot_freed")
	*sl = slot{}
}

// Send queues one payload batch toward the client in the given slot.
// It goes out on the next SendPackets.
func (s *Server) Send(index int, data []byte) error {
	if !s.running {
		return ErrNotRunning
	}
	if index < 0 || index >= len(s.slots) || !s.slots[index].used {
		return fmt.Errorf("%w: %d", ErrSlotIndex, index)
	}
	if len(data) > s.cfg.PayloadBudget() {
		return fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(data))
	}
	sl := &s.slots[index]
	if len(sl.outbox) >= s.cfg.PayloadQueueSize {
		return ErrQueueFull
	}
	sl.outbox = append(sl.outbox, data)
	return nil
}

// SendPackets flushes queued payloads for every slot plus keepalives
// for networked clients that have gone quiet on the send side.
func (s *Server) SendPackets() error {
	if !s.running {
		return ErrNotRunning
	}
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.used {
			continue
		}
		for _, batch := range sl.outbox {
			sl.sequence++
			if err := s.sendToSlot(i, packet{kind: pktPayload, sequence: sl.sequence, payload: batch}); err != nil {
				return err
			}
		}
		sent := len(sl.outbox) > 0
		sl.outbox = sl.outbox[:0]
		if !sent && !sl.loopback && s.now-sl.lastSend >= s.cfg.KeepAliveInterval {
			if err := s.sendToSlot(i, packet{
				kind:        pktKeepAlive,
				clientIndex: uint32(i),
				maxClients:  uint32(len(s.slots)),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) sendToSlot(index int, p packet) error {
	sl := &s.slots[index]
	if sl.loopback {
		if p.kind != pktPayload {
			return nil
		}
		if s.bridge == nil {
			return fmt.Errorf("%w: slot %d", ErrBridgeUnbound, index)
		}
		if err := s.bridge.toClient(index, p.payload, p.sequence); err != nil {
			return err
		}
		s.counters.sent(len(p.payload))
		sl.lastSend = s.now
		return nil
	}

	buf, err := p.encode(s.cfg.MaxPacketBytes)
	if err != nil {
		return err
	}
	if err := s.conduit.send(sl.addr, buf); err != nil {
		return fmt.Errorf("session: send %s to slot %d: %w", p.kind, index, err)
	}
	s.counters.sent(len(buf))
	sl.lastSend = s.now
	return nil
}

// ReceivePackets drains the socket and dispatches handshake and
// steady-state traffic. Loopback payloads arrive synchronously through
// the bridge instead.
func (s *Server) ReceivePackets() int {
	if !s.running || s.conduit == nil {
		return 0
	}
	return s.conduit.drain(func(from netip.AddrPort, data []byte) {
		p, err := decodePacket(data)
		if err != nil {
			s.log.Debug().Err(err).Str("from", from.String()).Msg("packet_decode_failed")
			return
		}
		s.counters.received(len(data))
		if index, ok := s.findSlotByAddr(from); ok {
			s.processConnected(index, p)
			return
		}
		s.processHandshake(from, p)
	})
}

func (s *Server) processConnected(index int, p packet) {
	sl := &s.slots[index]
	switch p.kind {
	case pktPayload:
		s.pushInbox(index, p.payload)
		sl.lastRecv = s.now
	case pktKeepAlive:
		sl.lastRecv = s.now
	case pktDisconnect:
		s.log.Info().Int("client_index", index).Msg("client_requested_disconnect")
		s.disconnectSlot(index, false)
	case pktResponse:
		// duplicate response after admission; repeat the keepalive so
		// the client can finish connecting
		_ = s.sendToSlot(index, packet{
			kind:        pktKeepAlive,
			clientIndex: uint32(index),
			maxClients:  uint32(len(s.slots)),
		})
	}
}

func (s *Server) processHandshake(from netip.AddrPort, p packet) {
	switch p.kind {
	case pktInsecureRequest:
		if s.insecureKey == nil {
			s.deny(from, denyUnauthorized)
			return
		}
		if p.protocolID != s.cfg.ProtocolID {
			s.deny(from, denyProtocol)
			return
		}
		validator := auth.StaticKey{Key: s.insecureKey}
		if err := validator.Validate(p.key); err != nil {
			s.log.Warn().Uint64("client_id", p.clientID).Msg("insecure_key_rejected")
			s.deny(from, denyUnauthorized)
			return
		}
		s.challengeClient(from, p.clientID)
	case pktSecureRequest:
		if s.tokenKey == nil {
			s.deny(from, denyUnauthorized)
			return
		}
		grant, err := auth.OpenToken(s.tokenKey, s.cfg.ProtocolID, p.token, time.Now())
		if err != nil {
			s.log.Warn().Err(err).Msg("connect_token_rejected")
			s.deny(from, denyUnauthorized)
			return
		}
		s.challengeClient(from, grant.ClientID)
	case pktResponse:
		pc, ok := s.pending[from]
		if !ok || pc.challenge != p.challenge {
			return
		}
		delete(s.pending, from)
		s.admit(from, pc.clientID)
	}
}

func (s *Server) challengeClient(from netip.AddrPort, clientID uint64) {
	if _, ok := s.findFreeSlot(); !ok {
		s.deny(from, denyFull)
		return
	}
	pc, ok := s.pending[from]
	if !ok {
		pc = pendingConn{clientID: clientID, challenge: s.newChallenge(), at: s.now}
	}
	pc.at = s.now
	s.pending[from] = pc
	s.sendRaw(from, packet{kind: pktChallenge, challenge: pc.challenge})
}

func (s *Server) admit(from netip.AddrPort, clientID uint64) {
	index, ok := s.findFreeSlot()
	if !ok {
		s.deny(from, denyFull)
		return
	}
	s.slots[index] = slot{
		used:     true,
		clientID: clientID,
		addr:     from,
		lastSend: s.now,
		lastRecv: s.now,
	}
	s.log.Info().
		Uint64("client_id", clientID).
		Int("client_index", index).
		Str("addr", from.String()).
		Msg("client_connected")
	_ = s.sendToSlot(index, packet{
		kind:        pktKeepAlive,
		clientIndex: uint32(index),
		maxClients:  uint32(len(s.slots)),
	})
}

func (s *Server) deny(to netip.AddrPort, reason uint8) {
	s.sendRaw(to, packet{kind: pktDenied, denyReason: reason})
}

func (s *Server) sendRaw(to netip.AddrPort, p packet) {
	buf, err := p.encode(s.cfg.MaxPacketBytes)
	if err != nil {
		return
	}
	if s.conduit.send(to, buf) == nil {
		s.counters.sent(len(buf))
	}
}

func (s *Server) newChallenge() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the logical clock; uniqueness per pending addr
		// is all admission needs
		return uint64(s.now)
	}
	return binary.BigEndian.Uint64(b[:])
}

func (s *Server) processLoopbackPayload(index int, data []byte, sequence uint64) error {
	if !s.running {
		return ErrNotRunning
	}
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d of %d", ErrSlotIndex, index, len(s.slots))
	}
	sl := &s.slots[index]
	if !sl.used || !sl.loopback {
		return fmt.Errorf("%w: slot %d not loopback", ErrSlotIndex, index)
	}
	_ = sequence
	s.counters.received(len(data))
	s.pushInbox(index, data)
	sl.lastRecv = s.now
	return nil
}

func (s *Server) pushInbox(index int, data []byte) {
	if len(s.inbox) >= s.cfg.PayloadQueueSize {
		s.counters.dropped()
		return
	}
	s.inbox = append(s.inbox, inPayload{index: index, data: data})
}

// NextPayload pops the oldest received batch along with the slot index
// it came from.
func (s *Server) NextPayload() (int, []byte, bool) {
	if len(s.inbox) == 0 {
		return 0, nil, false
	}
	in := s.inbox[0]
	s.inbox = s.inbox[1:]
	return in.index, in.data, true
}

// AdvanceTime moves the logical clock, expires stalled handshakes and
// disconnects networked clients that have gone silent.
func (s *Server) AdvanceTime(dt time.Duration) {
	s.now += dt
	if !s.running {
		return
	}
	for from, pc := range s.pending {
		if s.now-pc.at >= s.cfg.ConnectTimeout {
			delete(s.pending, from)
		}
	}
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.used || sl.loopback {
			continue
		}
		if s.now-sl.lastRecv >= s.cfg.IdleTimeout {
			s.log.Warn().
				Int("client_index", i).
				Dur("idle", s.now-sl.lastRecv).
				Msg("client_timed_out")
			s.disconnectSlot(i, false)
		}
	}
}

func (s *Server) findSlotByAddr(addr netip.AddrPort) (int, bool) {
	for i := range s.slots {
		if s.slots[i].used && !s.slots[i].loopback && s.slots[i].addr == addr {
			return i, true
		}
	}
	return 0, false
}

func (s *Server) findFreeSlot() (int, bool) {
	for i := range s.slots {
		if !s.slots[i].used {
			return i, true
		}
	}
	return 0, false
}

func (s *Server) Running() bool { return s.running }

// ClientCount is the number of occupied slots.
func (s *Server) ClientCount() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].used {
			n++
		}
	}
	return n
}

// ClientConnected reports whether the given slot is occupied.
func (s *Server) ClientConnected(index int) bool {
	return index >= 0 && index < len(s.slots) && s.slots[index].used
}

// ClientID returns the id occupying a slot.
func (s *Server) ClientID(index int) (uint64, bool) {
	if !s.ClientConnected(index) {
		return 0, false
	}
	return s.slots[index].clientID, true
}

// Addr is the bound socket address, useful when binding to port 0.
// Returns the zero AddrPort for a loopback-only server.
func (s *Server) Addr() netip.AddrPort {
	if s.conduit == nil {
		return netip.AddrPort{}
	}
	return s.conduit.localAddr()
}

func (s *Server) Stats() Stats { return s.counters.snapshot() }
