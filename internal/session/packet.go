package session

import (
	"encoding/binary"
	"fmt"

	"github.com/stepnet-protocol/stepnet/internal/auth"
)

// payloadOverhead is the payload packet framing: kind byte plus the
// 64-bit sequence.
const payloadOverhead = 1 + 8

// minPacketBudget keeps the configured packet size above the largest
// fixed-size frame (a secure connection request carrying a full token).
const minPacketBudget = 512

type packetKind uint8

const (
	pktInsecureRequest packetKind = 1
	pktSecureRequest   packetKind = 2
	pktDenied          packetKind = 3
	pktChallenge       packetKind = 4
	pktResponse        packetKind = 5
	pktKeepAlive       packetKind = 6
	pktPayload         packetKind = 7
	pktDisconnect      packetKind = 8
)

var packetKindNames = map[packetKind]string{
	pktInsecureRequest: "insecure_request",
	pktSecureRequest:   "secure_request",
	pktDenied:          "denied",
	pktChallenge:       "challenge",
	pktResponse:        "response",
	pktKeepAlive:       "keep_alive",
	pktPayload:         "payload",
	pktDisconnect:      "disconnect",
}

func (k packetKind) String() string {
	if name, ok := packetKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("packet(%d)", uint8(k))
}

// Denial reasons carried by pktDenied.
const (
	denyFull         uint8 = 1
	denyUnauthorized uint8 = 2
	denyProtocol     uint8 = 3
)

// packet is one session wire frame: a kind prefix byte followed by the
// fields that kind uses. Payload bytes are an opaque message batch.
type packet struct {
	kind packetKind

	protocolID  uint64
	clientID    uint64
	key         []byte
	token       []byte
	denyReason  uint8
	challenge   uint64
	clientIndex uint32
	maxClients  uint32
	sequence    uint64
	payload     []byte
}

func (p packet) encode(maxBytes int) ([]byte, error) {
	var buf []byte
	switch p.kind {
	case pktInsecureRequest:
		if len(p.key) != auth.KeyBytes {
			return nil, fmt.Errorf("%w: insecure key %d bytes", ErrShortPacket, len(p.key))
		}
		buf = make([]byte, 1+8+8+auth.KeyBytes)
		binary.BigEndian.PutUint64(buf[1:9], p.protocolID)
		binary.BigEndian.PutUint64(buf[9:17], p.clientID)
		copy(buf[17:], p.key)
	case pktSecureRequest:
		if len(p.token) != auth.TokenBytes {
			return nil, fmt.Errorf("%w: token %d bytes", ErrShortPacket, len(p.token))
		}
		buf = make([]byte, 1+auth.TokenBytes)
		copy(buf[1:], p.token)
	case pktDenied:
		buf = make([]byte, 2)
		buf[1] = p.denyReason
	case pktChallenge:
		buf = make([]byte, 1+8)
		binary.BigEndian.PutUint64(buf[1:9], p.challenge)
	case pktResponse:
		buf = make([]byte, 1+8)
		binary.BigEndian.PutUint64(buf[1:9], p.challenge)
	case pktKeepAlive:
		buf = make([]byte, 1+4+4)
		binary.BigEndian.PutUint32(buf[1:5], p.clientIndex)
		binary.BigEndian.PutUint32(buf[5:9], p.maxClients)
	case pktPayload:
		buf = make([]byte, 1+8+len(p.payload))
		binary.BigEndian.PutUint64(buf[1:9], p.sequence)
		copy(buf[9:], p.payload)
	case pktDisconnect:
		buf = make([]byte, 1)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, uint8(p.kind))
	}
	buf[0] = byte(p.kind)
	if len(buf) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(buf))
	}
	return buf, nil
}

func decodePacket(b []byte) (packet, error) {
	if len(b) < 1 {
		return packet{}, ErrShortPacket
	}
	p := packet{kind: packetKind(b[0])}
	body := b[1:]
	switch p.kind {
	case pktInsecureRequest:
		if len(body) != 8+8+auth.KeyBytes {
			return packet{}, fmt.Errorf("%w: insecure request %d bytes", ErrShortPacket, len(b))
		}
		p.protocolID = binary.BigEndian.Uint64(body[0:8])
		p.clientID = binary.BigEndian.Uint64(body[8:16])
		p.key = append([]byte(nil), body[16:]...)
	case pktSecureRequest:
		if len(body) != auth.TokenBytes {
			return packet{}, fmt.Errorf("%w: secure request %d bytes", ErrShortPacket, len(b))
		}
		p.token = append([]byte(nil), body...)
	case pktDenied:
		if len(body) != 1 {
			return packet{}, fmt.Errorf("%w: denied %d bytes", ErrShortPacket, len(b))
		}
		p.denyReason = body[0]
	case pktChallenge:
		if len(body) != 8 {
			return packet{}, fmt.Errorf("%w: challenge %d bytes", ErrShortPacket, len(b))
		}
		p.challenge = binary.BigEndian.Uint64(body)
	case pktResponse:
		if len(body) != 8 {
			return packet{}, fmt.Errorf("%w: response %d bytes", ErrShortPacket, len(b))
		}
		p.challenge = binary.BigEndian.Uint64(body)
	case pktKeepAlive:
		if len(body) != 8 {
			return packet{}, fmt.Errorf("%w: keep alive %d bytes", ErrShortPacket, len(b))
		}
		p.clientIndex = binary.BigEndian.Uint32(body[0:4])
		p.maxClients = binary.BigEndian.Uint32(body[4:8])
	case pktPayload:
		if len(body) < 8 {
			return packet{}, fmt.Errorf("%w: payload %d bytes", ErrShortPacket, len(b))
		}
		p.sequence = binary.BigEndian.Uint64(body[0:8])
		p.payload = append([]byte(nil), body[8:]...)
	case pktDisconnect:
		if len(body) != 0 {
			return packet{}, fmt.Errorf("%w: disconnect %d bytes", ErrShortPacket, len(b))
		}
	default:
		return packet{}, fmt.Errorf("%w: %d", ErrUnknownPacket, b[0])
	}
	return p, nil
}
