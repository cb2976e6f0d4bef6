package auth

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// TokenBytes is the fixed connect-token envelope size. Tokens are
	// passed around as opaque blobs of exactly this length.
	TokenBytes = 256

	// KeyBytes is the shared sealing key size.
	KeyBytes = chacha20poly1305.KeySize

	// MaxServerAddrLen bounds the address carried by a token so the
	// sealed grant and the cleartext tail both fit the fixed envelope.
	MaxServerAddrLen = 64

	versionInfo  = "STEPNET 1.0\x00"
	headerLen    = 12 + 8 + 8 + 8 + chacha20poly1305.NonceSizeX
	sealedLenOff = headerLen
	sealedOff    = headerLen + 2
	maxSealedLen = TokenBytes - sealedOff - tailFixedLen
	tailFixedLen = 4 + 2
)

var (
	ErrKeySize       = errors.New("auth: wrong key size")
	ErrTokenSize     = errors.New("auth: wrong token size")
	ErrTokenVersion  = errors.New("auth: wrong token version")
	ErrTokenProtocol = errors.New("auth: wrong protocol id")
	ErrTokenExpired  = errors.New("auth: token expired")
	ErrTokenSealed   = errors.New("auth: cannot open sealed section")
	ErrTokenCorrupt  = errors.New("auth: corrupt token")
	ErrTokenTTL      = errors.New("auth: non-positive token ttl")
	ErrAddrLength    = errors.New("auth: bad server address length")
)

// Grant is the private section of a connect token. It is sealed under
// the key shared by the match-maker and the server, so only the server
// can recover the admitted client identity.
type Grant struct {
	ClientID   uint64
	Timeout    time.Duration
	ServerAddr string
}

// Envelope is the client-readable view of a token: enough to dial the
// right server with the right timeout. Servers never trust it; they
// admit on the sealed grant alone.
type Envelope struct {
	ProtocolID uint64
	Created    time.Time
	Expires    time.Time
	Timeout    time.Duration
	ServerAddr string
}

// MintToken seals grant into a fixed-size single-use connect token valid
// from now until now+ttl. The cleartext header (version, protocol id,
// timestamps, nonce) is bound to the sealed section as associated data;
// a cleartext tail repeats the dial address and timeout for the client.
func MintToken(key []byte, protocolID uint64, grant Grant, ttl time.Duration, now time.Time) ([]byte, error) {
	if len(key) != KeyBytes {
		return nil, ErrKeySize
	}
	if ttl <= 0 {
		return nil, ErrTokenTTL
	}
	if len(grant.ServerAddr) == 0 || len(grant.ServerAddr) > MaxServerAddrLen {
		return nil, fmt.Errorf("%w: %d", ErrAddrLength, len(grant.ServerAddr))
	}

	token := make([]byte, TokenBytes)
	copy(token[0:12], versionInfo)
	binary.BigEndian.PutUint64(token[12:20], protocolID)
	binary.BigEndian.PutUint64(token[20:28], uint64(now.Unix()))
	binary.BigEndian.PutUint64(token[28:36], uint64(now.Add(ttl).Unix()))
	nonce := token[36:headerLen]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("auth: nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("auth: seal: %w", err)
	}
	sealed := aead.Seal(nil, nonce, encodeGrant(grant), token[:headerLen])
	binary.BigEndian.PutUint16(token[sealedLenOff:sealedOff], uint16(len(sealed)))
	copy(token[sealedOff:], sealed)

	tail := sealedOff + len(sealed)
	binary.BigEndian.PutUint32(token[tail:tail+4], uint32(grant.Timeout/time.Second))
	binary.BigEndian.PutUint16(token[tail+4:tail+6], uint16(len(grant.ServerAddr)))
	copy(token[tail+6:], grant.ServerAddr)
	return token, nil
}

// ParseEnvelope reads the client-visible fields of a token. It needs no
// key and performs no authenticity check beyond structural validation.
func ParseEnvelope(token []byte) (Envelope, error) {
	if len(token) != TokenBytes {
		return Envelope{}, fmt.Errorf("%w: %d", ErrTokenSize, len(token))
	}
	if string(token[0:12]) != versionInfo {
		return Envelope{}, ErrTokenVersion
	}
	sealedLen := int(binary.BigEndian.Uint16(token[sealedLenOff:sealedOff]))
	if sealedLen < chacha20poly1305.Overhead || sealedLen > maxSealedLen {
		return Envelope{}, ErrTokenCorrupt
	}
	tail := sealedOff + sealedLen
	timeout := time.Duration(binary.BigEndian.Uint32(token[tail:tail+4])) * time.Second
	addrLen := int(binary.BigEndian.Uint16(token[tail+4 : tail+6]))
	if addrLen == 0 || addrLen > MaxServerAddrLen || tail+6+addrLen > TokenBytes {
		return Envelope{}, ErrTokenCorrupt
	}
	return Envelope{
		ProtocolID: binary.BigEndian.Uint64(token[12:20]),
		Created:    time.Unix(int64(binary.BigEndian.Uint64(token[20:28])), 0),
		Expires:    time.Unix(int64(binary.BigEndian.Uint64(token[28:36])), 0),
		Timeout:    timeout,
		ServerAddr: string(token[tail+6 : tail+6+addrLen]),
	}, nil
}

// OpenToken validates the envelope and unseals the grant. Expiry is
// checked against now before any key material is touched.
func OpenToken(key []byte, protocolID uint64, token []byte, now time.Time) (Grant, error) {
	if len(key) != KeyBytes {
		return Grant{}, ErrKeySize
	}
	if len(token) != TokenBytes {
		return Grant{}, fmt.Errorf("%w: %d", ErrTokenSize, len(token))
	}
	if string(token[0:12]) != versionInfo {
		return Grant{}, ErrTokenVersion
	}
	if got := binary.BigEndian.Uint64(token[12:20]); got != protocolID {
		return Grant{}, fmt.Errorf("%w: %#x", ErrTokenProtocol, got)
	}
	expires := int64(binary.BigEndian.Uint64(token[28:36]))
	if now.Unix() > expires {
		return Grant{}, ErrTokenExpired
	}

	sealedLen := int(binary.BigEndian.Uint16(token[sealedLenOff:sealedOff]))
	if sealedLen < chacha20poly1305.Overhead || sealedLen > maxSealedLen {
		return Grant{}, ErrTokenCorrupt
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Grant{}, fmt.Errorf("auth: open: %w", err)
	}
	plain, err := aead.Open(nil, token[36:headerLen], token[sealedOff:sealedOff+sealedLen], token[:headerLen])
	if err != nil {
		return Grant{}, ErrTokenSealed
	}
	return decodeGrant(plain)
}

// ParseKey decodes a hex-encoded sealing key.
func ParseKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySize, err)
	}
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}
	return key, nil
}

func encodeGrant(g Grant) []byte {
	addr := []byte(g.ServerAddr)
	buf := make([]byte, 14+len(addr))
	binary.BigEndian.PutUint64(buf[0:8], g.ClientID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(g.Timeout/time.Second))
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(addr)))
	copy(buf[14:], addr)
	return buf
}

func decodeGrant(b []byte) (Grant, error) {
	if len(b) < 14 {
		return Grant{}, ErrTokenCorrupt
	}
	addrLen := int(binary.BigEndian.Uint16(b[12:14]))
	if addrLen == 0 || addrLen > MaxServerAddrLen || len(b) != 14+addrLen {
		return Grant{}, ErrTokenCorrupt
	}
	return Grant{
		ClientID:   binary.BigEndian.Uint64(b[0:8]),
		Timeout:    time.Duration(binary.BigEndian.Uint32(b[8:12])) * time.Second,
		ServerAddr: string(b[14 : 14+addrLen]),
	}, nil
}
