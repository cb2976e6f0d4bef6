package protocol

import (
	"fmt"

	"github.com/stepnet-protocol/stepnet/internal/protocol/bitpack"
)

// Kind identifies one member of the closed message set.
type Kind uint16

const (
	KindProbe      Kind = 1
	KindFailOnRead Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindProbe:
		return "probe"
	case KindFailOnRead:
		return "fail_on_read"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// Message is one codec unit inside a payload batch.
type Message interface {
	Kind() Kind
	// SizeBits is the exact encoded body size, known before encoding.
	SizeBits() int
	Encode(w *bitpack.Writer) error
	Decode(r *bitpack.Reader) error
}

// New returns an empty message of the given kind.
func New(k Kind) (Message, error) {
	switch k {
	case KindProbe:
		return &Probe{}, nil
	case KindFailOnRead:
		return &FailOnRead{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(k))
	}
}

// Probe carries a 16-bit sequence number followed by filler whose bit
// length is BitWidth(sequence). The filler content is derived from the
// sequence so decode detects misalignment; only its length matters.
type Probe struct {
	Sequence uint16
}

func (p *Probe) Kind() Kind { return KindProbe }

func (p *Probe) SizeBits() int { return 16 + int(BitWidth(p.Sequence)) }

func (p *Probe) Encode(w *bitpack.Writer) error {
	return encodeProbeBody(w, p.Sequence)
}

func (p *Probe) Decode(r *bitpack.Reader) error {
	seq, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	p.Sequence = uint16(seq)

	width := BitWidth(p.Sequence)
	words := width / 32
	rem := int(width % 32)
	for i := uint(0); i < words; i++ {
		v, err := r.ReadBits(32)
		if err != nil {
			return err
		}
		if v != fillerWord(p.Sequence, i) {
			return fmt.Errorf("%w: word %d of sequence %d", ErrFillerMismatch, i, p.Sequence)
		}
	}
	if rem > 0 {
		v, err := r.ReadBits(rem)
		if err != nil {
			return err
		}
		want := fillerWord(p.Sequence, words) & (1<<rem - 1)
		if v != want {
			return fmt.Errorf("%w: remainder of sequence %d", ErrFillerMismatch, p.Sequence)
		}
	}
	return nil
}

// FailOnRead encodes exactly like a probe but always refuses to decode.
// It exists to exercise per-message fault isolation in batch handling.
type FailOnRead struct {
	Sequence uint16
}

func (f *FailOnRead) Kind() Kind { return KindFailOnRead }

func (f *FailOnRead) SizeBits() int { return 16 + int(BitWidth(f.Sequence)) }

func (f *FailOnRead) Encode(w *bitpack.Writer) error {
	return encodeProbeBody(w, f.Sequence)
}

func (f *FailOnRead) Decode(r *bitpack.Reader) error {
	return ErrFaultInjected
}

func encodeProbeBody(w *bitpack.Writer, seq uint16) error {
	if err := w.WriteBits(uint32(seq), 16); err != nil {
		return err
	}
	width := BitWidth(seq)
	words := width / 32
	rem := int(width % 32)
	for i := uint(0); i < words; i++ {
		if err := w.WriteBits(fillerWord(seq, i), 32); err != nil {
			return err
		}
	}
	if rem > 0 {
		if err := w.WriteBits(fillerWord(seq, words), rem); err != nil {
			return err
		}
	}
	return nil
}

func fillerWord(seq uint16, i uint) uint32 {
	return (uint32(seq) + uint32(i) + 1) * 0x9E3779B9
}
