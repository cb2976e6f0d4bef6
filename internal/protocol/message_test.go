package protocol

import (
	"errors"
	"testing"

	"github.com/stepnet-protocol/stepnet/internal/protocol/bitpack"
)

func TestBitWidthMatchesTableForEverySequence(t *testing.T) {
	want := []uint{1, 320, 120, 4, 256, 45, 11, 13, 101, 100, 84, 95, 203, 2, 3, 8, 512, 5, 3, 7, 50}
	for seq := 0; seq <= 65535; seq++ {
		if got := BitWidth(uint16(seq)); got != want[seq%21] {
			t.Fatalf("sequence %d: got width %d want %d", seq, got, want[seq%21])
		}
	}
}

func TestBitWidthBoundaryEntries(t *testing.T) {
	if got := BitWidth(0); got != 1 {
		t.Fatalf("sequence 0: got width %d want 1", got)
	}
	if got := BitWidth(16); got != 512 {
		t.Fatalf("sequence 16: got width %d want 512", got)
	}
}

func TestMaxBodyBitsCoversTable(t *testing.T) {
	for seq := 0; seq < 21; seq++ {
		if w := BitWidth(uint16(seq)); w > MaxBodyBits {
			t.Fatalf("table entry %d exceeds MaxBodyBits: %d", seq, w)
		}
	}
	if BitWidth(16) != MaxBodyBits {
		t.Fatalf("expected table to reach MaxBodyBits")
	}
}

func TestProbeRoundTripConsumesExactBits(t *testing.T) {
	for _, seq := range []uint16{0, 1, 2, 13, 16, 20, 21, 1000, 65535} {
		w := bitpack.NewWriter(256)
		in := &Probe{Sequence: seq}
		if err := in.Encode(w); err != nil {
			t.Fatalf("encode sequence %d: %v", seq, err)
		}
		wantBits := 16 + int(BitWidth(seq))
		if w.BitsWritten() != wantBits {
			t.Fatalf("sequence %d: wrote %d bits, want %d", seq, w.BitsWritten(), wantBits)
		}

		r := bitpack.NewReader(w.Bytes())
		var out Probe
		if err := out.Decode(r); err != nil {
			t.Fatalf("decode sequence %d: %v", seq, err)
		}
		if out.Sequence != seq {
			t.Fatalf("round trip: got sequence %d want %d", out.Sequence, seq)
		}
		if r.BitsRead() != wantBits {
			t.Fatalf("sequence %d: read %d bits, want %d", seq, r.BitsRead(), wantBits)
		}
	}
}

func TestProbeMinimumAndMaximumWidthRoundTrip(t *testing.T) {
	// sequence 0: one remainder bit, no filler words
	w := bitpack.NewWriter(16)
	if err := (&Probe{Sequence: 0}).Encode(w); err != nil {
		t.Fatalf("encode width-1 probe: %v", err)
	}
	if w.BitsWritten() != 17 {
		t.Fatalf("width-1 probe: wrote %d bits, want 17", w.BitsWritten())
	}

	// sequence 16: sixteen filler words, no remainder
	w = bitpack.NewWriter(128)
	if err := (&Probe{Sequence: 16}).Encode(w); err != nil {
		t.Fatalf("encode width-512 probe: %v", err)
	}
	if w.BitsWritten() != 528 {
		t.Fatalf("width-512 probe: wrote %d bits, want 528", w.BitsWritten())
	}
	r := bitpack.NewReader(w.Bytes())
	var out Probe
	if err := out.Decode(r); err != nil {
		t.Fatalf("decode width-512 probe: %v", err)
	}
	if out.Sequence != 16 || r.BitsRead() != 528 {
		t.Fatalf("width-512 probe: sequence %d bits %d", out.Sequence, r.BitsRead())
	}
}

func TestProbeDecodeDetectsCorruptFiller(t *testing.T) {
	w := bitpack.NewWriter(64)
	if err := (&Probe{Sequence: 1}).Encode(w); err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := w.Bytes()
	b[len(b)-1] ^= 0x80

	var out Probe
	err := out.Decode(bitpack.NewReader(b))
	if !errors.Is(err, ErrFillerMismatch) {
		t.Fatalf("expected ErrFillerMismatch, got %v", err)
	}
}

func TestFailOnReadAlwaysRefusesDecode(t *testing.T) {
	w := bitpack.NewWriter(64)
	in := &FailOnRead{Sequence: 5}
	if err := in.Encode(w); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if in.SizeBits() != 16+int(BitWidth(5)) {
		t.Fatalf("declared size %d", in.SizeBits())
	}
	var out FailOnRead
	if err := out.Decode(bitpack.NewReader(w.Bytes())); !errors.Is(err, ErrFaultInjected) {
		t.Fatalf("expected ErrFaultInjected, got %v", err)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(Kind(99)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
