// Package bitpack packs and unpacks integer fields at bit granularity.
// Values are accumulated least-significant-bit first and flushed to bytes,
// so a stream of n bits occupies exactly ceil(n/8) bytes on the wire.
package bitpack

import "errors"

const (
	// MaxFieldBits is the widest single field a Writer or Reader accepts.
	MaxFieldBits = 32
)

var (
	ErrBitCount    = errors.New("bitpack: bit count out of range")
	ErrOverflow    = errors.New("bitpack: write exceeds capacity")
	ErrShortBuffer = errors.New("bitpack: read past end of buffer")
)

// Writer accumulates bit fields into a byte buffer.
type Writer struct {
	buf      []byte
	scratch  uint64
	pending  int
	written  int
	capacity int
}

// NewWriter returns a Writer bounded to maxBytes of output.
func NewWriter(maxBytes int) *Writer {
	return &Writer{
		buf:      make([]byte, 0, maxBytes),
		capacity: maxBytes * 8,
	}
}

// WriteBits appends the low `bits` bits of v. Fields wider than
// MaxFieldBits must be split by the caller.
func (w *Writer) WriteBits(v uint32, bits int) error {
	if bits < 1 || bits > MaxFieldBits {
		return ErrBitCount
	}
	if w.written+bits > w.capacity {
		return ErrOverflow
	}
	if bits < 32 {
		v &= (1 << bits) - 1
	}
	w.scratch |= uint64(v) << w.pending
	w.pending += bits
	w.written += bits
	for w.pending >= 8 {
		w.buf = append(w.buf, byte(w.scratch))
		w.scratch >>= 8
		w.pending -= 8
	}
	return nil
}

// Flush pads the final partial byte with zero bits. Idempotent.
func (w *Writer) Flush() {
	if w.pending > 0 {
		w.buf = append(w.buf, byte(w.scratch))
		w.scratch = 0
		w.pending = 0
	}
}

// BitsWritten reports the exact number of bits written, before padding.
func (w *Writer) BitsWritten() int { return w.written }

// Bytes returns the flushed buffer.
func (w *Writer) Bytes() []byte {
	w.Flush()
	return w.buf
}

// Reader consumes bit fields from a byte buffer.
type Reader struct {
	buf     []byte
	scratch uint64
	pending int
	pos     int
	read    int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// ReadBits consumes exactly `bits` bits and returns them in the low
// bits of the result.
func (r *Reader) ReadBits(bits int) (uint32, error) {
	if bits < 1 || bits > MaxFieldBits {
		return 0, ErrBitCount
	}
	for r.pending < bits {
		if r.pos >= len(r.buf) {
			return 0, ErrShortBuffer
		}
		r.scratch |= uint64(r.buf[r.pos]) << r.pending
		r.pos++
		r.pending += 8
	}
	v := uint32(r.scratch)
	if bits < 32 {
		v &= (1 << bits) - 1
	}
	r.scratch >>= bits
	r.pending -= bits
	r.read += bits
	return v, nil
}

// Skip discards exactly `bits` bits.
func (r *Reader) Skip(bits int) error {
	for bits > 0 {
		n := bits
		if n > MaxFieldBits {
			n = MaxFieldBits
		}
		if _, err := r.ReadBits(n); err != nil {
			return err
		}
		bits -= n
	}
	return nil
}

// BitsRead reports the exact number of bits consumed so far.
func (r *Reader) BitsRead() int { return r.read }

// Remaining reports the number of unread bits, counting buffered bytes
// not yet pulled into the scratch word.
func (r *Reader) Remaining() int {
	return (len(r.buf)-r.pos)*8 + r.pending
}
