package protocol

import (
	"fmt"

	"github.com/stepnet-protocol/stepnet/internal/protocol/bitpack"
)

const (
	kindBits   = 16
	lengthBits = 16

	// DefaultMaxMessages bounds how many messages one batch may carry.
	DefaultMaxMessages = 64
)

// DecodeFault records one message that failed to decode inside a batch.
type DecodeFault struct {
	Index int
	Kind  Kind
	Err   error
}

// WriteBatch frames messages as [kind:16][bodyBits:16][body] records and
// returns the flushed bytes. Every message must encode exactly the size
// it declares; a mismatch is framing corruption and aborts the batch.
func WriteBatch(msgs []Message, maxBytes int) ([]byte, error) {
	w := bitpack.NewWriter(maxBytes)
	for i, m := range msgs {
		size := m.SizeBits()
		if err := w.WriteBits(uint32(m.Kind()), kindBits); err != nil {
			return nil, fmt.Errorf("message %d kind: %w", i, err)
		}
		if err := w.WriteBits(uint32(size), lengthBits); err != nil {
			return nil, fmt.Errorf("message %d size: %w", i, err)
		}
		start := w.BitsWritten()
		if err := m.Encode(w); err != nil {
			return nil, fmt.Errorf("message %d body: %w", i, err)
		}
		if got := w.BitsWritten() - start; got != size {
			return nil, fmt.Errorf("%w: message %d wrote %d bits, declared %d", ErrSizeMismatch, i, got, size)
		}
	}
	return w.Bytes(), nil
}

// ReadBatch decodes every message in data. A message whose decode fails
// is skipped over its declared body size and reported as a DecodeFault;
// sibling messages are unaffected. The returned error reports structural
// corruption of the batch itself, never a per-message failure.
func ReadBatch(data []byte, maxMessages int) ([]Message, []DecodeFault, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	r := bitpack.NewReader(data)
	var msgs []Message
	var faults []DecodeFault
	index := 0
	for r.Remaining() >= kindBits+lengthBits {
		if index >= maxMessages {
			return msgs, faults, fmt.Errorf("%w: more than %d messages", ErrBatchTooLarge, maxMessages)
		}
		k, err := r.ReadBits(kindBits)
		if err != nil {
			return msgs, faults, ErrTruncatedBatch
		}
		size, err := r.ReadBits(lengthBits)
		if err != nil {
			return msgs, faults, ErrTruncatedBatch
		}
		if int(size) > r.Remaining() {
			return msgs, faults, fmt.Errorf("%w: message %d declares %d bits, %d remain", ErrTruncatedBatch, index, size, r.Remaining())
		}

		start := r.BitsRead()
		m, err := New(Kind(k))
		if err != nil {
			if skipErr := r.Skip(int(size)); skipErr != nil {
				return msgs, faults, ErrTruncatedBatch
			}
			faults = append(faults, DecodeFault{Index: index, Kind: Kind(k), Err: err})
			index++
			continue
		}

		if err := m.Decode(r); err != nil {
			consumed := r.BitsRead() - start
			if consumed > int(size) {
				return msgs, faults, fmt.Errorf("%w: message %d read past declared size", ErrSizeMismatch, index)
			}
			if skipErr := r.Skip(int(size) - consumed); skipErr != nil {
				return msgs, faults, ErrTruncatedBatch
			}
			faults = append(faults, DecodeFault{Index: index, Kind: Kind(k), Err: err})
			index++
			continue
		}

		if got := r.BitsRead() - start; got != int(size) {
			return msgs, faults, fmt.Errorf("%w: message %d read %d bits, declared %d", ErrSizeMismatch, index, got, size)
		}
		msgs = append(msgs, m)
		index++
	}
	return msgs, faults, nil
}
