package protocol

// widthTable drives the serialized body size of probe messages. The body
// length in bits is a pure function of the 16-bit sequence number, so
// encoder and decoder agree without carrying a length on the message
// itself. Any disagreement is framing corruption, not a recoverable
// condition.
var widthTable = [21]uint{
	1, 320, 120, 4, 256, 45, 11,
	13, 101, 100, 84, 95, 203, 2,
	3, 8, 512, 5, 3, 7, 50,
}

// MaxBodyBits is the widest body widthTable can produce.
const MaxBodyBits = 512

// BitWidth returns the probe body size in bits for a sequence number.
func BitWidth(sequence uint16) uint {
	return widthTable[int(sequence)%len(widthTable)]
}
