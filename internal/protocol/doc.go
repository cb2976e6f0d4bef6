// Package protocol owns the payload message wire contract.
//
// Ownership boundary:
// - bit-width table mapping sequence numbers to body sizes
// - the closed message kind set and per-kind codecs
// - batch framing with per-message fault isolation
package protocol
