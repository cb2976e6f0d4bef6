// Package session implements the client/server session layer the
// drivers run against.
//
// Ownership boundary:
// - session lifecycle state machine and its timeout exits
// - handshake, keepalive, payload and disconnect wire packets
// - UDP conduit and the in-process loopback bridge
// - runtime handle scoping shared services to a run
//
// Packet encryption, reliable delivery and congestion control are out
// of scope; payloads travel as opaque batches framed by package
// protocol.
package session
