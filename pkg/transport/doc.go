// Package transport carries link messages between an accessory and its
// centrals.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │   StreamConn
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// A PacketConn maps one message onto one datagram instead, which is how
// the in-memory Pipe stands in for the radio link.
//
// The Server serves a Coordinator: discovery, reads, writes and
// subscriptions arrive as requests; subscribed attribute changes leave as
// notifications with message id 0. Errors travel as a wire.Status plus a
// detail message, and the Client maps them back to the package sentinels
// (see StatusFor and ErrorFor).
package transport
