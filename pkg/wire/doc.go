// Package wire defines the CBOR message types of the accessory link.
//
// The link mirrors a GATT-style attribute protocol: a central discovers the
// accessory's services and attribute handles once per connection, then
// reads, writes and subscribes by handle. The accessory pushes
// notifications for subscribed handles.
//
// # Message Types
//
//   - Request: central to accessory (Discover, Read, Write, Subscribe, Unsubscribe)
//   - Response: accessory to central, matching the request's message id
//   - Notification: accessory to central, message id 0
//
// All maps use integer keys. Requests and responses use disjoint keys for
// their second field (operation vs. status), which lets PeekMessageType
// classify a frame without decoding it fully.
//
// Attribute values are carried as opaque bytes in the attribute's own
// format; structured attribute payloads (requests, roster items, encrypted
// payloads) are themselves encoded with this package's codec.
package wire
