// Package attribute implements the accessory's addressable state model.
//
// The model follows a simple hierarchy:
//
//	Table (published accessory)
//	└── Service (type UUID, primary flag)
//	    └── Descriptor (type UUID, format, properties)
//
// A Descriptor is one of three kinds:
//
//   - Scalar: a single value of a fixed Format.
//   - List: an ordered sequence of values that share one item Format.
//   - Virtual: computed on every read from other attributes; never written.
//
// Publishing services into a Table assigns every service and attribute a
// Handle. Handles are the transport-level addresses used by reads, writes
// and notifications for as long as the table lives.
//
// Values travel as bytes in a self-describing layout chosen by the Format:
// little-endian fixed-width integers and floats, length-prefixed UTF-8
// strings, raw 16-byte UUIDs, and opaque data. Lists are a uint16 count
// followed by uint16-length-prefixed items.
package attribute
