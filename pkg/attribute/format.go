package attribute

import "fmt"

// Format is the encoding tag of a value.
type Format uint8

// Value formats.
const (
	FormatUnknown Format = iota
	FormatBool
	FormatUint8
	FormatUint16
	FormatUint32
	FormatUint64
	FormatInt32
	FormatInt64
	FormatFloat32
	FormatFloat64
	FormatString
	FormatUUID
	FormatData
	FormatList
)

var formatNames = []string{
	"unknown", "bool", "uint8", "uint16", "uint32", "uint64", "int32", "int64",
	"float32", "float64", "string", "uuid", "data", "list",
}

// String returns the format name.
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", f)
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f > FormatUnknown && int(f) < len(formatNames)
}

// Size returns the encoded length of fixed-width formats, or 0 for
// variable-length ones.
func (f Format) Size() int {
	switch f {
	case FormatBool, FormatUint8:
		return 1
	case FormatUint16:
		return 2
	case FormatUint32, FormatInt32, FormatFloat32:
		return 4
	case FormatUint64, FormatInt64, FormatFloat64:
		return 8
	case FormatUUID:
		return 16
	default:
		return 0
	}
}
