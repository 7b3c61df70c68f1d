package tensor

// DataType represents the element type of an array.
type DataType uint8

// Supported data types.
const (
	Float32 DataType = iota
	Int32
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}
