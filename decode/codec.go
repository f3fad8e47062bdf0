package decode

// Codec identifies the compressed stream format. The numeric values are
// part of the integer boundary.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
)

// String returns the codec's short name.
func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool { return c == CodecH264 || c == CodecHEVC }
