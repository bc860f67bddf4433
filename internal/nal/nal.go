// Package nal provides start-code-level parsing of H.264 Annex B elementary
// streams and the IDR-stripping transform that breaks inter-frame prediction
// ("datamoshing"). Only the 4-byte start code and the NAL type nibble are
// interpreted; no semantic slice parsing happens here.
package nal

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
)

// Type extracts the NAL type from the header byte following a start code.
func Type(header byte) byte {
	return header & 0x1F
}

// IsKeyframe reports whether the NAL type is an IDR slice (type 5).
func IsKeyframe(nalType byte) bool {
	return nalType == TypeIDR
}

// startCodeAt reports whether a 4-byte start code (0x00000001) begins at i.
func startCodeAt(data []byte, i int) bool {
	return i+3 < len(data) &&
		data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1
}

// Unit describes one start-code-delimited unit in an elementary stream.
// It is an index entry, not a copy: Offset points at the 4-byte start code
// within the original buffer.
type Unit struct {
	Offset int
	Type   byte
}

// Units indexes every 4-byte start code in data along with the type nibble
// of the byte that follows it. A start code at end-of-input with no header
// byte after it is not indexed.
func Units(data []byte) []Unit {
	var units []Unit
	for i := 0; i+4 < len(data); i++ {
		if startCodeAt(data, i) {
			units = append(units, Unit{Offset: i, Type: Type(data[i+4])})
			i += 3
		}
	}
	return units
}

// StripIDR returns a copy of data with every IDR (type 5) unit omitted: at
// each 4-byte start code the following type nibble is read, and if it equals
// TypeIDR all bytes from that start code up to (but not including) the next
// detected start code are excluded from the output. Every other byte is
// copied through in order, including whatever trails the final unit.
//
// Detection is purely positional over the flat byte sequence: a start code
// beginning inside an already-excluded region still terminates the exclusion
// (and opens a new one if it is itself type 5). The input is never mutated;
// the result is always a fresh buffer no longer than the input.
func StripIDR(data []byte) []byte {
	out := make([]byte, 0, len(data))
	excluding := false
	for i := 0; i < len(data); i++ {
		if startCodeAt(data, i) {
			excluding = i+4 < len(data) && Type(data[i+4]) == TypeIDR
		}
		if !excluding {
			out = append(out, data[i])
		}
	}
	return out
}
