package testutil

// ByteStream hands out deterministic values derived from fuzz input.
//
// Reads past the end return zero values, so the same input always yields
// the same sequence.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream returns a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, n). n <= 0 yields 0.
func (s *ByteStream) NextInt(n int) int {
	if n <= 0 {
		return 0
	}

	return int(s.NextByte()) % n
}

// NextBool returns the low bit of the next byte.
func (s *ByteStream) NextBool() bool {
	return s.NextByte()&1 == 1
}

// NextPayload returns a lowercase string of 1 to maxLen letters.
func (s *ByteStream) NextPayload(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	out := make([]byte, 1+s.NextInt(maxLen))
	for i := range out {
		out[i] = 'a' + s.NextByte()%26
	}

	return string(out)
}
