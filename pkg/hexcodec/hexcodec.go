// Package hexcodec converts between raw bytes and their ASCII hex form, the
// encoding used to pass packet payloads and filter expressions across process
// boundaries.
package hexcodec

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOddLength is returned for input with a dangling nibble. Odd input is
	// rejected rather than padded.
	ErrOddLength = errors.New("hexcodec: odd length hex string")
	// ErrShortBuffer is returned when dst cannot hold the decoded bytes.
	ErrShortBuffer = errors.New("hexcodec: destination buffer too small")
)

// InvalidByteError reports a character outside [0-9a-fA-F] at Offset in the
// input.
type InvalidByteError struct {
	Offset int
	Byte   byte
}

func (e InvalidByteError) Error() string {
	return fmt.Sprintf("hexcodec: invalid byte %#U at offset %d", rune(e.Byte), e.Offset)
}

// DecodedLen returns the number of bytes n hex characters decode to.
func DecodedLen(n int) int {
	return n / 2
}

// Decode writes the bytes encoded by src into dst and returns how many bytes
// were written. On error the contents of dst are unspecified.
func Decode(dst, src []byte) (int, error) {
	if len(src)%2 != 0 {
		return 0, ErrOddLength
	}
	if len(dst) < DecodedLen(len(src)) {
		return 0, ErrShortBuffer
	}

	for i := 0; i < len(src)/2; i++ {
		hi, ok := fromHexChar(src[2*i])
		if !ok {
			return i, InvalidByteError{Offset: 2 * i, Byte: src[2*i]}
		}
		lo, ok := fromHexChar(src[2*i+1])
		if !ok {
			return i, InvalidByteError{Offset: 2*i + 1, Byte: src[2*i+1]}
		}
		dst[i] = hi<<4 | lo
	}
	return DecodedLen(len(src)), nil
}

// DecodeString returns the bytes represented by s.
func DecodeString(s string) ([]byte, error) {
	src := []byte(s)
	dst := make([]byte, DecodedLen(len(src)))
	n, err := Decode(dst, src)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// AppendDecode appends the bytes represented by src to dst.
func AppendDecode(dst, src []byte) ([]byte, error) {
	n := len(dst)
	dst = grow(dst, DecodedLen(len(src)))
	written, err := Decode(dst[n:], src)
	if err != nil {
		return dst[:n], err
	}
	return dst[:n+written], nil
}

// EncodeToString returns the lower case hex form of src.
func EncodeToString(src []byte) string {
	return hex.EncodeToString(src)
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b[:len(b)+n]
	}
	out := make([]byte, len(b)+n)
	copy(out, b)
	return out
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
