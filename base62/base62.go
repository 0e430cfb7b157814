// Package base62 implements base62 encoding of unsigned 32-bit integers.
// It backs the checksum suffix of MeshBoard API keys.
package base62

import (
	"errors"
	"math"
	"strings"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base     = uint32(len(alphabet))

	// MaxEncodedLen is the number of digits required to encode math.MaxUint32.
	MaxEncodedLen = 6
)

var (
	// ErrEmptyString is returned by Decode on empty input.
	ErrEmptyString = errors.New("empty string")
	// ErrInvalidChar is returned by Decode when input contains a character outside the alphabet.
	ErrInvalidChar = errors.New("invalid character")
	// ErrOverflow is returned by Decode when the input does not fit into a uint32.
	ErrOverflow = errors.New("integer overflow")
)

// Encode encodes a uint32 value to a base62 string.
func Encode(n uint32) string {
	if n < base {
		return string(alphabet[n])
	}

	buf := [MaxEncodedLen]byte{}
	idx := len(buf)
	for n > 0 {
		idx--
		buf[idx] = alphabet[n%base]
		n /= base
	}

	return string(buf[idx:])
}

// EncodePadded encodes a uint32 value and left-pads the result with '0' to
// width characters. Key checksums rely on the fixed width to split the secret
// from the checksum without a separator.
func EncodePadded(n uint32, width int) string {
	encoded := Encode(n)
	if len(encoded) >= width {
		return encoded
	}
	return strings.Repeat("0", width-len(encoded)) + encoded
}

// Decode decodes a base62 string to a uint32 value.
func Decode(encoded string) (uint32, error) {
	if len(encoded) == 0 {
		return 0, ErrEmptyString
	}

	var decoded uint32
	for _, char := range encoded {
		index := strings.IndexRune(alphabet, char)
		if index < 0 {
			return 0, ErrInvalidChar
		}
		if decoded > (math.MaxUint32-uint32(index))/base {
			return 0, ErrOverflow
		}
		decoded = decoded*base + uint32(index)
	}

	return decoded, nil
}
