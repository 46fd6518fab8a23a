// Package urlhash computes the 64-bit url_hash that places.sqlite indexes
// moz_places rows by. The value must match the browser's own hash exactly.
package urlhash

import (
	"errors"
	"math/bits"
	"strings"
)

// ErrMissingProtocol is returned when a URL has no ':' protocol separator.
var ErrMissingProtocol = errors.New("URL is missing the protocol")

const goldenRatio uint32 = 0x9E3779B9

// Simple hashes the raw bytes of text with the golden ratio accumulator and
// returns the 32-bit result zero-extended to 64 bits.
func Simple(text string) uint64 {
	var h uint32
	for i := 0; i < len(text); i++ {
		h = goldenRatio * (bits.RotateLeft32(h, 5) ^ uint32(text[i]))
	}
	return uint64(h)
}

// Hash returns the url_hash of url: the low 16 bits of the protocol hash in
// the upper half, plus the hash of the whole URL.
func Hash(url string) (uint64, error) {
	idx := strings.IndexByte(url, ':')
	if idx < 0 {
		return 0, ErrMissingProtocol
	}
	return ((Simple(url[:idx]) & 0x0000FFFF) << 32) + Simple(url), nil
}
