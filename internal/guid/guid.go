// Package guid generates the 12 character identifiers places.sqlite assigns
// to new moz_places rows.
package guid

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Length is the number of characters in a generated GUID.
const Length = 12

// byteLen is the number of random bytes that encode to exactly Length chars.
const byteLen = Length / 4 * 3

// Generator draws GUIDs from an entropy source.
type Generator struct {
	source io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{source: rand.Reader}
}

// NewWithSource returns a Generator reading entropy from r. Tests use this to
// supply deterministic bytes.
func NewWithSource(r io.Reader) *Generator {
	return &Generator{source: r}
}

// Generate returns a new URL-safe base64 GUID.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, byteLen)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}
