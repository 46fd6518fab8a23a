package takeout

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Stream pulls one history element at a time from the underlying reader, so
// memory use does not grow with the size of the export.
type Stream struct {
	dec   *json.Decoder
	index int

	started bool
	done    bool
}

// NewStream returns a Stream reading from r. The document is not touched
// until the first call to Next.
func NewStream(r io.Reader) *Stream {
	return &Stream{dec: json.NewDecoder(r)}
}

// Next returns the next entry.
func (s *Stream) Next() (Entry, error) {
	if s.done {
		return Entry{}, io.EOF
	}
	if !s.started {
		if err := s.seekHistory(); err != nil {
			s.done = true
			return Entry{}, err
		}
		s.started = true
	}

	if !s.dec.More() {
		s.done = true
		if _, err := s.dec.Token(); err != nil {
			return Entry{}, fmt.Errorf("%w: close %q: %v", ErrMalformedDocument, HistoryKey, err)
		}
		return Entry{}, io.EOF
	}

	var raw json.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		s.done = true
		return Entry{}, fmt.Errorf("%w: element %d: %v", ErrMalformedDocument, s.index, err)
	}
	index := s.index
	s.index++
	return decodeEntry(index, raw)
}

// seekHistory advances the decoder to the first element of the history array,
// skipping any other top-level members.
func (s *Stream) seekHistory() error {
	if err := s.expectDelim('{'); err != nil {
		return err
	}

	for s.dec.More() {
		tok, err := s.dec.Token()
		if err != nil {
			return fmt.Errorf("%w: read key: %v", ErrMalformedDocument, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", ErrMalformedDocument, tok)
		}

		if key == HistoryKey {
			return s.expectDelim('[')
		}

		var skip json.RawMessage
		if err := s.dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: skip %q: %v", ErrMalformedDocument, key, err)
		}
	}
	return fmt.Errorf("%w: missing %q", ErrMalformedDocument, HistoryKey)
}

func (s *Stream) expectDelim(want json.Delim) error {
	tok, err := s.dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if tok == nil {
		return fmt.Errorf("%w: expected %q, got null", ErrMalformedDocument, want)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedDocument, want, tok)
	}
	return nil
}
