// Package takeout decodes Google Takeout browser history exports
// (BrowserHistory.json) into a sequence of history entries.
package takeout

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// HistoryKey is the top-level member holding the entry array.
const HistoryKey = "Browser History"

// ErrMalformedDocument is returned when the document as a whole cannot be
// read: broken JSON, a non-object top level or a missing history array.
var ErrMalformedDocument = errors.New("malformed takeout document")

// Entry is one history record from the export.
type Entry struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	TimeUsec uint64 `json:"time_usec"`

	// Decoded for logging only.
	PageTransition string `json:"page_transition,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
}

// EntryError reports an element of the history array that could not be
// turned into an Entry. The rest of the document is still readable.
type EntryError struct {
	Index int
	Raw   string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Source yields history entries in document order. Next returns io.EOF after
// the last entry. An *EntryError is not fatal; callers may keep calling Next.
type Source interface {
	Next() (Entry, error)
}

type rawEntry struct {
	URL            *string `json:"url"`
	Title          string  `json:"title"`
	TimeUsec       *uint64 `json:"time_usec"`
	PageTransition string  `json:"page_transition"`
	ClientID       string  `json:"client_id"`
}

func decodeEntry(index int, raw json.RawMessage) (Entry, error) {
	var re rawEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return Entry{}, &EntryError{Index: index, Raw: string(raw), Err: err}
	}
	if re.URL == nil || *re.URL == "" {
		return Entry{}, &EntryError{Index: index, Raw: string(raw), Err: errors.New("missing url")}
	}
	if re.TimeUsec == nil {
		return Entry{}, &EntryError{Index: index, Raw: string(raw), Err: errors.New("missing time_usec")}
	}
	return Entry{
		URL:            *re.URL,
		Title:          re.Title,
		TimeUsec:       *re.TimeUsec,
		PageTransition: re.PageTransition,
		ClientID:       re.ClientID,
	}, nil
}

// SliceSource iterates over an already decoded document.
type SliceSource struct {
	raw  []json.RawMessage
	next int
}

// ReadAll decodes the whole document from r before returning. Element level
// problems are deferred to Next.
func ReadAll(r io.Reader) (*SliceSource, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	history, ok := doc[HistoryKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedDocument, HistoryKey)
	}

	if bytes.Equal(bytes.TrimSpace(history), []byte("null")) {
		return nil, fmt.Errorf("%w: %q is null", ErrMalformedDocument, HistoryKey)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(history, &raw); err != nil {
		return nil, fmt.Errorf("%w: %q is not an array: %v", ErrMalformedDocument, HistoryKey, err)
	}
	return &SliceSource{raw: raw}, nil
}

// Len returns the number of elements in the history array.
func (s *SliceSource) Len() int {
	return len(s.raw)
}

// Next returns the next entry.
func (s *SliceSource) Next() (Entry, error) {
	if s.next >= len(s.raw) {
		return Entry{}, io.EOF
	}
	index := s.next
	s.next++
	return decodeEntry(index, s.raw[index])
}
