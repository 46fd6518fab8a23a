// Package weburl parses history URLs into the serialized form places.sqlite
// stores, and derives the origin and reversed host of a URL.
//
// Special-scheme URLs are serialized the way the URL Standard does it, since
// moz_places.url and url_hash must match what the browser writes. The scheme
// and host are lower-cased and IDNA hosts are converted to ASCII. Default
// ports are dropped and dot segments resolved. Path, query and fragment keep
// their input bytes apart from the characters in the standard's
// percent-encode sets. URLs with any other scheme are kept as they were
// exported.
package weburl

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrRelativeURL is returned for input without a scheme.
	ErrRelativeURL = errors.New("URL has no scheme")

	// ErrMissingHost is returned for special-scheme URLs without a host.
	ErrMissingHost = errors.New("URL has no host")

	// ErrOpaqueOrigin is returned by Origin for URLs whose origin cannot be
	// expressed as scheme, host and port.
	ErrOpaqueOrigin = errors.New("opaque URLs are not supported")
)

// defaultPorts lists the special schemes and their known default port.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
	"ftp":   21,
}

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// URL is a parsed and normalized history URL.
type URL struct {
	Scheme string
	// Host is ASCII and lower-case, without port. IPv6 literals keep their
	// brackets. Empty for URLs without an authority.
	Host string
	// Port is the port number, or 0 when none was given or it was the default.
	Port int

	serialized string
}

// Parse normalizes raw into a URL.
func Parse(raw string) (*URL, error) {
	raw = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return nil, fmt.Errorf("parse %q: %w", raw, ErrRelativeURL)
	}

	if _, special := defaultPorts[scheme]; !special {
		u := &URL{Scheme: scheme, serialized: scheme + ":" + rest}
		if strings.HasPrefix(rest, "//") {
			if parsed, err := url.Parse(u.serialized); err == nil {
				u.Host = strings.ToLower(parsed.Hostname())
			}
		}
		return u, nil
	}

	// "https:example.com" is read as "https://example.com". Backslashes
	// count as slashes in special URLs.
	rest = strings.TrimLeft(rest, `/\`)
	end := strings.IndexAny(rest, `/\?#`)
	if end < 0 {
		end = len(rest)
	}
	authority, rest := rest[:end], rest[end:]

	var userinfo string
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfo, authority = authority[:at], authority[at+1:]
	}

	parsed, err := url.Parse(scheme + "://" + authority)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	u, err := fromAuthority(scheme, parsed)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}

	rest, fragment, hasFragment := strings.Cut(rest, "#")
	path, query, hasQuery := strings.Cut(rest, "?")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if ui := serializeUserinfo(userinfo); ui != "" {
		b.WriteString(ui)
		b.WriteByte('@')
	}
	b.WriteString(u.hostPort())
	b.WriteString(serializePath(path))
	if hasQuery {
		b.WriteByte('?')
		b.WriteString(escape(query, specialQuerySet))
	}
	if hasFragment {
		b.WriteByte('#')
		b.WriteString(escape(fragment, fragmentSet))
	}
	u.serialized = b.String()
	return u, nil
}

func fromAuthority(scheme string, parsed *url.URL) (*URL, error) {
	host, err := normalizeHost(parsed.Hostname())
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, ErrMissingHost
	}

	u := &URL{Scheme: scheme, Host: host}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		if port != defaultPorts[scheme] {
			u.Port = port
		}
	}
	return u, nil
}

// Percent-encode sets of the URL Standard. Bytes below 0x20 or above 0x7E
// are always encoded.
const (
	fragmentSet     = " \"<>`"
	specialQuerySet = " \"#<>'"
	pathSet         = " \"#<>?`{}"
	userinfoSet     = pathSet + `/:;=@[\]^|`
)

// escape percent-encodes the bytes of s that are in set. Existing escapes
// are kept as they are.
func escape(s, set string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7E || strings.IndexByte(set, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// serializePath encodes each segment of path and resolves "." and ".."
// segments. An empty path serializes as "/".
func serializePath(path string) string {
	if path != "" {
		path = path[1:]
	}
	segments := strings.Split(strings.ReplaceAll(path, `\`, "/"), "/")

	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		last := i == len(segments)-1
		switch {
		case isDoubleDot(seg):
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		case isSingleDot(seg):
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, escape(seg, pathSet))
		}
	}
	return "/" + strings.Join(out, "/")
}

func isSingleDot(seg string) bool {
	return seg == "." || strings.EqualFold(seg, "%2e")
}

func isDoubleDot(seg string) bool {
	switch strings.ToLower(seg) {
	case "..", ".%2e", "%2e.", "%2e%2e":
		return true
	}
	return false
}

// serializeUserinfo re-encodes the username and password of an authority.
// An empty password drops the ':' and empty credentials drop the '@'.
func serializeUserinfo(userinfo string) string {
	user, pass, _ := strings.Cut(userinfo, ":")
	user, pass = escape(user, userinfoSet), escape(pass, userinfoSet)
	if pass == "" {
		return user
	}
	return user + ":" + pass
}

// splitScheme splits raw at the first ':' when the text before it is a valid
// scheme, returning the lower-cased scheme.
func splitScheme(raw string) (scheme, rest string, ok bool) {
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 {
		return "", "", false
	}
	for i := 0; i < idx; i++ {
		c := raw[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", "", false
		}
	}
	return strings.ToLower(raw[:idx]), raw[idx+1:], true
}

func normalizeHost(host string) (string, error) {
	if host == "" {
		return "", nil
	}
	if strings.Contains(host, ":") {
		return "[" + strings.ToLower(host) + "]", nil
	}
	if isASCII(host) {
		return strings.ToLower(host), nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("convert host %q: %w", host, err)
	}
	return ascii, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (u *URL) hostPort() string {
	if u.Port == 0 {
		return u.Host
	}
	return u.Host + ":" + strconv.Itoa(u.Port)
}

// String returns the serialized URL stored in moz_places.url.
func (u *URL) String() string {
	return u.serialized
}

// IsSpecial reports whether the scheme has a tuple origin.
func (u *URL) IsSpecial() bool {
	_, ok := defaultPorts[u.Scheme]
	return ok
}

// Origin returns the moz_origins (prefix, host) pair for u. The default port
// is folded away for http and https only; every other scheme always carries
// host:port.
func (u *URL) Origin() (prefix, host string, err error) {
	if !u.IsSpecial() {
		return "", "", fmt.Errorf("origin of %s: %w", u.Scheme, ErrOpaqueOrigin)
	}

	port := u.Port
	if port == 0 {
		port = defaultPorts[u.Scheme]
	}

	prefix = u.Scheme + "://"
	switch {
	case u.Scheme == "https" && port == 443, u.Scheme == "http" && port == 80:
		return prefix, u.Host, nil
	default:
		return prefix, u.Host + ":" + strconv.Itoa(port), nil
	}
}

// ReverseHost returns the host reversed with a trailing '.', the form used by
// moz_places.rev_host. Host is ASCII so reversing bytes is safe.
func (u *URL) ReverseHost() string {
	b := make([]byte, 0, len(u.Host)+1)
	for i := len(u.Host) - 1; i >= 0; i-- {
		b = append(b, u.Host[i])
	}
	return string(append(b, '.'))
}
