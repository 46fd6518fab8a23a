package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/runnerr0/placesimport/internal/weburl"
)

// Filter drops entries whose host matches an exclusion rule.
type Filter struct {
	domains []string
	regexes []*regexp.Regexp
}

// NewFilter compiles the exclusion rules. A domain rule matches the domain
// itself and any subdomain; a regex rule is matched against the host.
func NewFilter(domains, patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, d := range domains {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		if d != "" {
			f.domains = append(f.domains, d)
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile exclusion %q: %w", p, err)
		}
		f.regexes = append(f.regexes, re)
	}
	return f, nil
}

// Empty reports whether the filter has no rules.
func (f *Filter) Empty() bool {
	return f == nil || len(f.domains) == 0 && len(f.regexes) == 0
}

// Excluded reports whether rawURL should be skipped. URLs that do not parse
// are never excluded; importing them reports the parse error instead.
func (f *Filter) Excluded(rawURL string) bool {
	if f.Empty() {
		return false
	}
	u, err := weburl.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return f.excludedHost(u.Host)
}

func (f *Filter) excludedHost(host string) bool {
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, re := range f.regexes {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}
