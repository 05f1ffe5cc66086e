// Package filter implements the urlFilter pattern syntax used by compiled rules
// and the domain matching used for excluded request domains.
//
// Supported syntax:
//
//	*    any sequence of characters
//	^    a separator character (anything but a letter, digit, '_', '-', '.', '%') or the end of the URL
//	|    at the start or end of the pattern, anchors to the start or end of the URL
//	||   at the start of the pattern, anchors to the start of a domain label in the host
//
// Matching is case-insensitive.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid url filter")

const (
	separatorClass = `(?:[^a-z0-9_\-.%]|$)`
	// scheme, then any number of leading host labels; userinfo is stripped before matching
	domainAnchorPrefix = `^[a-z][a-z0-9+.\-]*://(?:[^/?#@]*\.)?`
)

// Filter is a compiled urlFilter.
type Filter struct {
	pattern        string
	matchAll       bool
	domainAnchored bool
	re             *regexp.Regexp
}

// Compile parses pattern. An empty pattern is rejected.
func Compile(pattern string) (*Filter, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidFilter)
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] > 0x7f {
			return nil, fmt.Errorf("%w: %q contains non-ASCII characters", ErrInvalidFilter, pattern)
		}
	}
	if strings.Trim(pattern, "*") == "" {
		return &Filter{pattern: pattern, matchAll: true}, nil
	}

	body := strings.ToLower(pattern)
	var sb strings.Builder
	domainAnchored := false

	switch {
	case strings.HasPrefix(body, "||"):
		body = body[2:]
		if body == "" || body == "|" {
			return nil, fmt.Errorf("%w: %q has a domain anchor without a domain", ErrInvalidFilter, pattern)
		}
		sb.WriteString(domainAnchorPrefix)
		domainAnchored = true
	case strings.HasPrefix(body, "|"):
		body = body[1:]
		sb.WriteString("^")
	}

	endAnchor := false
	if strings.HasSuffix(body, "|") {
		body = body[:len(body)-1]
		endAnchor = true
	}
	if strings.Contains(body, "|") {
		return nil, fmt.Errorf("%w: %q uses '|' outside an anchor position", ErrInvalidFilter, pattern)
	}

	for _, c := range body {
		switch c {
		case '*':
			sb.WriteString(".*")
		case '^':
			sb.WriteString(separatorClass)
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if endAnchor {
		sb.WriteString("$")
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, pattern, err)
	}
	return &Filter{pattern: pattern, domainAnchored: domainAnchored, re: re}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Filter {
	f, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Pattern returns the source pattern.
func (f *Filter) Pattern() string {
	return f.pattern
}

// Match reports whether rawURL matches the filter.
func (f *Filter) Match(rawURL string) bool {
	if f.matchAll {
		return true
	}
	u := strings.ToLower(rawURL)
	if f.domainAnchored {
		u = stripUserinfo(u)
	}
	return f.re.MatchString(u)
}

// stripUserinfo drops "user:pass@" from the authority so a domain anchor only
// ever sees the host.
func stripUserinfo(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return u
	}
	rest := u[i+3:]
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	if at := strings.LastIndex(rest[:end], "@"); at >= 0 {
		return u[:i+3] + rest[at+1:]
	}
	return u
}

// NormalizeHost lowercases host and strips a port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i >= 0 {
			return host[1:i]
		}
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// DomainMatches reports whether host is domain or one of its subdomains.
func DomainMatches(host, domain string) bool {
	host = NormalizeHost(host)
	domain = NormalizeHost(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// AnyDomainMatches reports whether host matches any of domains.
func AnyDomainMatches(host string, domains []string) bool {
	for _, d := range domains {
		if DomainMatches(host, d) {
			return true
		}
	}
	return false
}
