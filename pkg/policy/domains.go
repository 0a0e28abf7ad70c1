package policy

import (
	"net/url"
	"strings"
)

// DomainPolicy classifies evidence URLs against configured blacklist and
// whitelist domain suffixes. Matching is on host suffix with a dot boundary,
// so "example.com" covers "news.example.com" but not "notexample.com".
type DomainPolicy struct {
	blacklist []string
	whitelist []string
}

// NewDomainPolicy builds a policy from suffix lists. Entries are normalized
// to lower case with any leading dot stripped.
func NewDomainPolicy(blacklist, whitelist []string) *DomainPolicy {
	return &DomainPolicy{
		blacklist: normalizeSuffixes(blacklist),
		whitelist: normalizeSuffixes(whitelist),
	}
}

func normalizeSuffixes(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Blacklisted reports whether the URL's host falls under a blacklisted suffix.
// Unparseable URLs are treated as blacklisted.
func (p *DomainPolicy) Blacklisted(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	host, ok := hostOf(rawURL)
	if !ok {
		return true
	}
	return matchesSuffix(host, p.blacklist)
}

// Whitelisted reports whether the URL's host falls under a whitelisted suffix.
func (p *DomainPolicy) Whitelisted(rawURL string) bool {
	host, ok := hostOf(rawURL)
	if !ok {
		return false
	}
	return matchesSuffix(host, p.whitelist)
}

// TrustScore maps a URL to its per-source trust weight: 1.0 whitelisted,
// 0.0 blacklisted, 0.7 unknown.
func (p *DomainPolicy) TrustScore(rawURL string) float64 {
	switch {
	case p.Blacklisted(rawURL):
		return 0.0
	case p.Whitelisted(rawURL):
		return 1.0
	default:
		return 0.7
	}
}

func hostOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

func matchesSuffix(host string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
