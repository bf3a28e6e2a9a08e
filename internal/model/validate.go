package model

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) <= 254 && emailRe.MatchString(s)
}

// SanitizeURL normalizes a scraped website URL. A missing scheme becomes
// https. Hosts that resolve to loopback, private, or link-local literals are
// rejected so research never fetches internal addresses.
func SanitizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("model: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "model: parse url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("model: unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", eris.Errorf("model: url %q has no host", raw)
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return "", eris.Errorf("model: blocked host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return "", eris.Errorf("model: blocked address %q", host)
		}
	}
	u.Fragment = ""
	return u.String(), nil
}

// DomainOf returns the host of a website URL without a leading "www.".
func DomainOf(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
