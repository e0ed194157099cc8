package gena

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Handshake header values.
const (
	NTEvent       = "upnp:event"
	NTSPropChange = "upnp:propchange"

	// DefaultTimeout applies when a SUBSCRIBE carries no usable TIMEOUT.
	DefaultTimeout = 1800 * time.Second

	// MaxTimeout caps requested timeouts.
	MaxTimeout = 24 * time.Hour
)

// ParseCallbacks extracts the URLs of a CALLBACK header, written as one or
// more "<url>" tokens. Only absolute http URLs are kept.
func ParseCallbacks(header string) ([]string, error) {
	var out []string
	rest := header
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			break
		}
		raw := strings.TrimSpace(rest[start+1 : start+end])
		rest = rest[start+end+1:]

		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			continue
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, ErrNoCallback
	}
	return out, nil
}

// ParseTimeout reads a "Second-n" TIMEOUT header. Missing, infinite and
// unparseable values yield DefaultTimeout; values above MaxTimeout are
// clamped to it.
func ParseTimeout(header string) time.Duration {
	v := strings.TrimSpace(header)
	if len(v) < len("Second-") || !strings.EqualFold(v[:len("Second-")], "Second-") {
		return DefaultTimeout
	}
	secs, err := strconv.ParseUint(v[len("Second-"):], 10, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		return MaxTimeout
	case err != nil || secs == 0:
		return DefaultTimeout
	case secs > uint64(MaxTimeout/time.Second):
		return MaxTimeout
	}
	return time.Duration(secs) * time.Second
}

// FormatTimeout renders d as a TIMEOUT header value.
func FormatTimeout(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}
