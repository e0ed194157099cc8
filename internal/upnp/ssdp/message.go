package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Notification sub types.
const (
	NTSAlive  = "ssdp:alive"
	NTSByeBye = "ssdp:byebye"
)

// PacketKind classifies a received datagram by its start line.
type PacketKind int

const (
	KindSearch PacketKind = iota + 1
	KindNotify
	KindResponse
)

// String returns the kind as it appears on the wire.
func (k PacketKind) String() string {
	switch k {
	case KindSearch:
		return "M-SEARCH"
	case KindNotify:
		return "NOTIFY"
	case KindResponse:
		return "HTTP/1.1 200 OK"
	default:
		return "unknown"
	}
}

// Packet is a parsed SSDP datagram. Header lookups are case-insensitive.
type Packet struct {
	Kind   PacketKind
	Header textproto.MIMEHeader
}

// ParsePacket parses an SSDP datagram.
//
// Only M-SEARCH and NOTIFY requests and 200 responses are recognised;
// anything else returns ErrMalformed.
func ParsePacket(data []byte) (*Packet, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))

	line, err := r.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: start line %q", ErrMalformed, line)
	}

	var kind PacketKind
	switch {
	case strings.EqualFold(fields[0], "M-SEARCH"):
		kind = KindSearch
	case strings.EqualFold(fields[0], "NOTIFY"):
		kind = KindNotify
	case strings.HasPrefix(strings.ToUpper(fields[0]), "HTTP/") && fields[1] == "200":
		kind = KindResponse
	default:
		return nil, fmt.Errorf("%w: start line %q", ErrMalformed, line)
	}

	hdr, err := r.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Packet{Kind: kind, Header: hdr}, nil
}

// Alive reports a device that is, or still is, available.
type Alive struct {
	Location string
	NT       string
	MaxAge   time.Duration
	Server   string
	USN      string
}

// ByeBye reports a device that has left the network.
type ByeBye struct {
	USN string
}

// alive extracts an Alive from a NOTIFY ssdp:alive or a search response.
// A search response carries the notification type in ST.
func (p *Packet) alive() (Alive, error) {
	a := Alive{
		Location: p.Header.Get("Location"),
		NT:       p.Header.Get("NT"),
		Server:   p.Header.Get("Server"),
		USN:      p.Header.Get("USN"),
	}
	if p.Kind == KindResponse {
		a.NT = p.Header.Get("ST")
	}
	maxAge, ok := parseMaxAge(p.Header.Get("Cache-Control"))
	switch {
	case a.USN == "":
		return Alive{}, fmt.Errorf("%w: USN", ErrMissingHeader)
	case a.NT == "":
		return Alive{}, fmt.Errorf("%w: NT", ErrMissingHeader)
	case a.Location == "":
		return Alive{}, fmt.Errorf("%w: LOCATION", ErrMissingHeader)
	case !ok:
		return Alive{}, fmt.Errorf("%w: CACHE-CONTROL max-age", ErrMissingHeader)
	}
	a.MaxAge = maxAge
	return a, nil
}

// parseMaxAge reads the max-age directive of a CACHE-CONTROL value.
func parseMaxAge(v string) (time.Duration, bool) {
	for _, directive := range strings.Split(v, ",") {
		name, value, found := strings.Cut(directive, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// message accumulates a CRLF-terminated SSDP message.
type message struct {
	b strings.Builder
}

func newMessage(startLine string) *message {
	m := &message{}
	m.b.WriteString(startLine)
	m.b.WriteString("\r\n")
	return m
}

func (m *message) header(name, value string) *message {
	m.b.WriteString(name)
	m.b.WriteString(": ")
	m.b.WriteString(value)
	m.b.WriteString("\r\n")
	return m
}

func (m *message) bytes() []byte {
	return []byte(m.b.String() + "\r\n")
}

// searchMessage builds an M-SEARCH request for target.
func searchMessage(target string, mx int) []byte {
	return newMessage("M-SEARCH * HTTP/1.1").
		header("HOST", GroupAddress).
		header("MAN", `"ssdp:discover"`).
		header("MX", strconv.Itoa(mx)).
		header("ST", target).
		bytes()
}
