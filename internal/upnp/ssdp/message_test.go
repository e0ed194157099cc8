package ssdp

import (
	"errors"
	"testing"
	"time"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind PacketKind
		wantErr  error
	}{
		{
			name:     "search",
			raw:      "M-SEARCH * HTTP/1.1\r\nST: ssdp:all\r\nMX: 2\r\n\r\n",
			wantKind: KindSearch,
		},
		{
			name:     "lower case method",
			raw:      "m-search * HTTP/1.1\r\nst: ssdp:all\r\n\r\n",
			wantKind: KindSearch,
		},
		{
			name:     "notify",
			raw:      "NOTIFY * HTTP/1.1\r\nNTS: ssdp:byebye\r\nUSN: uuid:x\r\n\r\n",
			wantKind: KindNotify,
		},
		{
			name:     "response",
			raw:      "HTTP/1.1 200 OK\r\nST: upnp:rootdevice\r\n\r\n",
			wantKind: KindResponse,
		},
		{
			name:     "missing final blank line",
			raw:      "NOTIFY * HTTP/1.1\r\nNTS: ssdp:byebye\r\nUSN: uuid:x\r\n",
			wantKind: KindNotify,
		},
		{name: "error response", raw: "HTTP/1.1 404 Not Found\r\n\r\n", wantErr: ErrMalformed},
		{name: "other method", raw: "GET / HTTP/1.1\r\n\r\n", wantErr: ErrMalformed},
		{name: "empty", raw: "", wantErr: ErrMalformed},
		{name: "single word", raw: "NOTIFY\r\n\r\n", wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := ParsePacket([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePacket() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePacket() error = %v", err)
			}
			if pkt.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", pkt.Kind, tt.wantKind)
			}
		})
	}
}

func TestParsePacketHeadersCaseInsensitive(t *testing.T) {
	pkt, err := ParsePacket([]byte("NOTIFY * HTTP/1.1\r\n" +
		"Usn: uuid:abc\r\n" +
		"nts: ssdp:alive\r\n" +
		"Bootid.Upnp.Org: 7\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	if got := pkt.Header.Get("USN"); got != "uuid:abc" {
		t.Errorf("USN = %q", got)
	}
	if got := pkt.Header.Get("NTS"); got != NTSAlive {
		t.Errorf("NTS = %q", got)
	}
	if got := pkt.Header.Get("BOOTID.UPNP.ORG"); got != "7" {
		t.Errorf("BOOTID.UPNP.ORG = %q", got)
	}
}

func TestPacketAliveMissingHeaders(t *testing.T) {
	base := map[string]string{
		"Cache-Control": "max-age=60",
		"Location":      "http://h/d.xml",
		"Nt":            "upnp:rootdevice",
		"Usn":           "uuid:a::upnp:rootdevice",
	}

	for missing := range base {
		t.Run(missing, func(t *testing.T) {
			raw := "NOTIFY * HTTP/1.1\r\nNTS: ssdp:alive\r\n"
			for k, v := range base {
				if k != missing {
					raw += k + ": " + v + "\r\n"
				}
			}
			pkt, err := ParsePacket([]byte(raw + "\r\n"))
			if err != nil {
				t.Fatalf("ParsePacket() error = %v", err)
			}
			if _, err := pkt.alive(); !errors.Is(err, ErrMissingHeader) {
				t.Errorf("alive() error = %v, want ErrMissingHeader", err)
			}
		})
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Duration
		wantOk bool
	}{
		{"max-age=1800", 1800 * time.Second, true},
		{"max-age = 60", 60 * time.Second, true},
		{"no-cache, MAX-AGE=5", 5 * time.Second, true},
		{"max-age=abc", 0, false},
		{"max-age=-1", 0, false},
		{"", 0, false},
		{"no-cache", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseMaxAge(tt.in)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("parseMaxAge(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
