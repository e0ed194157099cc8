package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// Multicast group and defaults.
const (
	GroupAddress        = "239.255.255.250:1900"
	DefaultPort         = 1900
	DefaultMulticastTTL = 2

	maxDatagram = 2048

	// echoWindow is how long a sent datagram is remembered for loopback
	// filtering.
	echoWindow = 10 * time.Second
)

var groupIP = net.IPv4(239, 255, 255, 250)

// Datagram is one received UDP payload.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// Transport moves SSDP datagrams. A nil destination means the multicast
// group.
type Transport interface {
	WriteTo(b []byte, dst *net.UDPAddr) error
	ReadFrom(ctx context.Context) (Datagram, error)
}

// TransportConfig configures ListenMulticast.
type TransportConfig struct {
	// Interface restricts the group membership and outgoing multicast to
	// one interface. Empty means every multicast-capable interface.
	Interface string

	// TTL for outgoing multicast. Zero means DefaultMulticastTTL.
	TTL int

	// Port to bind. Zero means DefaultPort.
	Port int
}

// MulticastTransport is a UDP socket joined to the SSDP group.
type MulticastTransport struct {
	conn     net.PacketConn
	pc       *ipv4.PacketConn
	group    *net.UDPAddr
	port     int
	localIPs []net.IP
	echoes   *echoFilter
}

var bufferPool = sync.Pool{
	New: func() any { return make([]byte, maxDatagram) },
}

// ListenMulticast binds the SSDP port on all IPv4 addresses and joins the
// multicast group.
//
// Parameters:
//   - cfg: Interface, TTL and port settings
//
// Returns:
//   - *MulticastTransport: Ready for reading and writing
//   - error: ErrBind if the socket cannot be bound or no interface joins
func ListenMulticast(cfg TransportConfig) (*MulticastTransport, error) {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultMulticastTTL
	}

	conn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	pc := ipv4.NewPacketConn(conn)

	ifaces, err := multicastInterfaces(cfg.Interface)
	if err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}

	group := &net.UDPAddr{IP: groupIP, Port: port}
	joined := 0
	for i := range ifaces {
		if err := pc.JoinGroup(&ifaces[i], &net.UDPAddr{IP: groupIP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: no interface joined %s", ErrBind, group)
	}

	if cfg.Interface != "" {
		if err := pc.SetMulticastInterface(&ifaces[0]); err != nil {
			conn.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("%w: selecting %s: %v", ErrBind, cfg.Interface, err)
		}
	}
	if err := pc.SetMulticastTTL(ttl); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: setting TTL: %v", ErrBind, err)
	}
	// Control points on this host must see our announcements.
	_ = pc.SetMulticastLoopback(true)

	localIPs, err := LocalIPv4s("")
	if err != nil {
		localIPs = nil
	}

	return &MulticastTransport{
		conn:     conn,
		pc:       pc,
		group:    group,
		port:     port,
		localIPs: localIPs,
		echoes:   newEchoFilter(echoWindow, time.Now),
	}, nil
}

// WriteTo sends b to dst, or to the group when dst is nil.
func (t *MulticastTransport) WriteTo(b []byte, dst *net.UDPAddr) error {
	if dst == nil {
		dst = t.group
	}
	t.echoes.record(b)
	_, err := t.pc.WriteTo(b, nil, dst)
	return err
}

// ReadFrom returns the next datagram that is not the loopback copy of one
// this socket sent. Other SSDP stacks on this host sharing port 1900 are
// still delivered. It returns ctx.Err() once ctx is cancelled.
func (t *MulticastTransport) ReadFrom(ctx context.Context) (Datagram, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := bufferPool.Get().([]byte) //nolint:forcetypeassert // pool only holds []byte
	defer bufferPool.Put(buf)

	for {
		n, _, src, err := t.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Datagram{}, ctx.Err()
			}
			return Datagram{}, err
		}
		from, _ := src.(*net.UDPAddr)
		if t.isEcho(from, buf[:n]) {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return Datagram{Data: data, From: from}, nil
	}
}

// Close releases the socket.
func (t *MulticastTransport) Close() error {
	return t.conn.Close()
}

// isEcho reports whether b is the loopback copy of a datagram this socket sent.
func (t *MulticastTransport) isEcho(src *net.UDPAddr, b []byte) bool {
	return t.isSelf(src) && t.echoes.seen(b)
}

func (t *MulticastTransport) isSelf(src *net.UDPAddr) bool {
	if src == nil || src.Port != t.port {
		return false
	}
	for _, ip := range t.localIPs {
		if src.IP.Equal(ip) {
			return true
		}
	}
	return false
}

// echoFilter remembers recently sent payloads so their multicast loopback
// copies can be told apart from other local senders.
type echoFilter struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

func newEchoFilter(window time.Duration, now func() time.Time) *echoFilter {
	return &echoFilter{window: window, now: now, sent: make(map[string]time.Time)}
}

func (f *echoFilter) record(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for k, at := range f.sent {
		if now.Sub(at) > f.window {
			delete(f.sent, k)
		}
	}
	f.sent[string(b)] = now
}

// seen reports whether b was sent within the window.
func (f *echoFilter) seen(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.sent[string(b)]
	return ok && f.now().Sub(at) <= f.window
}

func multicastInterfaces(name string) ([]net.Interface, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
		return []net.Interface{*ifi}, nil
	}

	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			out = append(out, ifi)
		}
	}
	return out, nil
}

// LocalIPv4s lists the IPv4 addresses of the up, non-loopback interfaces,
// optionally restricted to the interface called name.
func LocalIPv4s(name string) ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	var ips []net.IP
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if name != "" && ifi.Name != name {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				ips = append(ips, ip4)
			}
		}
	}
	return ips, nil
}

// AdvertiseHost returns the host placed in LOCATION headers: configured
// when set, otherwise the first non-loopback IPv4 address.
func AdvertiseHost(configured, iface string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	ips, err := LocalIPv4s(iface)
	if err != nil {
		return "", errors.Join(ErrNoAddress, err)
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	return ips[0].String(), nil
}
