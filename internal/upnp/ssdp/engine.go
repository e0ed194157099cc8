package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxAge           = 1800 * time.Second
	DefaultAnnounceRepeats  = 3
	DefaultAnnounceInterval = 250 * time.Millisecond

	searchRepeats = 3
)

// Kind selects the message family produced by Announce.
type Kind int

const (
	// Available sends NOTIFY ssdp:alive to the group.
	Available Kind = iota
	// Unavailable sends NOTIFY ssdp:byebye to the group.
	Unavailable
	// Result sends 200 OK search responses to an inquirer.
	Result
)

// Device is the view of a local device needed to advertise it.
type Device interface {
	UUID() string
	IsRoot() bool
	// DeviceType returns the short type and version, e.g. "BinaryLight:1".
	DeviceType() string
	// ServiceTypes returns the distinct short service types, in order.
	ServiceTypes() []string
	ConfigID() int
}

// Matcher finds the local devices that answer a search target.
type Matcher interface {
	MatchDevices(st string) []Device
}

// Listener receives announcements from remote devices. Calls are made on
// the event loop.
type Listener interface {
	OnAlive(Alive)
	OnByeBye(ByeBye)
}

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the values written into outgoing messages.
type Config struct {
	// Host and Port form the LOCATION URL of the description server.
	Host string
	Port int

	MaxAge           time.Duration
	AnnounceRepeats  int
	AnnounceInterval time.Duration

	// Server is the SERVER header value.
	Server string

	// BootID is sent as BOOTID.UPNP.ORG. Zero means the current unix time.
	BootID int64
}

// Engine sends and receives SSDP messages.
//
// Thread Safety:
//   - Every method except Serve must be called on the event loop.
//   - Serve runs on its own goroutine and posts received packets to the loop.
type Engine struct {
	loop      *eventloop.Loop
	transport Transport
	cfg       Config
	logger    Logger

	matcher    Matcher
	listeners  []Listener
	announcing map[string]*announcement
	searches   map[*eventloop.Timer]struct{}
}

type announcement struct {
	dev   Device
	sent  int
	timer *eventloop.Timer
}

// target is one NT/USN pair advertised for a device.
type target struct {
	nt  string
	usn string
}

// NewEngine creates an engine sending through transport.
func NewEngine(loop *eventloop.Loop, transport Transport, cfg Config) *Engine {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.AnnounceRepeats < 0 {
		cfg.AnnounceRepeats = 0
	} else if cfg.AnnounceRepeats == 0 {
		cfg.AnnounceRepeats = DefaultAnnounceRepeats
	}
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = DefaultAnnounceInterval
	}
	if cfg.BootID == 0 {
		cfg.BootID = loop.Now().Unix()
	}
	return &Engine{
		loop:       loop,
		transport:  transport,
		cfg:        cfg,
		logger:     noopLogger{},
		announcing: make(map[string]*announcement),
		searches:   make(map[*eventloop.Timer]struct{}),
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetMatcher sets the source of local devices for M-SEARCH responses.
func (e *Engine) SetMatcher(m Matcher) {
	e.matcher = m
}

// AddListener registers l for Alive and ByeBye events.
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// SetPort changes the port written into LOCATION. Use it when the
// description server was bound to an ephemeral port.
func (e *Engine) SetPort(port int) {
	e.cfg.Port = port
}

// Location returns the description URL advertised for dev.
func (e *Engine) Location(dev Device) string {
	return fmt.Sprintf("http://%s/%s/description.xml",
		net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port)), dev.UUID())
}

// Announce sends the full message set for dev: the root message when dev
// is a root device, then the uuid and device-type messages, then one
// message per service type. Result messages go to inquirer, the others
// to the multicast group.
func (e *Engine) Announce(dev Device, kind Kind, inquirer *net.UDPAddr) {
	for _, t := range targets(dev) {
		e.sendTarget(dev, kind, t, inquirer)
	}
}

// StartAnnouncing sends alive messages for dev now, repeats them
// AnnounceRepeats times at AnnounceInterval and then every MaxAge/4 until
// StopAnnouncing is called.
func (e *Engine) StartAnnouncing(dev Device) {
	if a, ok := e.announcing[dev.UUID()]; ok {
		a.timer.Stop()
	}
	a := &announcement{dev: dev}
	e.announcing[dev.UUID()] = a
	e.announceTick(a)
}

func (e *Engine) announceTick(a *announcement) {
	e.Announce(a.dev, Available, nil)

	delay := e.cfg.MaxAge / 4
	if a.sent < e.cfg.AnnounceRepeats {
		delay = e.cfg.AnnounceInterval
	}
	a.sent++

	uuid := a.dev.UUID()
	a.timer = e.loop.AfterFunc(delay, func() {
		if e.announcing[uuid] != a {
			return
		}
		e.announceTick(a)
	})
}

// StopAnnouncing cancels the repeat schedule of dev, if any, and sends one
// byebye set.
func (e *Engine) StopAnnouncing(dev Device) {
	if a, ok := e.announcing[dev.UUID()]; ok {
		a.timer.Stop()
		delete(e.announcing, dev.UUID())
	}
	e.Announce(dev, Unavailable, nil)
}

// IsAnnouncing reports whether dev has an active repeat schedule.
func (e *Engine) IsAnnouncing(uuid string) bool {
	_, ok := e.announcing[uuid]
	return ok
}

// RespondToSearch unicasts the search responses of dev matching st to
// inquirer. ssdp:all yields the full set.
func (e *Engine) RespondToSearch(dev Device, inquirer *net.UDPAddr, st string) {
	for _, t := range matchingTargets(dev, st) {
		e.sendTarget(dev, Result, t, inquirer)
	}
}

// Search multicasts an M-SEARCH for target and repeats it three times,
// mx seconds apart.
func (e *Engine) Search(target string, mx int) {
	if mx < 1 {
		mx = 1
	}
	e.search(searchMessage(target, mx), time.Duration(mx)*time.Second, searchRepeats)
}

func (e *Engine) search(msg []byte, interval time.Duration, left int) {
	e.send(msg, nil)
	if left == 0 {
		return
	}
	var t *eventloop.Timer
	t = e.loop.AfterFunc(interval, func() {
		delete(e.searches, t)
		e.search(msg, interval, left-1)
	})
	e.searches[t] = struct{}{}
}

// Close cancels every pending announcement and search without sending
// byebye messages.
func (e *Engine) Close() {
	for uuid, a := range e.announcing {
		a.timer.Stop()
		delete(e.announcing, uuid)
	}
	for t := range e.searches {
		t.Stop()
		delete(e.searches, t)
	}
}

// Serve reads datagrams until ctx is cancelled, posting each parsed packet
// onto the loop. Malformed datagrams are logged at debug level and dropped.
func (e *Engine) Serve(ctx context.Context) error {
	for {
		dg, err := e.transport.ReadFrom(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("reading ssdp socket: %w", err)
			}
			e.logger.Warn("ssdp read failed", "error", err)
			continue
		}

		pkt, err := ParsePacket(dg.Data)
		if err != nil {
			e.logger.Debug("dropping ssdp datagram", "from", dg.From, "error", err)
			continue
		}
		from := dg.From
		e.loop.Post(func() { e.HandlePacket(pkt, from) })
	}
}

// HandlePacket acts on a received packet. It must run on the loop.
func (e *Engine) HandlePacket(pkt *Packet, from *net.UDPAddr) {
	switch pkt.Kind {
	case KindSearch:
		st := pkt.Header.Get("ST")
		if st == "" {
			e.logger.Debug("dropping M-SEARCH without ST", "from", from)
			return
		}
		if e.matcher == nil || from == nil {
			return
		}
		for _, dev := range e.matcher.MatchDevices(st) {
			e.RespondToSearch(dev, from, st)
		}

	case KindNotify:
		switch nts := pkt.Header.Get("NTS"); nts {
		case NTSAlive:
			e.raiseAlive(pkt, from)
		case NTSByeBye:
			usn := pkt.Header.Get("USN")
			if usn == "" {
				e.logger.Debug("dropping byebye without USN", "from", from)
				return
			}
			for _, l := range e.listeners {
				l.OnByeBye(ByeBye{USN: usn})
			}
		default:
			e.logger.Debug("dropping NOTIFY", "from", from, "nts", nts)
		}

	case KindResponse:
		e.raiseAlive(pkt, from)
	}
}

func (e *Engine) raiseAlive(pkt *Packet, from *net.UDPAddr) {
	alive, err := pkt.alive()
	if err != nil {
		e.logger.Debug("dropping ssdp announcement", "from", from, "error", err)
		return
	}
	for _, l := range e.listeners {
		l.OnAlive(alive)
	}
}

func (e *Engine) sendTarget(dev Device, kind Kind, t target, inquirer *net.UDPAddr) {
	if kind == Result && inquirer == nil {
		return
	}
	e.send(e.render(dev, kind, t), inquirer)
}

func (e *Engine) send(msg []byte, dst *net.UDPAddr) {
	if err := e.transport.WriteTo(msg, dst); err != nil {
		e.logger.Warn("ssdp send failed", "to", dst, "error", err)
	}
}

func (e *Engine) render(dev Device, kind Kind, t target) []byte {
	var m *message
	switch kind {
	case Available:
		m = newMessage("NOTIFY * HTTP/1.1").
			header("HOST", GroupAddress).
			header("CACHE-CONTROL", e.cacheControl()).
			header("LOCATION", e.Location(dev)).
			header("NT", t.nt).
			header("NTS", NTSAlive).
			header("SERVER", e.cfg.Server).
			header("USN", t.usn)
	case Unavailable:
		m = newMessage("NOTIFY * HTTP/1.1").
			header("HOST", GroupAddress).
			header("NT", t.nt).
			header("NTS", NTSByeBye).
			header("USN", t.usn)
	default:
		m = newMessage("HTTP/1.1 200 OK").
			header("CACHE-CONTROL", e.cacheControl()).
			header("DATE", e.loop.Now().UTC().Format(http.TimeFormat)).
			header("EXT", "").
			header("LOCATION", e.Location(dev)).
			header("SERVER", e.cfg.Server).
			header("ST", t.nt).
			header("USN", t.usn)
	}
	return m.
		header("BOOTID.UPNP.ORG", strconv.FormatInt(e.cfg.BootID, 10)).
		header("CONFIGID.UPNP.ORG", strconv.Itoa(dev.ConfigID())).
		bytes()
}

func (e *Engine) cacheControl() string {
	return "max-age=" + strconv.Itoa(int(e.cfg.MaxAge/time.Second))
}

func targets(dev Device) []target {
	udn := upnp.UUIDPrefix + dev.UUID()
	var out []target
	if dev.IsRoot() {
		out = append(out, target{nt: upnp.RootDevice, usn: udn + "::" + upnp.RootDevice})
	}
	out = append(out, target{nt: udn, usn: udn})
	deviceType := upnp.DeviceType(dev.DeviceType())
	out = append(out, target{nt: deviceType, usn: udn + "::" + deviceType})
	for _, st := range dev.ServiceTypes() {
		serviceType := upnp.ServiceType(st)
		out = append(out, target{nt: serviceType, usn: udn + "::" + serviceType})
	}
	return out
}

// matchingTargets selects the messages of dev that answer st. ssdp:all
// selects every message; any other target selects the messages whose NT
// equals it.
func matchingTargets(dev Device, st string) []target {
	all := targets(dev)
	if st == upnp.SearchAll {
		return all
	}
	var out []target
	for _, t := range all {
		if t.nt == st {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether dev answers the search target st:
//   - ssdp:all matches every device
//   - upnp:rootdevice matches root devices
//   - uuid:<x> matches the device with that UUID
//   - a device or service URN matches on exact type and version
func Matches(dev Device, st string) bool {
	return len(matchingTargets(dev, st)) > 0
}
