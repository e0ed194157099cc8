package directory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/description"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
)

// Default settings.
const (
	DefaultSearchMX     = 3
	DefaultFetchTimeout = 10 * time.Second
)

// Icon is one icon of a remote device, with its URL made absolute.
type Icon struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// Device is a remote root device whose description has been read.
type Device struct {
	UDN          string    `json:"udn"`
	USN          string    `json:"usn"`
	Location     string    `json:"location"`
	Server       string    `json:"server,omitempty"`
	FriendlyName string    `json:"friendly_name"`
	DeviceType   string    `json:"device_type"`
	Icons        []Icon    `json:"icons"`
	ValidUntil   time.Time `json:"valid_until"`
}

// Listener is told about devices that become ready and about ready
// devices that leave. Calls are made on the event loop.
type Listener interface {
	Added(Device)
	Removed(Device)
}

// Searcher sends M-SEARCH requests. *ssdp.Engine implements it.
type Searcher interface {
	Search(target string, mx int)
}

// Logger is the logging interface used by the directory.
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

// Config configures a Directory.
type Config struct {
	// SearchMX is the MX value of searches. Zero means DefaultSearchMX.
	SearchMX int

	// Refresh is a cron spec for repeating the search, e.g. "@every 10m".
	// Empty disables it.
	Refresh string

	// FetchTimeout bounds each description fetch. Zero means
	// DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// Directory tracks remote root devices. It implements ssdp.Listener.
//
// Thread Safety:
//   - Every method except Start and Stop must be called on the event loop.
//   - Description fetches run on their own goroutines and post their
//     results to the loop.
type Directory struct {
	loop     *eventloop.Loop
	searcher Searcher
	fetcher  Fetcher
	cfg      Config
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron

	entries   map[string]*entry
	listeners []Listener
}

type entry struct {
	dev   Device
	ready bool
	timer *eventloop.Timer
}

// New creates a directory.
func New(loop *eventloop.Loop, searcher Searcher, fetcher Fetcher, cfg Config) *Directory {
	if cfg.SearchMX <= 0 {
		cfg.SearchMX = DefaultSearchMX
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Directory{
		loop:     loop,
		searcher: searcher,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   noopLogger{},
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
}

// SetLogger sets the logger.
func (d *Directory) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// AddListener registers l. It must be called before Start.
func (d *Directory) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Start searches for root devices and starts the refresh schedule.
//
// Returns:
//   - error: ErrSchedule if Refresh cannot be parsed
func (d *Directory) Start() error {
	if d.cfg.Refresh != "" {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(d.cfg.Refresh, func() {
			d.loop.Post(d.search)
		}); err != nil {
			d.cron = nil
			return fmt.Errorf("%w: %q: %v", ErrSchedule, d.cfg.Refresh, err)
		}
		d.cron.Start()
	}
	d.loop.Post(d.search)
	return nil
}

// Stop ends the refresh schedule and abandons running fetches.
func (d *Directory) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.cancel()
}

// Clear forgets every device without notifying listeners.
func (d *Directory) Clear() {
	for udn, e := range d.entries {
		e.timer.Stop()
		delete(d.entries, udn)
	}
}

func (d *Directory) search() {
	d.logger.Debug("searching for root devices", "mx", d.cfg.SearchMX)
	d.searcher.Search(upnp.RootDevice, d.cfg.SearchMX)
}

// OnAlive implements ssdp.Listener.
func (d *Directory) OnAlive(a ssdp.Alive) {
	udn := udnOf(a.USN)
	if e, ok := d.entries[udn]; ok {
		d.arm(e, a.MaxAge)
		return
	}
	if a.NT != upnp.RootDevice {
		return
	}

	e := &entry{dev: Device{UDN: udn, USN: a.USN, Location: a.Location, Server: a.Server}}
	d.entries[udn] = e
	d.arm(e, a.MaxAge)
	d.logger.Debug("root device seen", "udn", udn, "location", a.Location)

	location := a.Location
	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.FetchTimeout)
		defer cancel()
		body, err := d.fetcher.Fetch(ctx, location)
		d.loop.Post(func() { d.fetched(e, body, err) })
	}()
}

// OnByeBye implements ssdp.Listener. A byebye for any USN of a device
// removes it.
func (d *Directory) OnByeBye(b ssdp.ByeBye) {
	if e, ok := d.entries[udnOf(b.USN)]; ok {
		d.remove(e, "byebye")
	}
}

// Devices returns the ready devices ordered by friendly name.
func (d *Directory) Devices() []Device {
	out := make([]Device, 0, len(d.entries))
	for _, e := range d.entries {
		if e.ready {
			out = append(out, e.dev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FriendlyName != out[j].FriendlyName {
			return out[i].FriendlyName < out[j].FriendlyName
		}
		return out[i].UDN < out[j].UDN
	})
	return out
}

func (d *Directory) arm(e *entry, maxAge time.Duration) {
	e.timer.Stop()
	e.dev.ValidUntil = d.loop.Now().Add(maxAge)
	e.timer = d.loop.AfterFunc(maxAge, func() {
		if d.entries[e.dev.UDN] == e {
			d.remove(e, "expired")
		}
	})
}

func (d *Directory) fetched(e *entry, body []byte, err error) {
	if d.entries[e.dev.UDN] != e {
		return
	}
	if err != nil {
		d.logger.Debug("description fetch failed", "udn", e.dev.UDN, "error", err)
		d.remove(e, "fetch failed")
		return
	}
	root, err := description.ParseDevice(body)
	if err != nil {
		d.logger.Debug("description unreadable", "udn", e.dev.UDN, "error", err)
		d.remove(e, "bad description")
		return
	}

	e.dev.FriendlyName = root.Device.FriendlyName
	e.dev.DeviceType = root.Device.DeviceType
	e.dev.Icons = resolveIcons(e.dev.Location, root.Device.Icons)
	e.ready = true

	d.logger.Info("root device added", "udn", e.dev.UDN, "name", e.dev.FriendlyName)
	for _, l := range d.listeners {
		l.Added(e.dev)
	}
}

func (d *Directory) remove(e *entry, reason string) {
	e.timer.Stop()
	delete(d.entries, e.dev.UDN)
	if !e.ready {
		return
	}
	d.logger.Info("root device removed", "udn", e.dev.UDN, "reason", reason)
	for _, l := range d.listeners {
		l.Removed(e.dev)
	}
}

// udnOf returns the "uuid:..." part of a USN.
func udnOf(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}

// resolveIcons makes icon URLs absolute against the description location.
// Icons with unparseable URLs are skipped.
func resolveIcons(location string, icons []description.Icon) []Icon {
	base, err := url.Parse(location)
	if err != nil {
		return nil
	}
	out := make([]Icon, 0, len(icons))
	for _, ic := range icons {
		ref, err := url.Parse(strings.TrimSpace(ic.URL))
		if err != nil {
			continue
		}
		out = append(out, Icon{Width: ic.Width, Height: ic.Height, URL: base.ResolveReference(ref).String()})
	}
	return out
}
