package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/description"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/gena"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/uuidstore"
)

// Logger defines the logging interface used by the Registry.
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

// Announcer advertises devices over SSDP. *ssdp.Engine implements it.
type Announcer interface {
	StartAnnouncing(dev ssdp.Device)
	StopAnnouncing(dev ssdp.Device)
}

// EventType names a registry event. The values double as event stream
// channel names.
type EventType string

// Registry events.
const (
	EventAvailable       EventType = "device.available"
	EventUnavailable     EventType = "device.unavailable"
	EventPropertyChanged EventType = "property.changed"
)

// Event reports a change in the set of published devices or in the
// properties of one of them.
type Event struct {
	Type       EventType      `json:"type"`
	UUID       string         `json:"uuid"`
	UniqueID   string         `json:"unique_id,omitempty"`
	Name       string         `json:"name"`
	DeviceType string         `json:"device_type"`
	Changes    map[string]any `json:"changes,omitempty"`
	Time       time.Time      `json:"time"`
}

// Config holds the collaborators of a Registry.
type Config struct {
	// Catalog decides the device type of each provider. Nil means
	// DefaultCatalog.
	Catalog *Catalog

	Store     uuidstore.Store
	SCPDs     *description.SCPDRegistry
	Announcer Announcer

	// Sender delivers GENA notifications.
	Sender gena.Sender

	// Debounce is passed to every publisher. Zero means gena.DefaultDebounce.
	Debounce time.Duration
}

// Registry keeps the devices published by this server.
//
// Thread Safety:
//   - Every method must be called on the event loop.
//   - Listeners are called on the event loop and must not block.
type Registry struct {
	loop   *eventloop.Loop
	cfg    Config
	logger Logger

	adapters  map[string]*Adapter
	order     []string
	configID  int
	started   bool
	listeners []func(Event)
}

// NewRegistry creates an empty registry at configuration id 1.
func NewRegistry(loop *eventloop.Loop, cfg Config) *Registry {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.SCPDs == nil {
		cfg.SCPDs = description.NewSCPDRegistry()
	}
	return &Registry{
		loop:     loop,
		cfg:      cfg,
		logger:   noopLogger{},
		adapters: make(map[string]*Adapter),
		configID: 1,
	}
}

// SetLogger sets the logger for the registry and its publishers.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// AddListener registers fn for registry events.
func (r *Registry) AddListener(fn func(Event)) {
	r.listeners = append(r.listeners, fn)
}

// ConfigID returns the current configuration id.
func (r *Registry) ConfigID() int { return r.configID }

// SCPDs returns the shared service description cache.
func (r *Registry) SCPDs() *description.SCPDRegistry { return r.cfg.SCPDs }

// Register publishes p under the first catalog mapping that accepts it.
//
// Parameters:
//   - ctx: Bounds the UUID store lookup
//   - p: Provider to publish
//
// Returns:
//   - *Adapter: The published device, nil when no mapping matches
//   - bool: Whether a mapping matched
//   - error: ErrUUIDStore, ErrAlreadyRegistered or a description failure
func (r *Registry) Register(ctx context.Context, p provider.Provider) (*Adapter, bool, error) {
	mapping, ok := r.cfg.Catalog.Match(p)
	if !ok {
		r.logger.Debug("no device mapping for provider", "unique_id", p.Manifest().UniqueID)
		return nil, false, nil
	}

	id, err := r.cfg.Store.Resolve(ctx, p.Manifest().UniqueID)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", ErrUUIDStore, err)
	}
	if _, exists := r.adapters[id]; exists {
		return nil, true, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	newTypes := false
	for _, sm := range mapping.Services {
		added, err := r.cfg.SCPDs.Ensure(sm.Type, r.configID)
		if err != nil {
			return nil, true, fmt.Errorf("registering %s: %w", mapping.TypeVer(), err)
		}
		newTypes = newTypes || added
	}

	a := &Adapter{
		provider: p,
		mapping:  mapping,
		uuid:     id,
		path:     "/" + id,
		configID: r.configID,
	}
	for _, sm := range mapping.Services {
		ctrl := sm.New(p)
		pub := gena.NewPublisher(r.loop, r.cfg.Sender, gena.Config{
			ServiceType:         sm.Type,
			LastChangeNamespace: ctrl.EventNamespace(),
			Debounce:            r.cfg.Debounce,
		}, ctrl.State)
		pub.SetLogger(r.logger)

		a.services = append(a.services, &ServiceInstance{
			Type:       sm.Type,
			ID:         sm.ID,
			Controller: ctrl,
			Actions:    batched(p.Properties(), ctrl.Actions()),
			Publisher:  pub,
		})
	}
	if err := a.render(); err != nil {
		a.closeServices()
		return nil, true, err
	}

	a.detach = p.Properties().Observe(func(cs provider.ChangeSet) {
		r.loop.Post(func() { r.propertiesChanged(a, cs) })
	})
	r.adapters[id] = a
	r.order = append(r.order, id)

	r.logger.Info("device registered",
		"uuid", id, "device_type", mapping.TypeVer(), "name", p.Manifest().DisplayName)

	if r.started {
		// A service type the network has not seen yet changes the
		// configuration of every advertised device, this one included.
		if newTypes {
			r.BumpConfigID()
		} else {
			r.cfg.Announcer.StartAnnouncing(a)
		}
		r.emit(a, EventAvailable, nil)
	}
	return a, true, nil
}

// Unregister withdraws the device with uuid. Unknown UUIDs are ignored.
// The stored UUID of the provider is kept.
func (r *Registry) Unregister(uuid string) {
	a, ok := r.adapters[uuid]
	if !ok {
		return
	}
	delete(r.adapters, uuid)
	for i, id := range r.order {
		if id == uuid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.started {
		r.cfg.Announcer.StopAnnouncing(a)
	}
	a.closeServices()
	if a.detach != nil {
		a.detach()
	}

	r.logger.Info("device unregistered", "uuid", uuid)
	if r.started {
		r.emit(a, EventUnavailable, nil)
	}
}

// Start begins announcing every registered device. Devices registered
// later are announced as they arrive.
func (r *Registry) Start() {
	if r.started {
		return
	}
	r.started = true
	for _, a := range r.Adapters() {
		r.cfg.Announcer.StartAnnouncing(a)
		r.emit(a, EventAvailable, nil)
	}
}

// Stop sends byebye for every device and stops announcing. The devices
// stay registered.
func (r *Registry) Stop() {
	if !r.started {
		return
	}
	r.started = false
	for _, a := range r.Adapters() {
		r.cfg.Announcer.StopAnnouncing(a)
		r.emit(a, EventUnavailable, nil)
	}
}

// Close unregisters every device.
func (r *Registry) Close() {
	for _, a := range r.Adapters() {
		r.Unregister(a.uuid)
	}
}

// BumpConfigID increments the configuration id and regenerates every
// device description. Announced devices are re-announced so the network
// learns the new id.
func (r *Registry) BumpConfigID() {
	r.configID++
	for _, a := range r.Adapters() {
		if err := a.SetConfigID(r.configID); err != nil {
			r.logger.Error("regenerating description failed", "uuid", a.uuid, "error", err)
			continue
		}
		if r.started {
			r.cfg.Announcer.StartAnnouncing(a)
		}
	}
	r.logger.Info("configuration id changed", "config_id", r.configID)
}

// MatchDevices implements ssdp.Matcher. Nothing matches until Start.
func (r *Registry) MatchDevices(st string) []ssdp.Device {
	if !r.started {
		return nil
	}
	var out []ssdp.Device
	for _, a := range r.Adapters() {
		if ssdp.Matches(a, st) {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the device with uuid.
func (r *Registry) Get(uuid string) (*Adapter, bool) {
	a, ok := r.adapters[uuid]
	return a, ok
}

// Adapters returns the registered devices in registration order.
func (r *Registry) Adapters() []*Adapter {
	out := make([]*Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// SCPD returns the service description addressed by a "<Type>_<ver>" path
// segment, rendered at the current configuration id.
func (r *Registry) SCPD(segment string) ([]byte, bool) {
	typeVer, ok := r.cfg.SCPDs.Lookup(segment)
	if !ok {
		return nil, false
	}
	doc, err := r.cfg.SCPDs.Get(typeVer, r.configID)
	if err != nil {
		r.logger.Warn("rendering service description failed", "service", typeVer, "error", err)
		return nil, false
	}
	return doc, true
}

// propertiesChanged forwards a provider change set to the publishers of
// a. Change sets that arrive after a was unregistered are ignored.
func (r *Registry) propertiesChanged(a *Adapter, cs provider.ChangeSet) {
	if r.adapters[a.uuid] != a {
		return
	}
	for _, s := range a.services {
		for name, v := range s.Controller.Changes(cs) {
			s.Publisher.RecordChange(name, v)
		}
	}
	r.emit(a, EventPropertyChanged, cs)
}

func (r *Registry) emit(a *Adapter, typ EventType, cs provider.ChangeSet) {
	if len(r.listeners) == 0 {
		return
	}
	m := a.provider.Manifest()
	ev := Event{
		Type:       typ,
		UUID:       a.uuid,
		UniqueID:   m.UniqueID,
		Name:       m.DisplayName,
		DeviceType: a.mapping.TypeVer(),
		Time:       r.loop.Now(),
	}
	if cs != nil {
		ev.Changes = make(map[string]any, len(cs))
		for name, v := range cs {
			if d, ok := v.(time.Duration); ok {
				v = provider.FormatDuration(d)
			}
			ev.Changes[name] = v
		}
	}
	for _, fn := range r.listeners {
		fn(ev)
	}
}
