package device

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/gena"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/uuidstore"
)

// recordingSender captures every NOTIFY.
type recordingSender struct {
	delivered chan gena.Notification
}

func newRecordingSender() *recordingSender {
	return &recordingSender{delivered: make(chan gena.Notification, 32)}
}

func (s *recordingSender) Notify(_ context.Context, _ string, n gena.Notification) error {
	s.delivered <- n
	return nil
}

func (s *recordingSender) next(t *testing.T) gena.Notification {
	t.Helper()
	select {
	case n := <-s.delivered:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
		return gena.Notification{}
	}
}

func (s *recordingSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-s.delivered:
		t.Fatalf("unexpected notification seq %d: %s", n.Seq, n.Body)
	case <-time.After(50 * time.Millisecond):
	}
}

// recordingAnnouncer counts announcement calls per UUID.
type recordingAnnouncer struct {
	mu      sync.Mutex
	started map[string]int
	stopped map[string]int
}

func newRecordingAnnouncer() *recordingAnnouncer {
	return &recordingAnnouncer{started: make(map[string]int), stopped: make(map[string]int)}
}

func (a *recordingAnnouncer) StartAnnouncing(dev ssdp.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started[dev.UUID()]++
}

func (a *recordingAnnouncer) StopAnnouncing(dev ssdp.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped[dev.UUID()]++
}

type failingStore struct{}

func (failingStore) Resolve(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}
func (failingStore) Backend() string { return "failing" }
func (failingStore) Close() error    { return nil }

// plainProvider has properties but no capability.
type plainProvider struct {
	props *provider.Properties
}

func (p plainProvider) Manifest() provider.Manifest      { return provider.Manifest{UniqueID: "plain"} }
func (p plainProvider) Properties() *provider.Properties { return p.props }

type testEnv struct {
	reg       *Registry
	loop      *eventloop.Loop
	clock     *eventloop.ManualClock
	sender    *recordingSender
	announcer *recordingAnnouncer
	store     uuidstore.Store
}

func newTestEnv(t *testing.T, store uuidstore.Store) *testEnv {
	t.Helper()
	if store == nil {
		store = uuidstore.NewMemoryStore()
	}
	clock := eventloop.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.New(clock)
	env := &testEnv{
		loop:      loop,
		clock:     clock,
		sender:    newRecordingSender(),
		announcer: newRecordingAnnouncer(),
		store:     store,
	}
	env.reg = NewRegistry(loop, Config{
		Store:     store,
		Announcer: env.announcer,
		Sender:    env.sender,
	})
	t.Cleanup(env.reg.Close)
	return env
}

func (e *testEnv) register(t *testing.T, p provider.Provider) *Adapter {
	t.Helper()
	a, ok, err := e.reg.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !ok {
		t.Fatal("Register() found no mapping")
	}
	return a
}

func TestCatalogMatching(t *testing.T) {
	cat := DefaultCatalog()

	m, ok := cat.Match(provider.NewSwitch(provider.Manifest{}))
	if !ok || m.TypeVer() != "BinaryLight:1" {
		t.Errorf("switch mapped to %q (%v)", m.TypeVer(), ok)
	}

	m, ok = cat.Match(provider.NewPlayer(provider.Manifest{}, nil))
	if !ok || m.TypeVer() != "MediaRenderer:1" {
		t.Fatalf("player mapped to %q (%v)", m.TypeVer(), ok)
	}
	var types []string
	for _, s := range m.Services {
		types = append(types, s.Type)
	}
	if diff := cmp.Diff([]string{"RenderingControl:1", "ConnectionManager:1", "AVTransport:1"}, types); diff != "" {
		t.Errorf("renderer services mismatch (-want +got):\n%s", diff)
	}

	if _, ok := cat.Match(plainProvider{props: provider.NewProperties()}); ok {
		t.Error("provider without capabilities matched")
	}
}

func TestRegisterUnmappedProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	a, ok, err := env.reg.Register(context.Background(), plainProvider{props: provider.NewProperties()})
	if a != nil || ok || err != nil {
		t.Errorf("Register() = %v, %v, %v; want nil, false, nil", a, ok, err)
	}
}

func TestRegisterStoreFailure(t *testing.T) {
	env := newTestEnv(t, failingStore{})
	_, ok, err := env.reg.Register(context.Background(), provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	if !errors.Is(err, ErrUUIDStore) {
		t.Fatalf("Register() error = %v, want ErrUUIDStore", err)
	}
	if !ok {
		t.Error("mapping should still be reported as matched")
	}
	if len(env.reg.Adapters()) != 0 {
		t.Error("failed registration left an adapter behind")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))

	_, _, err := env.reg.Register(context.Background(), provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterBuildsDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.register(t, provider.NewPlayer(provider.Manifest{UniqueID: "kitchen", DisplayName: "Kitchen"}, nil))

	if a.Path() != "/"+a.UUID() || !a.IsRoot() || a.DeviceType() != "MediaRenderer:1" {
		t.Errorf("adapter = path %s root %v type %s", a.Path(), a.IsRoot(), a.DeviceType())
	}
	doc := string(a.Description())
	for _, want := range []string{
		`configId="1"`,
		"<friendlyName>Kitchen</friendlyName>",
		"<UDN>uuid:" + a.UUID() + "</UDN>",
		"<controlURL>/" + a.UUID() + "/AVTransport:1/control</controlURL>",
		"<serviceId>urn:upnp-org:serviceId:RenderingControl:1</serviceId>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("description lacks %s:\n%s", want, doc)
		}
	}

	if _, ok := a.Service("ConnectionManager:1"); !ok {
		t.Error("ConnectionManager:1 service missing")
	}
	if _, ok := env.reg.SCPD("AVTransport_1"); !ok {
		t.Error("AVTransport SCPD not registered")
	}
	if _, ok := env.reg.SCPD("SwitchPower_1"); ok {
		t.Error("SwitchPower SCPD registered without a switch")
	}

	// Not announced before Start.
	if env.announcer.started[a.UUID()] != 0 {
		t.Error("device announced before Start")
	}
	if got := env.reg.MatchDevices("ssdp:all"); len(got) != 0 {
		t.Errorf("MatchDevices before Start = %d devices", len(got))
	}
	env.reg.Start()
	if env.announcer.started[a.UUID()] != 1 {
		t.Error("device not announced on Start")
	}
}

// subscribe opens an hour-long subscription on svc and returns its SID.
func subscribe(svc *ServiceInstance) string {
	sid, _ := svc.Publisher.Subscribe([]string{"http://cp/notify"}, time.Hour)
	return sid
}

func TestBatchedChangeYieldsOneNotify(t *testing.T) {
	env := newTestEnv(t, nil)
	player := provider.NewPlayer(provider.Manifest{UniqueID: "kitchen"}, nil)
	a := env.register(t, player)

	avt, _ := a.Service("AVTransport:1")
	avt.Publisher.Activate(subscribe(avt))
	if n := env.sender.next(t); n.Seq != 0 {
		t.Fatalf("initial seq = %d", n.Seq)
	}

	b := player.Properties().BeginBatch()
	player.Load("http://x/a.mp3", "")
	player.Play()
	b.End()
	env.loop.Drain()

	env.clock.Advance(gena.DefaultDebounce)
	env.loop.Drain()

	n := env.sender.next(t)
	if n.Seq != 1 {
		t.Errorf("seq = %d, want 1", n.Seq)
	}
	body := string(n.Body)
	for _, want := range []string{
		`&lt;TransportState val=&#34;PLAYING&#34;/&gt;`,
		`&lt;AVTransportURI val=&#34;http://x/a.mp3&#34;/&gt;`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("NOTIFY lacks %s:\n%s", want, body)
		}
	}
	env.sender.expectNone(t)
}

func TestSOAPActionsCoalesceWithinDebounce(t *testing.T) {
	env := newTestEnv(t, nil)
	player := provider.NewPlayer(provider.Manifest{UniqueID: "kitchen"}, nil)
	a := env.register(t, player)

	avt, _ := a.Service("AVTransport:1")
	avt.Publisher.Activate(subscribe(avt))
	env.sender.next(t)

	if _, err := call(t, avt.Actions, request("SetAVTransportURI", "InstanceID", "0", "CurrentURI", "http://x/b.mp3")); err != nil {
		t.Fatalf("SetAVTransportURI: %v", err)
	}
	if _, err := call(t, avt.Actions, request("Play", "InstanceID", "0", "Speed", "1")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	env.loop.Drain()
	env.clock.Advance(gena.DefaultDebounce)
	env.loop.Drain()

	body := string(env.sender.next(t).Body)
	if !strings.Contains(body, "PLAYING") || !strings.Contains(body, "http://x/b.mp3") {
		t.Errorf("NOTIFY body = %s", body)
	}
	env.sender.expectNone(t)
}

func TestSwitchEventsDirectly(t *testing.T) {
	env := newTestEnv(t, nil)
	sw := provider.NewSwitch(provider.Manifest{UniqueID: "lamp"})
	a := env.register(t, sw)

	svc, _ := a.Service("SwitchPower:1")
	svc.Publisher.Activate(subscribe(svc))
	if body := string(env.sender.next(t).Body); !strings.Contains(body, "<e:property><Status>0</Status></e:property>") {
		t.Errorf("initial body = %s", body)
	}

	if _, err := call(t, svc.Actions, request("SetTarget", "newTargetValue", "yes")); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	env.loop.Drain()
	env.clock.Advance(gena.DefaultDebounce)
	env.loop.Drain()

	if body := string(env.sender.next(t).Body); !strings.Contains(body, "<e:property><Status>1</Status></e:property>") {
		t.Errorf("change body = %s", body)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reg.Start()
	a := env.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))

	svc, _ := a.Service("SwitchPower:1")
	sid := subscribe(svc)
	svc.Publisher.Activate(sid)
	env.sender.next(t)

	env.reg.Unregister(a.UUID())
	env.reg.Unregister(a.UUID())
	env.reg.Unregister("no-such-uuid")

	if got := env.announcer.stopped[a.UUID()]; got != 1 {
		t.Errorf("byebye sent %d times, want 1", got)
	}
	if _, ok := env.reg.Get(a.UUID()); ok {
		t.Error("device still registered")
	}
	if svc.Publisher.Has(sid) {
		t.Error("subscription survived unregister")
	}
	if len(env.reg.MatchDevices("ssdp:all")) != 0 {
		t.Error("unregistered device still answers searches")
	}
}

func TestUUIDStableAcrossRegistrations(t *testing.T) {
	store := uuidstore.NewMemoryStore()

	first := newTestEnv(t, store)
	a := first.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	first.reg.Unregister(a.UUID())
	again := first.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	if again.UUID() != a.UUID() {
		t.Errorf("re-registration changed uuid: %s -> %s", a.UUID(), again.UUID())
	}

	second := newTestEnv(t, store)
	b := second.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	if b.UUID() != a.UUID() {
		t.Errorf("second registry assigned %s, want %s", b.UUID(), a.UUID())
	}

	other := second.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "porch"}))
	if other.UUID() == a.UUID() {
		t.Error("different unique ids share a uuid")
	}
}

func TestNewServiceTypeBumpsConfigID(t *testing.T) {
	env := newTestEnv(t, nil)
	lamp := env.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	env.reg.Start()

	if env.reg.ConfigID() != 1 {
		t.Fatalf("config id = %d before new types", env.reg.ConfigID())
	}

	env.register(t, provider.NewPlayer(provider.Manifest{UniqueID: "kitchen"}, nil))
	if env.reg.ConfigID() != 2 {
		t.Fatalf("config id = %d, want 2", env.reg.ConfigID())
	}
	if lamp.ConfigID() != 2 || !strings.Contains(string(lamp.Description()), `configId="2"`) {
		t.Errorf("lamp description not regenerated:\n%s", lamp.Description())
	}
	if doc, _ := env.reg.SCPD("SwitchPower_1"); !strings.Contains(string(doc), `configId="2"`) {
		t.Errorf("SCPD not re-stamped:\n%s", doc)
	}
	if got := env.announcer.started[lamp.UUID()]; got != 2 {
		t.Errorf("lamp announced %d times, want 2", got)
	}

	// A known service type leaves the id alone.
	env.register(t, provider.NewSwitch(provider.Manifest{UniqueID: "porch"}))
	if env.reg.ConfigID() != 2 {
		t.Errorf("config id = %d after known types", env.reg.ConfigID())
	}
}

func TestRegistryEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	var events []Event
	env.reg.AddListener(func(ev Event) { events = append(events, ev) })

	sw := provider.NewSwitch(provider.Manifest{UniqueID: "lamp", DisplayName: "Lamp"})
	a := env.register(t, sw)
	env.reg.Start()
	sw.SetState(true)
	env.loop.Drain()
	env.reg.Unregister(a.UUID())

	var got []EventType
	for _, ev := range events {
		got = append(got, ev.Type)
		if ev.UUID != a.UUID() || ev.Name != "Lamp" || ev.DeviceType != "BinaryLight:1" {
			t.Errorf("event %s = %+v", ev.Type, ev)
		}
	}
	if diff := cmp.Diff([]EventType{EventAvailable, EventPropertyChanged, EventUnavailable}, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{provider.PropState: true}, events[1].Changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

type sentPacket struct {
	pkt *ssdp.Packet
	to  *net.UDPAddr
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (r *recordingTransport) WriteTo(b []byte, dst *net.UDPAddr) error {
	pkt, err := ssdp.ParsePacket(b)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPacket{pkt: pkt, to: dst})
	return nil
}

func (r *recordingTransport) ReadFrom(ctx context.Context) (ssdp.Datagram, error) {
	<-ctx.Done()
	return ssdp.Datagram{}, ctx.Err()
}

func (r *recordingTransport) take() []sentPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func TestRootDeviceSearchAnswersOnlyRootDevices(t *testing.T) {
	clock := eventloop.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.New(clock)
	transport := &recordingTransport{}
	engine := ssdp.NewEngine(loop, transport, ssdp.Config{Host: "192.0.2.10", Port: 8200})
	t.Cleanup(engine.Close)

	embedded := DefaultCatalog().Mappings()[1]
	embedded.Root = false
	reg := NewRegistry(loop, Config{
		Catalog:   NewCatalog(DefaultCatalog().Mappings()[0], embedded),
		Store:     uuidstore.NewMemoryStore(),
		Announcer: engine,
		Sender:    newRecordingSender(),
	})
	engine.SetMatcher(reg)

	root, _, err := reg.Register(context.Background(), provider.NewSwitch(provider.Manifest{UniqueID: "lamp"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Register(context.Background(), provider.NewPlayer(provider.Manifest{UniqueID: "kitchen"}, nil)); err != nil {
		t.Fatal(err)
	}
	reg.Start()
	transport.take()

	search, err := ssdp.ParsePacket([]byte("M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 1\r\n" +
		"ST: upnp:rootdevice\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	inquirer := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 50), Port: 50000}
	engine.HandlePacket(search, inquirer)

	sent := transport.take()
	if len(sent) != 1 {
		t.Fatalf("sent %d responses, want 1", len(sent))
	}
	got := sent[0]
	if got.to == nil || !got.to.IP.Equal(inquirer.IP) {
		t.Errorf("response sent to %v", got.to)
	}
	if got.pkt.Header.Get("ST") != "upnp:rootdevice" ||
		got.pkt.Header.Get("USN") != "uuid:"+root.UUID()+"::upnp:rootdevice" {
		t.Errorf("response headers = %v", got.pkt.Header)
	}
}
