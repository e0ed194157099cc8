package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/uuidstore"
)

// fakeTransport records outgoing datagrams and never receives any.
type fakeTransport struct {
	mu   sync.Mutex
	sent []*ssdp.Packet
}

func (f *fakeTransport) WriteTo(b []byte, _ *net.UDPAddr) error {
	pkt, err := ssdp.ParsePacket(b)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, pkt)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ReadFrom(ctx context.Context) (ssdp.Datagram, error) {
	<-ctx.Done()
	return ssdp.Datagram{}, ctx.Err()
}

// notifies returns the NOTIFY packets sent with the given NTS.
func (f *fakeTransport) notifies(nts string) []*ssdp.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ssdp.Packet
	for _, p := range f.sent {
		if p.Kind == ssdp.KindNotify && p.Header.Get("NTS") == nts {
			out = append(out, p)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	cfg.UPnP.AdvertiseAddress = "127.0.0.1"
	cfg.UPnP.AnnounceRepeats = 1
	cfg.UPnP.UUIDStore.Backend = uuidstore.BackendMemory
	cfg.Directory.Enabled = false
	cfg.UPnP.Devices = []config.DeviceConfig{
		{Kind: config.DeviceKindBinaryLight, UniqueID: "hall-light", Name: "Hall Light"},
	}
	return cfg
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_AnnouncesServesAndWithdraws(t *testing.T) {
	transport := &fakeTransport{}
	a, err := newApp(context.Background(), testConfig(), testLogger(), transport)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	waitFor(t, "ssdp:alive", func() bool {
		return len(transport.notifies("ssdp:alive")) > 0
	})

	location := transport.notifies("ssdp:alive")[0].Header.Get("LOCATION")
	if !strings.HasPrefix(location, "http://127.0.0.1:") || !strings.HasSuffix(location, "/description.xml") {
		t.Fatalf("LOCATION = %q, want a description URL on 127.0.0.1", location)
	}

	resp, err := http.Get(location)
	if err != nil {
		t.Fatalf("GET description error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET description status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "<friendlyName>Hall Light</friendlyName>") {
		t.Errorf("description does not name the device:\n%s", body)
	}

	resp, err = http.Get("http://" + a.server.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	resp.Body.Close()
	if health["status"] != "ok" || health["devices"] != float64(1) {
		t.Errorf("health = %v, want ok with one device", health)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if len(transport.notifies("ssdp:byebye")) == 0 {
		t.Error("no ssdp:byebye sent on shutdown")
	}
}

func TestApp_UnknownDeviceKind(t *testing.T) {
	cfg := testConfig()
	cfg.UPnP.Devices = []config.DeviceConfig{{Kind: "toaster", Name: "Toaster"}}

	if _, err := newApp(context.Background(), cfg, testLogger(), &fakeTransport{}); err == nil {
		t.Fatal("newApp() error = nil, want unsupported kind")
	}
}

// unmappedProvider has no capability any UPnP device type covers.
type unmappedProvider struct {
	props *provider.Properties
}

func (unmappedProvider) Manifest() provider.Manifest {
	return provider.Manifest{UniqueID: "thermometer", DisplayName: "Thermometer"}
}
func (p unmappedProvider) Properties() *provider.Properties { return p.props }

func TestApp_PublishSkipsUnmappedProvider(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), testLogger(), &fakeTransport{})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	var logs bytes.Buffer
	a.log = logging.NewWithWriter(config.LoggingConfig{Level: "info"}, "test", &logs)
	a.providers = append([]provider.Provider{unmappedProvider{props: provider.NewProperties()}}, a.providers...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.loop.Run(ctx) //nolint:errcheck // always nil
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var published int
	if err := a.loop.Do(ctx, func() {
		a.publish(ctx, 49152)()
		published = len(a.registry.Adapters())
		a.registry.Stop()
		a.registry.Close()
		a.engine.Close()
	}); err != nil {
		t.Fatalf("loop.Do() error = %v", err)
	}

	if published != 1 {
		t.Errorf("published %d devices, want 1", published)
	}
	if !strings.Contains(logs.String(), "no UPnP mapping") {
		t.Errorf("log does not mention the unmapped provider: %s", logs.String())
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_UPNP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if err := run(context.Background()); err == nil {
		t.Fatal("run() error = nil, want config load failure")
	}
}

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		upnpEnv string
		coreEnv string
		want    string
	}{
		{name: "default", want: defaultConfigPath},
		{name: "core variable", coreEnv: "/etc/graylogic/config.yaml", want: "/etc/graylogic/config.yaml"},
		{name: "upnp variable wins", upnpEnv: "/etc/upnp.yaml", coreEnv: "/etc/core.yaml", want: "/etc/upnp.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRAYLOGIC_UPNP_CONFIG", tt.upnpEnv)
			t.Setenv("GRAYLOGIC_CONFIG", tt.coreEnv)
			if got := getConfigPath(); got != tt.want {
				t.Errorf("getConfigPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUUIDStoreConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = "/var/lib/graylogic/upnp.db"

	got := uuidStoreConfig(cfg)
	want := uuidstore.Config{
		Backend:     uuidstore.BackendSQLite,
		Path:        "/var/lib/graylogic/upnp.db",
		WALMode:     true,
		BusyTimeout: 5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sqlite uuidStoreConfig() mismatch (-want +got):\n%s", diff)
	}

	cfg.UPnP.UUIDStore = config.UUIDStoreConfig{Backend: uuidstore.BackendBolt, Path: "/tmp/uuids.bolt"}
	got = uuidStoreConfig(cfg)
	want = uuidstore.Config{Backend: uuidstore.BackendBolt, Path: "/tmp/uuids.bolt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bolt uuidStoreConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildProviders(t *testing.T) {
	cfg := config.Default()
	cfg.UPnP.Devices = []config.DeviceConfig{
		{Kind: config.DeviceKindBinaryLight, UniqueID: "porch", Name: "Porch"},
		{Kind: config.DeviceKindMediaRenderer, UniqueID: "lounge", Name: "Lounge", Manufacturer: "Acme"},
	}

	providers, err := buildProviders(cfg, time.Now)
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("buildProviders() returned %d providers, want 2", len(providers))
	}
	if _, ok := providers[0].(*provider.Switch); !ok {
		t.Errorf("providers[0] = %T, want *provider.Switch", providers[0])
	}
	if _, ok := providers[1].(*provider.Player); !ok {
		t.Errorf("providers[1] = %T, want *provider.Player", providers[1])
	}
	if got := providers[0].Manifest().Manufacturer; got != "Gray Logic" {
		t.Errorf("default manufacturer = %q, want %q", got, "Gray Logic")
	}
	if got := providers[1].Manifest().Manufacturer; got != "Acme" {
		t.Errorf("device manufacturer = %q, want %q", got, "Acme")
	}
}

func TestListenPort(t *testing.T) {
	if port, err := listenPort("127.0.0.1:49152"); err != nil || port != 49152 {
		t.Errorf("listenPort() = %d, %v, want 49152", port, err)
	}
	if _, err := listenPort("no-port"); err == nil {
		t.Error("listenPort(no-port) error = nil")
	}
}
