// Gray Logic UPnP - UPnP device server for the Gray Logic stack
//
// This is the main entry point. It publishes the configured devices (and
// any MQTT-backed switches) on the local network as UPnP devices:
//   - SSDP announcements and search responses
//   - Device and service descriptions over HTTP
//   - SOAP control and GENA eventing
//   - A directory of the other UPnP root devices on the network
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-upnp/internal/api"
	mqttbridge "github.com/nerrad567/gray-logic-upnp/internal/bridges/mqtt"
	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/logging"
	mqttclient "github.com/nerrad567/gray-logic-upnp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/gena"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/ssdp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/uuidstore"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// notifyTimeout bounds each GENA NOTIFY delivery.
	notifyTimeout = 5 * time.Second

	// shutdownTimeout bounds the byebye and unregister work on the loop.
	shutdownTimeout = 5 * time.Second
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic UPnP",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	transport, err := ssdp.ListenMulticast(ssdp.TransportConfig{
		Interface: cfg.UPnP.Interface,
		TTL:       cfg.UPnP.MulticastTTL,
	})
	if err != nil {
		return fmt.Errorf("opening SSDP socket: %w", err)
	}
	defer transport.Close() //nolint:errcheck // shutdown path

	a, err := newApp(ctx, cfg, log, transport)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_UPNP_CONFIG, then GRAYLOGIC_CONFIG, otherwise default.
func getConfigPath() string {
	for _, env := range []string{"GRAYLOGIC_UPNP_CONFIG", "GRAYLOGIC_CONFIG"} {
		if path := os.Getenv(env); path != "" {
			return path
		}
	}
	return defaultConfigPath
}

// app holds the wired components of one server run.
type app struct {
	cfg *config.Config
	log *logging.Logger

	loop      *eventloop.Loop
	store     uuidstore.Store
	engine    *ssdp.Engine
	registry  *device.Registry
	directory *directory.Directory
	server    *api.Server

	mqtt   *mqttclient.Client
	bridge *mqttbridge.Bridge
	influx *influxdb.Client

	providers []provider.Provider
}

// newApp connects the optional infrastructure and wires every component.
// Nothing is announced and no listener is bound until run.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger, transport ssdp.Transport) (*app, error) {
	a := &app{
		cfg:  cfg,
		log:  log,
		loop: eventloop.New(nil),
	}

	host, err := ssdp.AdvertiseHost(cfg.UPnP.AdvertiseAddress, cfg.UPnP.Interface)
	if err != nil {
		return nil, fmt.Errorf("choosing advertise address: %w", err)
	}
	banner := upnp.ServerBanner(cfg.UPnP.ProductName, version)

	a.store = uuidstore.Open(ctx, uuidStoreConfig(cfg), log.Component("uuidstore"))
	log.Info("uuid store ready", "backend", a.store.Backend())

	a.engine = ssdp.NewEngine(a.loop, transport, ssdp.Config{
		Host:             host,
		Port:             cfg.API.Port,
		MaxAge:           cfg.GetMaxAge(),
		AnnounceRepeats:  cfg.UPnP.AnnounceRepeats,
		AnnounceInterval: cfg.GetAnnounceInterval(),
		Server:           banner,
	})
	a.engine.SetLogger(log.Component("ssdp"))

	a.registry = device.NewRegistry(a.loop, device.Config{
		Store:     a.store,
		Announcer: a.engine,
		Sender:    gena.NewHTTPSender(notifyTimeout),
		Debounce:  cfg.GetDebounce(),
	})
	a.registry.SetLogger(log.Component("registry"))

	// The loop is not running yet, so listeners are wired directly.
	a.engine.SetMatcher(a.registry)

	if cfg.Directory.Enabled {
		a.directory = directory.New(a.loop, a.engine, directory.NewHTTPFetcher(cfg.GetFetchTimeout()), directory.Config{
			SearchMX:     cfg.UPnP.SearchMX,
			Refresh:      cfg.Directory.Refresh,
			FetchTimeout: cfg.GetFetchTimeout(),
		})
		a.directory.SetLogger(log.Component("directory"))
		a.engine.AddListener(a.directory)
	}

	a.providers, err = buildProviders(cfg, a.loop.Now)
	if err != nil {
		a.close()
		return nil, err
	}

	if err := a.connectMQTT(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.connectInfluxDB(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.server, err = api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Loop:      a.loop,
		Registry:  a.registry,
		Directory: a.directory,
		Banner:    banner,
		Version:   version,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return a, nil
}

// connectMQTT connects the broker and builds the bridge when MQTT is enabled.
func (a *app) connectMQTT(ctx context.Context) error {
	if !a.cfg.MQTT.Enabled {
		a.log.Info("MQTT disabled")
		return nil
	}

	client, err := mqttclient.Connect(ctx, a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.mqtt = client
	client.SetLogger(a.log.Component("mqtt"))
	client.SetOnConnect(func() {
		a.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT disconnected", "error", err)
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", client.ClientID(),
	)

	a.bridge, err = mqttbridge.New(mqttbridge.Options{
		Bus:          client,
		Topics:       client.Topics(),
		QoS:          client.QoS(),
		Switches:     a.cfg.MQTT.Switches,
		Manufacturer: a.cfg.UPnP.Manufacturer,
		Logger:       a.log.Component("mqtt-bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}

	a.registry.AddListener(a.bridge.DeviceEvent)
	if a.directory != nil {
		a.directory.AddListener(a.bridge)
	}
	for _, sw := range a.bridge.Switches() {
		a.providers = append(a.providers, sw)
	}
	return nil
}

// connectInfluxDB connects InfluxDB when enabled and records registry
// events there.
func (a *app) connectInfluxDB(ctx context.Context) error {
	if !a.cfg.InfluxDB.Enabled {
		a.log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	a.influx = client
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)

	a.registry.AddListener(client.RecordEvent)
	return nil
}

// run serves until ctx is cancelled or a component fails.
//
// The event loop, the SSDP receiver and the shutdown sequence run as one
// errgroup. The loop has its own context so that shutdown can still send
// byebye messages through it.
func (a *app) run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop.Run(loopCtx)
	})

	// abort unwinds a failed start-up while nothing has been announced.
	abort := func(err error) error {
		stopLoop()
		_ = g.Wait()
		return err
	}

	if err := a.server.Start(gctx); err != nil {
		return abort(fmt.Errorf("starting API server: %w", err))
	}
	a.log.Info("API server listening", "addr", a.server.Addr())

	port, err := listenPort(a.server.Addr())
	if err != nil {
		a.closeServer()
		return abort(err)
	}

	if err := a.loop.Do(gctx, a.publish(gctx, port)); err != nil {
		a.closeServer()
		if ctx.Err() != nil {
			return abort(nil)
		}
		return abort(fmt.Errorf("publishing devices: %w", err))
	}

	g.Go(func() error {
		return a.engine.Serve(gctx)
	})

	if err := a.startClients(); err != nil {
		a.log.Error("starting optional clients failed", "error", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received, cleaning up")
		a.shutdown()
		stopLoop()
		return nil
	})

	a.log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("Gray Logic UPnP stopped")
	return nil
}

// publish returns the loop function registering every provider and
// starting announcements. port is the bound description server port.
func (a *app) publish(ctx context.Context, port int) func() {
	return func() {
		a.engine.SetPort(port)
		for _, p := range a.providers {
			ad, ok, err := a.registry.Register(ctx, p)
			switch {
			case err != nil:
				a.log.Error("registering device failed",
					"unique_id", p.Manifest().UniqueID, "error", err)
				continue
			case !ok:
				a.log.Warn("no UPnP mapping for device, not published",
					"unique_id", p.Manifest().UniqueID)
				continue
			}
			a.log.Info("device registered",
				"name", p.Manifest().DisplayName, "uuid", ad.UUID())
		}
		a.registry.Start()
	}
}

// startClients starts the components that talk to other hosts.
func (a *app) startClients() error {
	var errs []error
	if a.directory != nil {
		if err := a.directory.Start(); err != nil {
			errs = append(errs, fmt.Errorf("directory: %w", err))
		}
	}
	if a.bridge != nil {
		if err := a.bridge.Start(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt bridge: %w", err))
		}
	}
	return errors.Join(errs...)
}

// shutdown withdraws every device and stops the network-facing parts.
func (a *app) shutdown() {
	if a.directory != nil {
		a.directory.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.loop.Do(ctx, func() {
		a.registry.Stop()
		a.registry.Close()
		a.engine.Close()
	})
	if err != nil {
		a.log.Warn("withdrawing devices failed", "error", err)
	}

	if a.bridge != nil {
		a.bridge.Stop()
	}
	a.closeServer()
}

func (a *app) closeServer() {
	if err := a.server.Close(); err != nil {
		a.log.Error("error closing API server", "error", err)
	}
}

// listenPort extracts the port of a bound host:port address.
func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parsing API address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("parsing API port %q: %w", p, err)
	}
	return port, nil
}

// close releases what newApp opened. Deferred calls run in reverse
// order of opening.
func (a *app) close() {
	if a.influx != nil {
		points, writeErrors := a.influx.Stats()
		a.log.Info("closing InfluxDB connection", "points", points, "write_errors", writeErrors)
		if err := a.influx.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if a.mqtt != nil {
		a.log.Info("disconnecting from MQTT")
		if err := a.mqtt.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("error closing uuid store", "error", err)
		}
	}
}

// uuidStoreConfig maps the configuration onto the uuid store. The SQLite
// backend shares database.path.
func uuidStoreConfig(cfg *config.Config) uuidstore.Config {
	out := uuidstore.Config{
		Backend: cfg.UPnP.UUIDStore.Backend,
		Path:    cfg.UPnP.UUIDStore.Path,
	}
	if out.Backend == uuidstore.BackendSQLite {
		out.Path = cfg.Database.Path
		out.WALMode = cfg.Database.WALMode
		out.BusyTimeout = cfg.Database.BusyTimeout
	}
	return out
}

// buildProviders creates the built-in devices listed in upnp.devices.
func buildProviders(cfg *config.Config, now func() time.Time) ([]provider.Provider, error) {
	out := make([]provider.Provider, 0, len(cfg.UPnP.Devices))
	for i, d := range cfg.UPnP.Devices {
		m := provider.Manifest{
			UniqueID:     d.UniqueID,
			DisplayName:  d.Name,
			FullName:     d.FullName,
			Manufacturer: d.Manufacturer,
			ModelNumber:  d.ModelNumber,
			Description:  d.Description,
		}
		if m.Manufacturer == "" {
			m.Manufacturer = cfg.UPnP.Manufacturer
		}

		switch d.Kind {
		case config.DeviceKindBinaryLight:
			out = append(out, provider.NewSwitch(m))
		case config.DeviceKindMediaRenderer:
			out = append(out, provider.NewPlayer(m, now))
		default:
			return nil, fmt.Errorf("upnp.devices[%d]: unsupported kind %q", i, d.Kind)
		}
	}
	return out, nil
}
