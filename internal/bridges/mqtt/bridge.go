package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	mqttclient "github.com/nerrad567/gray-logic-upnp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
)

// outboxSize bounds the messages waiting to be published.
const outboxSize = 256

// Availability payloads published on a device's availability topic.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Bus is the part of the MQTT client the bridge needs.
// *mqttclient.Client implements it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqttclient.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the bridge.
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

// Options holds configuration for creating a bridge.
type Options struct {
	// Bus is the connected MQTT client.
	Bus Bus

	// Topics names the topics events are published on.
	Topics mqttclient.Topics

	// QoS is used for every publish and subscribe.
	QoS byte

	// Switches are exposed as UPnP BinaryLight devices.
	Switches []config.MQTTSwitchConfig

	// Manufacturer is written into every switch manifest. Empty leaves the
	// description default.
	Manufacturer string

	// Logger is optional.
	Logger Logger
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge connects MQTT switches and UPnP events to a broker.
type Bridge struct {
	bus      Bus
	topics   mqttclient.Topics
	qos      byte
	switches []*Switch

	outbox   chan message
	done     chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New builds a bridge and its switches. Call Start to subscribe and begin
// publishing.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidConfig)
	}
	if opts.Topics.Prefix == "" {
		opts.Topics = mqttclient.NewTopics("")
	}

	b := &Bridge{
		bus:    opts.Bus,
		topics: opts.Topics,
		qos:    opts.QoS,
		outbox: make(chan message, outboxSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	if opts.Logger != nil {
		b.logger = opts.Logger
	}

	seen := make(map[string]bool, len(opts.Switches))
	for _, sc := range opts.Switches {
		sw, err := newSwitch(sc, opts.Manufacturer)
		if err != nil {
			return nil, err
		}
		if seen[sc.UniqueID] {
			return nil, fmt.Errorf("%w: duplicate switch %q", ErrInvalidConfig, sc.UniqueID)
		}
		seen[sc.UniqueID] = true

		sw.OnChange(func(on bool) {
			b.enqueue(message{topic: sw.commandTopic, payload: formatState(on)})
		})
		b.switches = append(b.switches, sw)
	}
	return b, nil
}

// SetLogger replaces the bridge logger. A nil logger is ignored.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Switches returns the configured switches, ready to be registered.
func (b *Bridge) Switches() []*Switch {
	return b.switches
}

// Start subscribes to every switch state topic and starts the publisher.
func (b *Bridge) Start() error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return nil
	}

	for _, sw := range b.switches {
		if err := b.bus.Subscribe(sw.stateTopic, b.qos, b.stateHandler(sw)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", sw.stateTopic, err)
		}
	}

	b.started = true
	b.wg.Add(1)
	go b.publishLoop()

	b.getLogger().Info("MQTT bridge started", "switches", len(b.switches), "prefix", b.topics.Prefix)
	return nil
}

// Stop unsubscribes, publishes what is already queued and stops the
// publisher. It is safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.startMu.Lock()
		started := b.started
		b.startMu.Unlock()

		if started {
			for _, sw := range b.switches {
				if err := b.bus.Unsubscribe(sw.stateTopic); err != nil {
					b.getLogger().Debug("MQTT unsubscribe failed", "topic", sw.stateTopic, "error", err)
				}
			}
		}
		close(b.done)
		b.wg.Wait()
	})
}

// DeviceEvent publishes a registry event. It is meant to be installed
// with device.Registry.AddListener and never blocks.
func (b *Bridge) DeviceEvent(ev device.Event) {
	switch ev.Type {
	case device.EventAvailable:
		b.enqueue(message{
			topic:    b.topics.DeviceAvailability(ev.UUID),
			payload:  []byte(AvailabilityOnline),
			retained: true,
		})
	case device.EventUnavailable:
		b.enqueue(message{
			topic:    b.topics.DeviceAvailability(ev.UUID),
			payload:  []byte(AvailabilityOffline),
			retained: true,
		})
	case device.EventPropertyChanged:
		payload, err := json.Marshal(ev)
		if err != nil {
			b.getLogger().Warn("encoding property change failed", "uuid", ev.UUID, "error", err)
			return
		}
		b.enqueue(message{topic: b.topics.DeviceProperties(ev.UUID), payload: payload})
	}
}

// Added implements directory.Listener.
func (b *Bridge) Added(d directory.Device) {
	payload, err := json.Marshal(d)
	if err != nil {
		b.getLogger().Warn("encoding directory device failed", "udn", d.UDN, "error", err)
		return
	}
	b.enqueue(message{topic: b.topics.DirectoryDevice(d.UDN), payload: payload, retained: true})
}

// Removed implements directory.Listener. An empty retained message clears
// the device's topic.
func (b *Bridge) Removed(d directory.Device) {
	b.enqueue(message{topic: b.topics.DirectoryDevice(d.UDN), payload: []byte{}, retained: true})
}

// stateHandler applies state topic messages to sw. Handlers run on the
// MQTT client's goroutines; provider change delivery posts to the event
// loop.
func (b *Bridge) stateHandler(sw *Switch) mqttclient.MessageHandler {
	return func(topic string, payload []byte) error {
		on, err := parseState(payload)
		if err != nil {
			return fmt.Errorf("switch %s: %w", sw.Manifest().UniqueID, err)
		}
		sw.UpdateState(on)
		b.getLogger().Debug("MQTT switch state", "unique_id", sw.Manifest().UniqueID, "topic", topic, "on", on)
		return nil
	}
}

func (b *Bridge) enqueue(m message) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.outbox <- m:
	default:
		b.getLogger().Warn("MQTT outbox full, dropping message", "topic", m.topic)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case m := <-b.outbox:
			b.publish(m)
		case <-b.done:
			for {
				select {
				case m := <-b.outbox:
					b.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(m message) {
	if err := b.bus.Publish(m.topic, m.payload, b.qos, m.retained); err != nil {
		b.getLogger().Warn("MQTT publish failed", "topic", m.topic, "error", err)
	}
}
