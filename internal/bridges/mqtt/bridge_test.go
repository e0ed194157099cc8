package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	mqttclient "github.com/nerrad567/gray-logic-upnp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
)

// mockBus implements Bus for testing.
type mockBus struct {
	mu           sync.Mutex
	published    []mockPublish
	handlers     map[string]mqttclient.MessageHandler
	unsubscribed []string
	subErr       error
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string]mqttclient.MessageHandler)}
}

func (m *mockBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{topic, string(payload), qos, retained})
	return nil
}

func (m *mockBus) Subscribe(topic string, _ byte, handler mqttclient.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockBus) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockBus) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	return h(topic, []byte(payload))
}

func (m *mockBus) messages() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func testSwitches() []config.MQTTSwitchConfig {
	return []config.MQTTSwitchConfig{
		{
			UniqueID:     "kitchen-light",
			Name:         "Kitchen Light",
			CommandTopic: "home/kitchen/light/set",
			StateTopic:   "home/kitchen/light/state",
		},
		{
			UniqueID:     "porch-light",
			CommandTopic: "home/porch/light/set",
			StateTopic:   "home/porch/light/state",
		},
	}
}

func newTestBridge(t *testing.T) (*Bridge, *mockBus) {
	t.Helper()
	bus := newMockBus()
	b, err := New(Options{
		Bus:      bus,
		Topics:   mqttclient.NewTopics("test/upnp"),
		QoS:      1,
		Switches: testSwitches(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, bus
}

func TestNew_Switches(t *testing.T) {
	b, _ := newTestBridge(t)

	sws := b.Switches()
	if len(sws) != 2 {
		t.Fatalf("Switches() len = %d, want 2", len(sws))
	}
	if got := sws[0].Manifest().DisplayName; got != "Kitchen Light" {
		t.Errorf("DisplayName = %q, want Kitchen Light", got)
	}
	if got := sws[1].Manifest().DisplayName; got != "porch-light" {
		t.Errorf("DisplayName without name = %q, want unique id", got)
	}
	if sws[0].CommandTopic() != "home/kitchen/light/set" || sws[0].StateTopic() != "home/kitchen/light/state" {
		t.Errorf("topics = %q, %q", sws[0].CommandTopic(), sws[0].StateTopic())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no bus", Options{}},
		{"no unique id", Options{Bus: newMockBus(), Switches: []config.MQTTSwitchConfig{
			{CommandTopic: "a/set", StateTopic: "a/state"},
		}}},
		{"no state topic", Options{Bus: newMockBus(), Switches: []config.MQTTSwitchConfig{
			{UniqueID: "a", CommandTopic: "a/set"},
		}}},
		{"duplicate", Options{Bus: newMockBus(), Switches: []config.MQTTSwitchConfig{
			{UniqueID: "a", CommandTopic: "a/set", StateTopic: "a/state"},
			{UniqueID: "a", CommandTopic: "b/set", StateTopic: "b/state"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_DefaultTopics(t *testing.T) {
	b, err := New(Options{Bus: newMockBus()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.topics.Prefix != mqttclient.DefaultTopicPrefix {
		t.Errorf("Prefix = %q, want %q", b.topics.Prefix, mqttclient.DefaultTopicPrefix)
	}
}

func TestStart_SubscribesStateTopics(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, topic := range []string{"home/kitchen/light/state", "home/porch/light/state"} {
		if _, ok := bus.handlers[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}

	b.Stop()
	if diff := cmp.Diff([]string{"home/kitchen/light/state", "home/porch/light/state"}, bus.unsubscribed); diff != "" {
		t.Errorf("unsubscribed mismatch (-want +got):\n%s", diff)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	b, bus := newTestBridge(t)
	bus.subErr = errors.New("broker down")

	if err := b.Start(); err == nil {
		t.Fatal("Start() should fail when subscribe fails")
	}
	b.Stop()
	if len(bus.unsubscribed) != 0 {
		t.Errorf("unsubscribed = %v after failed start, want none", bus.unsubscribed)
	}
}

func TestStateTopic_UpdatesSwitchWithoutCommand(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sw := b.Switches()[0]

	if err := bus.deliver(t, "home/kitchen/light/state", "ON"); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !sw.State() {
		t.Error("State() = false after ON message")
	}

	err := bus.deliver(t, "home/kitchen/light/state", "maybe")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("handler error = %v, want ErrInvalidPayload", err)
	}
	if !sw.State() {
		t.Error("invalid payload changed the state")
	}

	b.Stop()
	if msgs := bus.messages(); len(msgs) != 0 {
		t.Errorf("state updates published %v, want nothing", msgs)
	}
}

func TestSetState_PublishesCommand(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sw := b.Switches()[0]

	sw.SetState(true)
	sw.SetState(true) // unchanged, no second command
	sw.SetState(false)
	b.Stop()

	want := []mockPublish{
		{Topic: "home/kitchen/light/set", Payload: "ON", QoS: 1},
		{Topic: "home/kitchen/light/set", Payload: "OFF", QoS: 1},
	}
	if diff := cmp.Diff(want, bus.messages()); diff != "" {
		t.Errorf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceEvent(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.DeviceEvent(device.Event{Type: device.EventAvailable, UUID: "u1", Time: at})
	b.DeviceEvent(device.Event{
		Type:    device.EventPropertyChanged,
		UUID:    "u1",
		Changes: map[string]any{"state": true},
		Time:    at,
	})
	b.DeviceEvent(device.Event{Type: device.EventUnavailable, UUID: "u1", Time: at})
	b.Stop()

	msgs := bus.messages()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3: %v", len(msgs), msgs)
	}

	if diff := cmp.Diff(mockPublish{
		Topic: "test/upnp/device/u1/availability", Payload: "online", QoS: 1, Retained: true,
	}, msgs[0]); diff != "" {
		t.Errorf("available mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(mockPublish{
		Topic: "test/upnp/device/u1/availability", Payload: "offline", QoS: 1, Retained: true,
	}, msgs[2]); diff != "" {
		t.Errorf("unavailable mismatch (-want +got):\n%s", diff)
	}

	if msgs[1].Topic != "test/upnp/device/u1/properties" || msgs[1].Retained {
		t.Errorf("properties message = %+v", msgs[1])
	}
	var ev struct {
		Type    string         `json:"type"`
		UUID    string         `json:"uuid"`
		Changes map[string]any `json:"changes"`
	}
	if err := json.Unmarshal([]byte(msgs[1].Payload), &ev); err != nil {
		t.Fatalf("properties payload: %v", err)
	}
	if ev.Type != "property.changed" || ev.UUID != "u1" || ev.Changes["state"] != true {
		t.Errorf("properties payload = %+v", ev)
	}
}

func TestDirectoryEvents(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d := directory.Device{
		UDN:          "uuid:remote-1",
		FriendlyName: "Living Room TV",
		DeviceType:   "urn:schemas-upnp-org:device:MediaRenderer:1",
	}
	b.Added(d)
	b.Removed(d)
	b.Stop()

	msgs := bus.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "test/upnp/directory/uuid:remote-1" || !msgs[0].Retained {
		t.Errorf("added message = %+v", msgs[0])
	}
	var got directory.Device
	if err := json.Unmarshal([]byte(msgs[0].Payload), &got); err != nil {
		t.Fatalf("added payload: %v", err)
	}
	if got.FriendlyName != "Living Room TV" {
		t.Errorf("FriendlyName = %q", got.FriendlyName)
	}
	if msgs[1].Payload != "" || !msgs[1].Retained {
		t.Errorf("removed message = %+v, want empty retained", msgs[1])
	}
}

func TestEnqueue_AfterStopIsDropped(t *testing.T) {
	b, bus := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	b.Stop()
	b.Stop()

	b.DeviceEvent(device.Event{Type: device.EventAvailable, UUID: "u1"})
	if msgs := bus.messages(); len(msgs) != 0 {
		t.Errorf("published after Stop: %v", msgs)
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		wantErr bool
	}{
		{"ON", true, false},
		{"off", false, false},
		{" true\n", true, false},
		{"0", false, false},
		{"1", true, false},
		{`{"state":true}`, true, false},
		{`{"on":false}`, false, false},
		{`{"brightness":10}`, false, true},
		{`{"state":`, false, true},
		{"", false, true},
		{"dim", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := parseState([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseState(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("error = %v, want ErrInvalidPayload", err)
			}
			if got != tt.want {
				t.Errorf("parseState(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}
