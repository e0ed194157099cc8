package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-upnp/internal/provider"
)

// Command payloads published on a switch's command topic.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Switch is a BinarySwitch whose real state lives behind MQTT topics.
type Switch struct {
	*provider.Switch

	commandTopic string
	stateTopic   string
}

func newSwitch(cfg config.MQTTSwitchConfig, manufacturer string) (*Switch, error) {
	if cfg.UniqueID == "" {
		return nil, fmt.Errorf("%w: switch needs a unique_id", ErrInvalidConfig)
	}
	if cfg.CommandTopic == "" || cfg.StateTopic == "" {
		return nil, fmt.Errorf("%w: switch %q needs command_topic and state_topic", ErrInvalidConfig, cfg.UniqueID)
	}
	name := cfg.Name
	if name == "" {
		name = cfg.UniqueID
	}
	return &Switch{
		Switch: provider.NewSwitch(provider.Manifest{
			UniqueID:     cfg.UniqueID,
			DisplayName:  name,
			Manufacturer: manufacturer,
			ModelNumber:  "MQTT Switch",
			Description:  "On/off device on " + cfg.CommandTopic,
		}),
		commandTopic: cfg.CommandTopic,
		stateTopic:   cfg.StateTopic,
	}, nil
}

// CommandTopic returns the topic SetState publishes on.
func (s *Switch) CommandTopic() string { return s.commandTopic }

// StateTopic returns the topic the switch follows.
func (s *Switch) StateTopic() string { return s.stateTopic }

// formatState returns the command payload for on.
func formatState(on bool) []byte {
	if on {
		return []byte(PayloadOn)
	}
	return []byte(PayloadOff)
}

// parseState reads an on/off state from a state topic payload.
func parseState(payload []byte) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJSONState(trimmed)
	}
	switch strings.ToLower(string(trimmed)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidPayload, trimmed)
}

func parseJSONState(payload []byte) (bool, error) {
	var msg struct {
		State *bool `json:"state"`
		On    *bool `json:"on"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	switch {
	case msg.State != nil:
		return *msg.State, nil
	case msg.On != nil:
		return *msg.On, nil
	}
	return false, fmt.Errorf("%w: no state or on field", ErrInvalidPayload)
}
