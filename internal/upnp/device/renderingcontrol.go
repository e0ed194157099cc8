package device

import (
	"context"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

const (
	masterChannel  = "Master"
	factoryPreset  = "FactoryDefaults"
	factoryVolume  = 50
	maxVolumeLevel = 100
)

// RenderingControl implements RenderingControl:1 on a media player.
// Volume and Mute are evented through LastChange.
type RenderingControl struct {
	player provider.MediaPlayer
}

// NewRenderingControl creates the controller for player.
func NewRenderingControl(player provider.MediaPlayer) *RenderingControl {
	return &RenderingControl{player: player}
}

// Actions implements Controller.
func (c *RenderingControl) Actions() soap.ActionTable {
	return soap.ActionTable{
		"ListPresets":  c.listPresets,
		"SelectPreset": c.selectPreset,
		"GetMute":      c.getMute,
		"SetMute":      c.setMute,
		"GetVolume":    c.getVolume,
		"SetVolume":    c.setVolume,
	}
}

// State implements Controller.
func (c *RenderingControl) State() map[string]any {
	return map[string]any{
		"Volume": c.player.Volume(),
		"Mute":   c.player.Mute(),
	}
}

// Changes implements Controller.
func (c *RenderingControl) Changes(cs provider.ChangeSet) map[string]any {
	out := make(map[string]any)
	if v, ok := cs[provider.PropVolume]; ok {
		out["Volume"] = v
	}
	if v, ok := cs[provider.PropMute]; ok {
		out["Mute"] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EventNamespace implements Controller.
func (c *RenderingControl) EventNamespace() string { return upnp.RenderingControlMetadata }

func (c *RenderingControl) listPresets(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	return []soap.Arg{{Name: "CurrentPresetNameList", Value: factoryPreset}}, nil
}

// selectPreset restores the factory volume and unmutes.
func (c *RenderingControl) selectPreset(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	name, err := requireArg(req, "PresetName")
	if err != nil {
		return nil, err
	}
	if name != factoryPreset {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}
	c.player.SetVolume(factoryVolume)
	c.player.SetMute(false)
	return nil, nil
}

func (c *RenderingControl) getMute(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkChannel(req); err != nil {
		return nil, err
	}
	return []soap.Arg{{Name: "CurrentMute", Value: formatBool(c.player.Mute())}}, nil
}

func (c *RenderingControl) setMute(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkChannel(req); err != nil {
		return nil, err
	}
	v, err := requireArg(req, "DesiredMute")
	if err != nil {
		return nil, err
	}
	mute, ok := parseBool(v)
	if !ok {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}
	c.player.SetMute(mute)
	return nil, nil
}

func (c *RenderingControl) getVolume(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkChannel(req); err != nil {
		return nil, err
	}
	return []soap.Arg{{Name: "CurrentVolume", Value: itoa(c.player.Volume())}}, nil
}

func (c *RenderingControl) setVolume(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkChannel(req); err != nil {
		return nil, err
	}
	v, err := requireArg(req, "DesiredVolume")
	if err != nil {
		return nil, err
	}
	volume, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}
	if volume < 0 || volume > maxVolumeLevel {
		return nil, soap.NewError(soap.CodeArgumentValueOutOfRange)
	}
	c.player.SetVolume(volume)
	return nil, nil
}

// checkChannel validates InstanceID and the Channel argument, of which
// only Master exists.
func checkChannel(req *soap.Request) error {
	if err := checkInstance(req); err != nil {
		return err
	}
	ch, err := requireArg(req, "Channel")
	if err != nil {
		return err
	}
	if ch != masterChannel {
		return soap.NewError(soap.CodeInvalidArgs)
	}
	return nil
}
