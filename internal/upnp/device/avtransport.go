package device

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-upnp/internal/provider"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/soap"
)

// AVTransport transport states.
const (
	TransportStopped        = "STOPPED"
	TransportPlaying        = "PLAYING"
	TransportPausedPlayback = "PAUSED_PLAYBACK"
	TransportNoMediaPresent = "NO_MEDIA_PRESENT"
)

// Seek units.
const (
	seekRelTime = "REL_TIME"
	seekAbsTime = "ABS_TIME"
)

// notImplemented is the value UPnP AV uses for unsupported features.
const notImplemented = "NOT_IMPLEMENTED"

// counterUnknown is reported for the byte counters, which are not tracked.
const counterUnknown = "2147483647"

// AVTransport implements AVTransport:1 on a media player. Its variables
// are evented through LastChange.
type AVTransport struct {
	player provider.MediaPlayer
}

// NewAVTransport creates the controller for player.
func NewAVTransport(player provider.MediaPlayer) *AVTransport {
	return &AVTransport{player: player}
}

// Actions implements Controller.
func (c *AVTransport) Actions() soap.ActionTable {
	return soap.ActionTable{
		"SetAVTransportURI":     c.setAVTransportURI,
		"GetMediaInfo":          c.getMediaInfo,
		"GetTransportInfo":      c.getTransportInfo,
		"GetPositionInfo":       c.getPositionInfo,
		"GetDeviceCapabilities": c.getDeviceCapabilities,
		"GetTransportSettings":  c.getTransportSettings,
		"Stop":                  c.stop,
		"Play":                  c.play,
		"Pause":                 c.pause,
		"Seek":                  c.seek,
	}
}

// State implements Controller.
func (c *AVTransport) State() map[string]any {
	source := c.player.Source()
	duration := provider.FormatDuration(c.player.CurrentTrackDuration())
	return map[string]any{
		"TransportState":         c.transportState(),
		"AVTransportURI":         source,
		"AVTransportURIMetaData": c.player.SourceMetaData(),
		"CurrentTrackURI":        source,
		"NumberOfTracks":         c.player.Tracks(),
		"CurrentTrack":           c.player.CurrentTrack(),
		"CurrentTrackDuration":   duration,
		"CurrentMediaDuration":   duration,
	}
}

// Changes implements Controller. A changed source can move the transport
// state between NO_MEDIA_PRESENT and STOPPED, so it re-reports
// TransportState as well.
func (c *AVTransport) Changes(cs provider.ChangeSet) map[string]any {
	out := make(map[string]any)
	_, stateChanged := cs[provider.PropState]
	source, sourceChanged := cs[provider.PropSource]
	if stateChanged || sourceChanged {
		out["TransportState"] = c.transportState()
	}
	if sourceChanged {
		out["AVTransportURI"] = source
		out["CurrentTrackURI"] = source
	}
	if v, ok := cs[provider.PropSourceMetaData]; ok {
		out["AVTransportURIMetaData"] = v
	}
	if v, ok := cs[provider.PropTracks]; ok {
		out["NumberOfTracks"] = v
	}
	if v, ok := cs[provider.PropCurrentTrack]; ok {
		out["CurrentTrack"] = v
	}
	if v, ok := cs[provider.PropCurrentTrackDuration].(time.Duration); ok {
		out["CurrentTrackDuration"] = provider.FormatDuration(v)
		out["CurrentMediaDuration"] = provider.FormatDuration(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// EventNamespace implements Controller.
func (c *AVTransport) EventNamespace() string { return upnp.AVTransportMetadata }

// transportState maps the player state to the AVTransport vocabulary.
func (c *AVTransport) transportState() string {
	switch c.player.TransportState() {
	case provider.StatePlaying:
		return TransportPlaying
	case provider.StatePaused:
		return TransportPausedPlayback
	case provider.StateStopped:
		return TransportStopped
	default:
		if c.player.Source() == "" {
			return TransportNoMediaPresent
		}
		return TransportStopped
	}
}

func (c *AVTransport) setAVTransportURI(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	uri, err := requireArg(req, "CurrentURI")
	if err != nil {
		return nil, err
	}
	meta, _ := req.Arg("CurrentURIMetaData")
	c.player.Load(uri, meta)
	return nil, nil
}

func (c *AVTransport) getMediaInfo(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	medium := "NONE"
	if c.player.Source() != "" {
		medium = "NETWORK"
	}
	return []soap.Arg{
		{Name: "NrTracks", Value: itoa(c.player.Tracks())},
		{Name: "MediaDuration", Value: provider.FormatDuration(c.player.CurrentTrackDuration())},
		{Name: "CurrentURI", Value: c.player.Source()},
		{Name: "CurrentURIMetaData", Value: c.player.SourceMetaData()},
		{Name: "NextURI", Value: ""},
		{Name: "NextURIMetaData", Value: ""},
		{Name: "PlayMedium", Value: medium},
		{Name: "RecordMedium", Value: notImplemented},
		{Name: "WriteStatus", Value: notImplemented},
	}, nil
}

func (c *AVTransport) getTransportInfo(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	return []soap.Arg{
		{Name: "CurrentTransportState", Value: c.transportState()},
		{Name: "CurrentTransportStatus", Value: "OK"},
		{Name: "CurrentSpeed", Value: "1"},
	}, nil
}

func (c *AVTransport) getPositionInfo(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	position := provider.FormatDuration(c.player.CurrentPosition())
	return []soap.Arg{
		{Name: "Track", Value: itoa(c.player.CurrentTrack())},
		{Name: "TrackDuration", Value: provider.FormatDuration(c.player.CurrentTrackDuration())},
		{Name: "TrackMetaData", Value: c.player.SourceMetaData()},
		{Name: "TrackURI", Value: c.player.Source()},
		{Name: "RelTime", Value: position},
		{Name: "AbsTime", Value: position},
		{Name: "RelCount", Value: counterUnknown},
		{Name: "AbsCount", Value: counterUnknown},
	}, nil
}

func (c *AVTransport) getDeviceCapabilities(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	return []soap.Arg{
		{Name: "PlayMedia", Value: "NETWORK"},
		{Name: "RecMedia", Value: notImplemented},
		{Name: "RecQualityModes", Value: notImplemented},
	}, nil
}

func (c *AVTransport) getTransportSettings(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	return []soap.Arg{
		{Name: "PlayMode", Value: "NORMAL"},
		{Name: "RecQualityMode", Value: notImplemented},
	}, nil
}

func (c *AVTransport) stop(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	c.player.Stop()
	return nil, nil
}

// play accepts only the normal speed "1".
func (c *AVTransport) play(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	if speed, ok := req.Arg("Speed"); ok && speed != "1" {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}
	c.player.Play()
	return nil, nil
}

func (c *AVTransport) pause(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	c.player.Pause()
	return nil, nil
}

// seek moves within the current track. Only time-based units are
// supported; targets past a known track duration are out of range.
func (c *AVTransport) seek(_ context.Context, req *soap.Request) ([]soap.Arg, error) {
	if err := checkInstance(req); err != nil {
		return nil, err
	}
	unit, err := requireArg(req, "Unit")
	if err != nil {
		return nil, err
	}
	target, err := requireArg(req, "Target")
	if err != nil {
		return nil, err
	}
	if unit != seekRelTime && unit != seekAbsTime {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}

	position, err := provider.ParseDuration(target)
	if err != nil {
		return nil, soap.NewError(soap.CodeArgumentValueInvalid)
	}
	if d := c.player.CurrentTrackDuration(); d > 0 && position > d {
		return nil, soap.NewError(soap.CodeArgumentValueOutOfRange)
	}
	if err := c.player.Seek(position); err != nil {
		if errors.Is(err, provider.ErrNoSource) {
			return nil, soap.NewError(soap.CodeArgumentValueInvalid)
		}
		return nil, err
	}
	return nil, nil
}
