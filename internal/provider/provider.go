package provider

import "time"

// Manifest holds the descriptive data of a provider. It is set once at
// construction and never changes.
type Manifest struct {
	// UniqueID persists across restarts and keys the stored UUID.
	// Empty means the provider gets a fresh UUID every time it registers.
	UniqueID string

	DisplayName  string
	FullName     string
	Manufacturer string
	ModelNumber  string
	Description  string
}

// Provider is a device or service that can be published on the network.
type Provider interface {
	Manifest() Manifest
	Properties() *Properties
}

// BinarySwitch is anything with an on and an off state.
type BinarySwitch interface {
	Provider
	State() bool
	SetState(on bool)
}

// TransportState is the playback state of a MediaPlayer.
type TransportState string

// Transport states.
const (
	StateIdle    TransportState = "IDLE"
	StatePlaying TransportState = "PLAYING"
	StatePaused  TransportState = "PAUSED"
	StateStopped TransportState = "STOPPED"
)

// MediaPlayer is anything that can load and play a media URI.
type MediaPlayer interface {
	Provider

	TransportState() TransportState
	Source() string
	SourceMetaData() string
	Tracks() int
	CurrentTrack() int

	// CurrentTrackDuration is zero when unknown.
	CurrentTrackDuration() time.Duration
	CurrentPosition() time.Duration

	Load(uri, metaData string)
	Play()
	Pause()
	Stop()
	Seek(position time.Duration) error

	Volume() int
	SetVolume(v int)
	Mute() bool
	SetMute(m bool)
}

// Evented property names. Values are stored with the Go types noted.
const (
	PropState                = "state"                  // bool (switch) or string (player)
	PropSource               = "source"                 // string
	PropSourceMetaData       = "source_meta_data"       // string
	PropTracks               = "tracks"                 // int
	PropCurrentTrack         = "current_track"          // int
	PropCurrentTrackDuration = "current_track_duration" // time.Duration
	PropVolume               = "volume"                 // int
	PropMute                 = "mute"                   // bool
)
