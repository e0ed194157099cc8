package provider

import (
	"sync"
	"time"
)

const defaultVolume = 50

// Player is a MediaPlayer that tracks transport state, position and
// rendering settings in memory. It does not produce audio; renderers wrap
// it and act on the state it reports.
type Player struct {
	manifest Manifest
	props    *Properties
	now      func() time.Time

	mu            sync.Mutex
	state         TransportState
	source        string
	metaData      string
	tracks        int
	currentTrack  int
	trackDuration time.Duration
	position      time.Duration // position at playingSince, or current when not playing
	playingSince  time.Time
	volume        int
	mute          bool
}

// NewPlayer creates an idle player. now is the time source for position
// tracking; nil means time.Now.
func NewPlayer(m Manifest, now func() time.Time) *Player {
	if now == nil {
		now = time.Now
	}
	p := &Player{
		manifest: m,
		props:    NewProperties(),
		now:      now,
		state:    StateIdle,
		volume:   defaultVolume,
	}
	p.props.Init(PropState, string(StateIdle))
	p.props.Init(PropSource, "")
	p.props.Init(PropSourceMetaData, "")
	p.props.Init(PropTracks, 0)
	p.props.Init(PropCurrentTrack, 0)
	p.props.Init(PropCurrentTrackDuration, time.Duration(0))
	p.props.Init(PropVolume, defaultVolume)
	p.props.Init(PropMute, false)
	return p
}

// Manifest returns the player's manifest.
func (p *Player) Manifest() Manifest { return p.manifest }

// Properties returns the evented property set.
func (p *Player) Properties() *Properties { return p.props }

// TransportState returns the current playback state.
func (p *Player) TransportState() TransportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Source returns the loaded URI, or "" when nothing is loaded.
func (p *Player) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// SourceMetaData returns the DIDL-Lite metadata passed with the source.
func (p *Player) SourceMetaData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metaData
}

// Tracks returns the number of tracks in the loaded source.
func (p *Player) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracks
}

// CurrentTrack returns the 1-based current track, or 0 when there is none.
func (p *Player) CurrentTrack() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTrack
}

// CurrentTrackDuration returns the track length, or 0 when unknown.
func (p *Player) CurrentTrackDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackDuration
}

// CurrentPosition returns the playback position within the current track.
func (p *Player) CurrentPosition() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	pos := p.position
	if p.state == StatePlaying {
		pos += p.now().Sub(p.playingSince)
	}
	if p.trackDuration > 0 && pos > p.trackDuration {
		pos = p.trackDuration
	}
	return pos
}

// Load makes uri the current source. Loading the URI that is already the
// source does nothing.
func (p *Player) Load(uri, metaData string) {
	b := p.props.BeginBatch()
	defer b.End()

	p.mu.Lock()
	if p.source == uri {
		p.mu.Unlock()
		return
	}
	p.source = uri
	p.metaData = metaData
	p.position = 0
	p.playingSince = p.now()
	p.mu.Unlock()

	p.props.Set(PropSource, uri)
	p.SetTracks(1)
	p.SetCurrentTrack(1)
	p.props.Set(PropSourceMetaData, metaData)
}

// Play starts playback. Without a source it does nothing.
func (p *Player) Play() {
	p.mu.Lock()
	if p.source == "" {
		p.mu.Unlock()
		return
	}
	if p.state != StatePlaying {
		p.playingSince = p.now()
	}
	p.state = StatePlaying
	p.mu.Unlock()

	p.props.Set(PropState, string(StatePlaying))
}

// Pause holds the current position. Without a source it does nothing.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.source == "" {
		p.mu.Unlock()
		return
	}
	p.position = p.positionLocked()
	p.state = StatePaused
	p.mu.Unlock()

	p.props.Set(PropState, string(StatePaused))
}

// Stop returns the player to IDLE and rewinds to the start of the track.
func (p *Player) Stop() {
	p.mu.Lock()
	p.position = 0
	p.state = StateIdle
	p.mu.Unlock()

	p.props.Set(PropState, string(StateIdle))
}

// Seek moves the playback position. Callers validate the target against
// CurrentTrackDuration.
func (p *Player) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == "" {
		return ErrNoSource
	}
	p.position = position
	p.playingSince = p.now()
	return nil
}

// SetTracks sets the number of tracks. Zero tracks also clears the
// current track.
func (p *Player) SetTracks(n int) {
	b := p.props.BeginBatch()
	defer b.End()

	p.mu.Lock()
	p.tracks = n
	p.mu.Unlock()

	p.props.Set(PropTracks, n)
	if n == 0 {
		p.SetCurrentTrack(0)
	}
}

// SetCurrentTrack sets the current track number.
func (p *Player) SetCurrentTrack(n int) {
	p.mu.Lock()
	p.currentTrack = n
	p.mu.Unlock()

	p.props.Set(PropCurrentTrack, n)
}

// SetCurrentTrackDuration records the length of the current track once
// the renderer knows it.
func (p *Player) SetCurrentTrackDuration(d time.Duration) {
	p.mu.Lock()
	p.trackDuration = d
	p.mu.Unlock()

	p.props.Set(PropCurrentTrackDuration, d)
}

// Volume returns the volume in the range 0..100.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the volume. Values are clamped to 0..100.
func (p *Player) SetVolume(v int) {
	v = max(0, min(100, v))

	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()

	p.props.Set(PropVolume, v)
}

// Mute reports whether output is muted.
func (p *Player) Mute() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mute
}

// SetMute mutes or unmutes output.
func (p *Player) SetMute(m bool) {
	p.mu.Lock()
	p.mute = m
	p.mu.Unlock()

	p.props.Set(PropMute, m)
}
