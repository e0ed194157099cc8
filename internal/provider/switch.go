package provider

import "sync"

// Switch is a BinarySwitch that keeps its state in memory.
// Bridges embed it and react to changes through OnChange.
type Switch struct {
	manifest Manifest
	props    *Properties

	mu       sync.Mutex
	state    bool
	onChange func(on bool)
}

// NewSwitch creates a switch that starts off.
func NewSwitch(m Manifest) *Switch {
	s := &Switch{manifest: m, props: NewProperties()}
	s.props.Init(PropState, false)
	return s
}

// Manifest returns the switch's manifest.
func (s *Switch) Manifest() Manifest { return s.manifest }

// Properties returns the evented property set.
func (s *Switch) Properties() *Properties { return s.props }

// State reports whether the switch is on.
func (s *Switch) State() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState turns the switch on or off and calls the OnChange hook when
// the state actually changed.
func (s *Switch) SetState(on bool) {
	s.mu.Lock()
	changed := s.state != on
	s.state = on
	hook := s.onChange
	s.mu.Unlock()

	s.props.Set(PropState, on)
	if changed && hook != nil {
		hook(on)
	}
}

// UpdateState records a state reported by the device itself. Unlike
// SetState it never calls the OnChange hook.
func (s *Switch) UpdateState(on bool) {
	s.mu.Lock()
	s.state = on
	s.mu.Unlock()

	s.props.Set(PropState, on)
}

// OnChange installs a hook called after SetState changes the state.
func (s *Switch) OnChange(fn func(on bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}
