package gate

import "sync/atomic"

// EmergencySwitch is the process-wide kill switch checked before any other
// gating stage. Writes are rare (management API, startup); reads happen on
// every request, so the flag is a single atomic rather than a lock.
type EmergencySwitch struct {
	disabled atomic.Bool
}

// NewEmergencySwitch creates a switch with the given initial state.
func NewEmergencySwitch(disabled bool) *EmergencySwitch {
	s := &EmergencySwitch{}
	s.disabled.Store(disabled)
	return s
}

// Disabled reports whether the gateway is emergency-disabled.
func (s *EmergencySwitch) Disabled() bool {
	return s.disabled.Load()
}

// Set updates the flag. Takes effect on the very next request.
func (s *EmergencySwitch) Set(disabled bool) {
	s.disabled.Store(disabled)
}
