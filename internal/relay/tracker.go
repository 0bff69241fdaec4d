package relay

import (
	"sync"
	"time"
)

// deviceState is the serialization unit of the core: one mutex guards a
// device's switch states, its hold-timer, and the batch moves it issues.
// Devices never share state, so slow moves on one device cannot stall
// another device's events.
type deviceState struct {
	mu       sync.Mutex
	switches map[int]SwitchState
	timer    Timer
	armedGen uint64
}

func newDeviceState() *deviceState {
	return &deviceState{switches: make(map[int]SwitchState)}
}

// record stores the switch's new state. LastChangedAt only moves on an
// actual press/release transition; redundant events refresh nothing.
// Returns whether the event was a transition.
func (d *deviceState) record(switchID int, pressed bool, at time.Time) bool {
	prev, ok := d.switches[switchID]
	if ok && prev.Pressed == pressed {
		return false
	}
	d.switches[switchID] = SwitchState{Pressed: pressed, LastChangedAt: at}
	return true
}

// allPressed reports whether every configured index 0..count-1 has a
// stored pressed state. A missing index means false. Indices at or above
// count are stored but never counted.
func (d *deviceState) allPressed(count int) bool {
	if count <= 0 {
		return false
	}
	for i := 0; i < count; i++ {
		st, ok := d.switches[i]
		if !ok || !st.Pressed {
			return false
		}
	}
	return true
}

// snapshot copies the switch map for callers outside the device lock.
func (d *deviceState) snapshot() map[int]SwitchState {
	out := make(map[int]SwitchState, len(d.switches))
	for id, st := range d.switches {
		out[id] = st
	}
	return out
}

func (d *deviceState) clear() {
	d.switches = make(map[int]SwitchState)
}

// stopTimer cancels the pending hold-timer if one exists. Idempotent.
// Returns whether a timer was actually live.
func (d *deviceState) stopTimer() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}
