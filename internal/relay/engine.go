package relay

import (
	"log"
	"sync"
	"time"

	"switch-relay/internal/metrics"
)

// Relay drives the per-device IDLE/ARMED state machine. A device arms
// when every configured switch is pressed, cancels back to IDLE (with a
// return-to-office sweep) when any switch releases before the hold-timer
// expires, and resets the device entirely when the timer fires while the
// composite condition still holds.
type Relay struct {
	resolver   *Resolver
	dispatcher *Dispatcher
	clock      Clock
	holdTime   time.Duration

	mu      sync.Mutex
	devices map[string]*deviceState
}

// New creates the relay core.
func New(resolver *Resolver, dispatcher *Dispatcher, clock Clock, holdTime time.Duration) *Relay {
	return &Relay{
		resolver:   resolver,
		dispatcher: dispatcher,
		clock:      clock,
		holdTime:   holdTime,
		devices:    make(map[string]*deviceState),
	}
}

// RecordEvent applies one switch event and returns what the engine did
// with it. Malformed events are dropped with ErrInvalidEvent and no state
// change.
func (r *Relay) RecordEvent(ev SwitchEvent) (Result, error) {
	if ev.DeviceID == "" || ev.SwitchID < 0 {
		return Result{}, ErrInvalidEvent
	}

	dev := r.device(ev.DeviceID)
	dev.mu.Lock()
	defer dev.mu.Unlock()

	m := r.resolver.Resolve(ev.DeviceID)

	at := ev.ObservedAt
	if at.IsZero() {
		at = r.clock.Now()
	}
	transition := dev.record(ev.SwitchID, ev.Pressed, at)
	all := dev.allPressed(m.SwitchCount)

	res := Result{AllPressed: all, States: dev.snapshot()}

	if dev.timer != nil {
		// ARMED. Redundant events during the hold window refresh state
		// only; single-switch moves are suppressed.
		if !all {
			dev.stopTimer()
			metrics.HoldTimer("cancelled")
			log.Printf("[INFO] Device %s released during hold window, returning users to office", ev.DeviceID)
			res.Action = ActionReturnToOffice
			res.Outcomes = r.moveAll(m, m.OfficeChannelID)
		}
		return res, nil
	}

	if all {
		r.arm(dev, ev.DeviceID, m)
		res.Action = ActionArmed
		return res, nil
	}

	if ev.Pressed && transition {
		entry, ok := m.Entry(ev.SwitchID)
		if !ok {
			return res, nil
		}
		res.Action = ActionSingleMove
		res.Outcomes = append(res.Outcomes, r.dispatcher.Move(entry.OwnerUserID, m.DirectChannelID))
		if entry.TargetUserID != "" {
			res.Outcomes = append(res.Outcomes, r.dispatcher.Move(entry.TargetUserID, m.DirectChannelID))
		}
	}

	return res, nil
}

// ResetDevice performs the same action as a hold-timer expiry: move every
// mapped user to the office channel, then clear the device's switch state
// and cooldown entries. Exposed for administrative resets.
func (r *Relay) ResetDevice(deviceID string) Result {
	dev := r.device(deviceID)
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.stopTimer() {
		metrics.HoldTimer("cancelled")
	}

	m := r.resolver.Resolve(deviceID)
	return Result{Action: ActionReset, Outcomes: r.resetLocked(dev, deviceID, m)}
}

// RemoveDevice drops a device's tracker state and any pending timer.
// Other devices are untouched.
func (r *Relay) RemoveDevice(deviceID string) {
	r.mu.Lock()
	dev := r.devices[deviceID]
	delete(r.devices, deviceID)
	r.mu.Unlock()

	if dev != nil {
		dev.mu.Lock()
		dev.stopTimer()
		dev.mu.Unlock()
	}
}

// SwitchStates returns the last known state of a device's switches.
func (r *Relay) SwitchStates(deviceID string) map[int]SwitchState {
	r.mu.Lock()
	dev := r.devices[deviceID]
	r.mu.Unlock()

	if dev == nil {
		return map[int]SwitchState{}
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.snapshot()
}

func (r *Relay) device(deviceID string) *deviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[deviceID]
	if !ok {
		dev = newDeviceState()
		r.devices[deviceID] = dev
	}
	return dev
}

// arm starts the single hold-timer for a device. Caller holds dev.mu.
func (r *Relay) arm(dev *deviceState, deviceID string, m DeviceMapping) {
	hold := m.HoldTime
	if hold <= 0 {
		hold = r.holdTime
	}

	dev.armedGen++
	gen := dev.armedGen
	dev.timer = r.clock.AfterFunc(hold, func() {
		r.onHoldExpired(deviceID, gen)
	})

	metrics.HoldTimer("armed")
	log.Printf("[INFO] Device %s armed: all %d switches pressed, reset in %v", deviceID, m.SwitchCount, hold)
}

// onHoldExpired runs when a hold-timer fires. The arm-time snapshot is
// not trusted: the composite condition is re-checked under the device
// lock, which resolves the race between firing and a concurrent cancel.
func (r *Relay) onHoldExpired(deviceID string, gen uint64) {
	r.mu.Lock()
	dev := r.devices[deviceID]
	r.mu.Unlock()
	if dev == nil {
		return
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.timer == nil || dev.armedGen != gen {
		// Cancelled (or re-armed) while this callback was in flight.
		return
	}
	dev.timer = nil

	m := r.resolver.Resolve(deviceID)
	if !dev.allPressed(m.SwitchCount) {
		metrics.HoldTimer("skipped")
		log.Printf("[INFO] Device %s hold expired after release, reset skipped", deviceID)
		return
	}

	metrics.HoldTimer("fired")
	log.Printf("[INFO] Device %s held for full window, resetting", deviceID)
	r.resetLocked(dev, deviceID, m)
}

// resetLocked sweeps every mapped user to the office channel, then clears
// the device's switch state and its users' cooldown entries. Caller holds
// dev.mu.
func (r *Relay) resetLocked(dev *deviceState, deviceID string, m DeviceMapping) []Outcome {
	outcomes := r.moveAll(m, m.OfficeChannelID)
	dev.clear()
	r.dispatcher.ClearUsers(m.Users())
	metrics.ResetPerformed()
	log.Printf("[INFO] Device %s reset: %d users swept, state cleared", deviceID, len(m.Users()))
	return outcomes
}

// moveAll relocates every distinct mapped user, one call at a time.
// A failed move never aborts the rest of the batch.
func (r *Relay) moveAll(m DeviceMapping, channelID string) []Outcome {
	var outcomes []Outcome
	for _, userID := range m.Users() {
		outcomes = append(outcomes, r.dispatcher.Move(userID, channelID))
	}
	return outcomes
}
