package relay

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock. Timers fire synchronously from
// Advance, in scheduling order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	when    time.Time
	stopped bool
	fired   bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f, when: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

// Advance moves the clock forward and fires every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sendCall struct {
	UserID    string
	ChannelID string
}

// fakeSender records relocation calls and returns canned results.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sendCall
	results map[string]SendResult // keyed by user ID
}

func newFakeSender() *fakeSender {
	return &fakeSender{results: make(map[string]SendResult)}
}

func (s *fakeSender) Send(userID, channelID string) SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sendCall{UserID: userID, ChannelID: channelID})
	if res, ok := s.results[userID]; ok {
		return res
	}
	return SendResult{Status: SendSuccess}
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSender) callsFor(userID string) []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sendCall
	for _, c := range s.calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// fakeSource is an in-memory mapping source.
type fakeSource struct {
	devices  map[string]DeviceMapping
	groups   map[string]GroupDefaults
	defaults Defaults
}

func (f *fakeSource) Mapping(deviceID string) (DeviceMapping, bool) {
	m, ok := f.devices[deviceID]
	return m, ok
}

func (f *fakeSource) GroupDefaults(group string) (GroupDefaults, bool) {
	g, ok := f.groups[group]
	return g, ok
}

func (f *fakeSource) Defaults() Defaults {
	return f.defaults
}

// threeSwitchDevice is the firmware's shipped configuration: three
// switches, each owned by a user, switch 0 with a guest target.
func threeSwitchDevice() DeviceMapping {
	return DeviceMapping{
		ID:          "desk-a",
		SwitchCount: 3,
		Switches: []SwitchEntry{
			{SwitchID: 0, OwnerUserID: "u1", TargetUserID: "u2"},
			{SwitchID: 1, OwnerUserID: "u3"},
			{SwitchID: 2, OwnerUserID: "u4"},
		},
		OfficeChannelID: "office",
		DirectChannelID: "direct",
	}
}

type testRelay struct {
	relay  *Relay
	clock  *fakeClock
	sender *fakeSender
	source *fakeSource
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	return newTestRelayCooldown(t, 5*time.Second)
}

func newTestRelayCooldown(t *testing.T, cooldown time.Duration) *testRelay {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	sender := newFakeSender()
	source := &fakeSource{
		devices: map[string]DeviceMapping{
			"desk-a": threeSwitchDevice(),
		},
		groups:   map[string]GroupDefaults{},
		defaults: Defaults{DefaultDeviceID: "desk-a"},
	}

	dispatcher := NewDispatcher(sender, clock, cooldown)
	r := New(NewResolver(source, 0), dispatcher, clock, 5*time.Second)
	return &testRelay{relay: r, clock: clock, sender: sender, source: source}
}

func (tr *testRelay) press(t *testing.T, deviceID string, switchID int) Result {
	t.Helper()
	res, err := tr.relay.RecordEvent(SwitchEvent{DeviceID: deviceID, SwitchID: switchID, Pressed: true})
	if err != nil {
		t.Fatalf("press %d on %s: %v", switchID, deviceID, err)
	}
	return res
}

func (tr *testRelay) release(t *testing.T, deviceID string, switchID int) Result {
	t.Helper()
	res, err := tr.relay.RecordEvent(SwitchEvent{DeviceID: deviceID, SwitchID: switchID, Pressed: false})
	if err != nil {
		t.Fatalf("release %d on %s: %v", switchID, deviceID, err)
	}
	return res
}

// armDevice drives desk-a into the armed state and verifies it.
func (tr *testRelay) armDevice(t *testing.T) {
	t.Helper()
	tr.press(t, "desk-a", 0)
	tr.clock.Advance(50 * time.Millisecond)
	tr.press(t, "desk-a", 1)
	tr.clock.Advance(50 * time.Millisecond)
	res := tr.press(t, "desk-a", 2)
	if !res.AllPressed {
		t.Fatal("expected all switches pressed")
	}
	if res.Action != ActionArmed {
		t.Fatalf("expected armed action, got %q", res.Action)
	}
}
