// Package relay holds the switch-to-Discord relocation core: per-device
// switch state, the all-pressed hold-timer state machine, and the
// cooldown-gated move dispatcher. The package performs no network I/O of
// its own; relocation calls go through the Sender collaborator.
package relay

import (
	"errors"
	"time"
)

// ErrInvalidEvent is returned for malformed events. The event is dropped
// with no state change.
var ErrInvalidEvent = errors.New("invalid switch event")

// SwitchEvent is a single validated press/release report from a device.
// ObservedAt is the device's own timestamp and is informational only;
// all timing decisions use the relay clock.
type SwitchEvent struct {
	DeviceID   string
	SwitchID   int
	Pressed    bool
	ObservedAt time.Time
}

// SwitchState is the last known state of one switch index.
type SwitchState struct {
	Pressed       bool
	LastChangedAt time.Time
}

// SwitchEntry maps one switch index to the user(s) it moves.
type SwitchEntry struct {
	SwitchID     int
	OwnerUserID  string
	TargetUserID string // optional
}

// DeviceMapping is a device's resolved switch-to-user configuration.
type DeviceMapping struct {
	ID              string
	Group           string
	SwitchCount     int
	Switches        []SwitchEntry
	OfficeChannelID string
	DirectChannelID string
	HoldTime        time.Duration // 0 = use the relay default
}

// GroupDefaults carries channel fallbacks shared by a device group.
type GroupDefaults struct {
	OfficeChannelID string
	DirectChannelID string
}

// Defaults carries the global fallbacks used when neither the device nor
// its group configures a value.
type Defaults struct {
	DefaultDeviceID string
	OfficeChannelID string
	DirectChannelID string
}

// MappingSource supplies device configuration to the resolver. The device
// registry implements it.
type MappingSource interface {
	Mapping(deviceID string) (DeviceMapping, bool)
	GroupDefaults(group string) (GroupDefaults, bool)
	Defaults() Defaults
}

// SendStatus classifies the result of one relocation call.
type SendStatus int

const (
	SendSuccess SendStatus = iota
	SendRateLimited
	SendNotConnected
	SendError
)

// SendResult is what the relocation sender reports back for one call.
type SendResult struct {
	Status     SendStatus
	StatusCode int
	Detail     string
}

// Sender performs the actual member relocation. This is the core's only
// network dependency.
type Sender interface {
	Send(userID, channelID string) SendResult
}

// OutcomeKind classifies a dispatcher outcome.
type OutcomeKind int

const (
	Moved OutcomeKind = iota
	Skipped
	RateLimited
	APIError
)

func (k OutcomeKind) String() string {
	switch k {
	case Moved:
		return "moved"
	case Skipped:
		return "skipped"
	case RateLimited:
		return "rate_limited"
	case APIError:
		return "api_error"
	}
	return "unknown"
}

// Skip reasons attached to Skipped outcomes.
const (
	SkipCooldown     = "cooldown"
	SkipNotConnected = "not-connected"
	SkipUnconfigured = "unconfigured"
)

// Outcome is the result of one move attempt for one user.
type Outcome struct {
	Kind      OutcomeKind
	UserID    string
	ChannelID string
	Reason    string // skip reason, or API error detail
	Status    int    // HTTP status for APIError
}

// Action names what the engine did in response to an event.
type Action string

const (
	ActionNone           Action = ""
	ActionSingleMove     Action = "single-move"
	ActionArmed          Action = "armed"
	ActionReturnToOffice Action = "return-to-office"
	ActionReset          Action = "reset"
)

// Result is returned to the transport boundary for logging and HTTP
// responses. States is the post-update view of the device's switches.
type Result struct {
	AllPressed bool
	Action     Action
	Outcomes   []Outcome
	States     map[int]SwitchState
}
