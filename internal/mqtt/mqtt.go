// Package mqtt ingests switch events published by the switch firmware.
package mqtt

import (
	"encoding/json"
	"fmt"

	"switch-relay/internal/relay"
)

// Handler receives decoded switch events. The relay core implements it.
type Handler interface {
	RecordEvent(ev relay.SwitchEvent) (relay.Result, error)
}

// eventPayload is the wire format the firmware publishes:
// {"deviceId": "desk-a", "switchId": 0, "state": 1, "timestamp": 123456}
// deviceId is optional, state is 1 for pressed and 0 for released, and
// timestamp is the device's millis-since-boot counter.
type eventPayload struct {
	DeviceID  string `json:"deviceId"`
	SwitchID  *int   `json:"switchId"`
	State     *int   `json:"state"`
	Timestamp *int64 `json:"timestamp"`
}

// DecodeEvent parses a firmware payload into a switch event. A missing
// deviceId falls back to defaultDeviceID. The device timestamp is
// informational only and is not carried into ObservedAt; the core stamps
// events with its own clock.
func DecodeEvent(payload []byte, defaultDeviceID string) (relay.SwitchEvent, error) {
	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return relay.SwitchEvent{}, fmt.Errorf("%w: %v", relay.ErrInvalidEvent, err)
	}

	if p.SwitchID == nil || *p.SwitchID < 0 {
		return relay.SwitchEvent{}, fmt.Errorf("%w: missing or negative switchId", relay.ErrInvalidEvent)
	}
	if p.State == nil || (*p.State != 0 && *p.State != 1) {
		return relay.SwitchEvent{}, fmt.Errorf("%w: state must be 0 or 1", relay.ErrInvalidEvent)
	}

	deviceID := p.DeviceID
	if deviceID == "" {
		deviceID = defaultDeviceID
	}
	if deviceID == "" {
		return relay.SwitchEvent{}, fmt.Errorf("%w: no deviceId and no default configured", relay.ErrInvalidEvent)
	}

	return relay.SwitchEvent{
		DeviceID: deviceID,
		SwitchID: *p.SwitchID,
		Pressed:  *p.State == 1,
	}, nil
}
