// /internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/keshon/datastore"

	"switch-relay/internal/relay"
)

const (
	deviceKeyPrefix = "device:"
	groupKeyPrefix  = "group:"
	defaultsKey     = "defaults"
)

// SwitchEntry is the persisted form of one switch-to-user mapping.
type SwitchEntry struct {
	SwitchID     int    `json:"switch_id"`
	OwnerUserID  string `json:"owner_user_id"`
	TargetUserID string `json:"target_user_id,omitempty"`
}

// Device is the persisted configuration of one event source.
type Device struct {
	ID              string        `json:"id"`
	Group           string        `json:"group,omitempty"`
	SwitchCount     int           `json:"switch_count,omitempty"`
	Switches        []SwitchEntry `json:"switches"`
	OfficeChannelID string        `json:"office_channel_id,omitempty"`
	DirectChannelID string        `json:"direct_channel_id,omitempty"`
	HoldTimeMs      int           `json:"hold_time_ms,omitempty"`
}

// GroupDefaults carries channel fallbacks shared by a device group.
type GroupDefaults struct {
	OfficeChannelID string `json:"office_channel_id,omitempty"`
	DirectChannelID string `json:"direct_channel_id,omitempty"`
}

// Defaults is the persisted global fallback record.
type Defaults struct {
	DefaultDeviceID string `json:"default_device_id,omitempty"`
	OfficeChannelID string `json:"office_channel_id,omitempty"`
	DirectChannelID string `json:"direct_channel_id,omitempty"`
}

// Registry persists device configuration in a JSON datastore file. It
// implements relay.MappingSource.
type Registry struct {
	ds       *datastore.DataStore
	fallback Defaults
}

// New opens (or creates) the devices file. The fallback defaults come
// from configuration and apply when no defaults record has been stored.
func New(filePath string, fallback Defaults) (*Registry, error) {
	ds, err := datastore.New(context.Background(), filePath)
	if err != nil {
		return nil, err
	}
	return &Registry{ds: ds, fallback: fallback}, nil
}

func (r *Registry) Close() error {
	return r.ds.Close()
}

// Save forces an immediate flush to disk.
func (r *Registry) Save() error {
	return r.ds.Flush()
}

// PutDevice stores or replaces a device record.
func (r *Registry) PutDevice(d Device) error {
	if d.ID == "" {
		return fmt.Errorf("device id is required")
	}
	for _, sw := range d.Switches {
		if sw.SwitchID < 0 {
			return fmt.Errorf("device %s: switch id %d is negative", d.ID, sw.SwitchID)
		}
		if sw.OwnerUserID == "" {
			return fmt.Errorf("device %s: switch %d has no owner user", d.ID, sw.SwitchID)
		}
	}
	r.ds.Set(deviceKeyPrefix+d.ID, d)
	return nil
}

// Device fetches a device record by ID.
func (r *Registry) Device(id string) (Device, bool) {
	var d Device
	if err := r.get(deviceKeyPrefix+id, &d); err != nil {
		return Device{}, false
	}
	return d, true
}

// DeleteDevice removes a device record. Removing an unknown device is a
// no-op.
func (r *Registry) DeleteDevice(id string) {
	r.ds.Delete(deviceKeyPrefix + id)
}

// Devices lists every stored device, sorted by ID.
func (r *Registry) Devices() []Device {
	var devices []Device
	for _, key := range r.ds.Keys() {
		if !strings.HasPrefix(key, deviceKeyPrefix) {
			continue
		}
		var d Device
		if err := r.get(key, &d); err != nil {
			continue
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// SetGroup stores channel fallbacks for a device group.
func (r *Registry) SetGroup(name string, g GroupDefaults) error {
	if name == "" {
		return fmt.Errorf("group name is required")
	}
	r.ds.Set(groupKeyPrefix+name, g)
	return nil
}

// SetDefaults stores the global fallback record.
func (r *Registry) SetDefaults(d Defaults) {
	r.ds.Set(defaultsKey, d)
}

// Mapping implements relay.MappingSource.
func (r *Registry) Mapping(deviceID string) (relay.DeviceMapping, bool) {
	d, ok := r.Device(deviceID)
	if !ok {
		return relay.DeviceMapping{}, false
	}
	return d.Mapping(), true
}

// GroupDefaults implements relay.MappingSource.
func (r *Registry) GroupDefaults(group string) (relay.GroupDefaults, bool) {
	var g GroupDefaults
	if err := r.get(groupKeyPrefix+group, &g); err != nil {
		return relay.GroupDefaults{}, false
	}
	return relay.GroupDefaults{
		OfficeChannelID: g.OfficeChannelID,
		DirectChannelID: g.DirectChannelID,
	}, true
}

// Defaults implements relay.MappingSource. A stored defaults record wins
// field by field over the configured fallback.
func (r *Registry) Defaults() relay.Defaults {
	merged := r.fallback
	var stored Defaults
	if err := r.get(defaultsKey, &stored); err == nil {
		if stored.DefaultDeviceID != "" {
			merged.DefaultDeviceID = stored.DefaultDeviceID
		}
		if stored.OfficeChannelID != "" {
			merged.OfficeChannelID = stored.OfficeChannelID
		}
		if stored.DirectChannelID != "" {
			merged.DirectChannelID = stored.DirectChannelID
		}
	}
	return relay.Defaults{
		DefaultDeviceID: merged.DefaultDeviceID,
		OfficeChannelID: merged.OfficeChannelID,
		DirectChannelID: merged.DirectChannelID,
	}
}

// Mapping converts the persisted record into the core's form.
func (d Device) Mapping() relay.DeviceMapping {
	m := relay.DeviceMapping{
		ID:              d.ID,
		Group:           d.Group,
		SwitchCount:     d.SwitchCount,
		OfficeChannelID: d.OfficeChannelID,
		DirectChannelID: d.DirectChannelID,
		HoldTime:        time.Duration(d.HoldTimeMs) * time.Millisecond,
	}
	for _, sw := range d.Switches {
		m.Switches = append(m.Switches, relay.SwitchEntry{
			SwitchID:     sw.SwitchID,
			OwnerUserID:  sw.OwnerUserID,
			TargetUserID: sw.TargetUserID,
		})
	}
	return m
}

// get round-trips a stored value through JSON into a typed record.
func (r *Registry) get(key string, v any) error {
	exists, err := r.ds.Get(key, v)
	if err != nil {
		return fmt.Errorf("error unmarshalling record: %w", err)
	}
	if !exists {
		return fmt.Errorf("key %s not found", key)
	}
	return nil
}
