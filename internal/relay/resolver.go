package relay

import "log"

// Resolver turns a device identifier into its effective switch mapping and
// destination channels, applying the device to group to global fallback
// chain.
type Resolver struct {
	src           MappingSource
	fallbackCount int
}

// NewResolver creates a resolver over the given mapping source.
// fallbackCount is the switch count assumed for mappings that configure
// neither a count nor any switches.
func NewResolver(src MappingSource, fallbackCount int) *Resolver {
	return &Resolver{src: src, fallbackCount: fallbackCount}
}

// Resolve looks up the device's mapping. An unknown device falls back to
// the configured default device rather than failing; a missing channel
// simply stays empty and surfaces later as a skipped move.
func (r *Resolver) Resolve(deviceID string) DeviceMapping {
	defaults := r.src.Defaults()

	m, ok := r.src.Mapping(deviceID)
	if !ok {
		if deviceID != defaults.DefaultDeviceID {
			log.Printf("[WARN] Unknown device %q, falling back to default device %q", deviceID, defaults.DefaultDeviceID)
			m, ok = r.src.Mapping(defaults.DefaultDeviceID)
		}
		if !ok {
			m = DeviceMapping{ID: deviceID}
		}
	}

	if m.SwitchCount == 0 {
		m.SwitchCount = len(m.Switches)
	}
	if m.SwitchCount == 0 {
		m.SwitchCount = r.fallbackCount
	}

	var group GroupDefaults
	if m.Group != "" {
		group, _ = r.src.GroupDefaults(m.Group)
	}
	m.OfficeChannelID = firstNonEmpty(m.OfficeChannelID, group.OfficeChannelID, defaults.OfficeChannelID)
	m.DirectChannelID = firstNonEmpty(m.DirectChannelID, group.DirectChannelID, defaults.DirectChannelID)

	return m
}

// Users returns every distinct user referenced anywhere in the mapping,
// in order of first appearance.
func (m DeviceMapping) Users() []string {
	seen := make(map[string]bool)
	var users []string
	for _, sw := range m.Switches {
		for _, id := range []string{sw.OwnerUserID, sw.TargetUserID} {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			users = append(users, id)
		}
	}
	return users
}

// Entry returns the mapping entry for a switch index, if configured.
func (m DeviceMapping) Entry(switchID int) (SwitchEntry, bool) {
	for _, sw := range m.Switches {
		if sw.SwitchID == switchID {
			return sw, true
		}
	}
	return SwitchEntry{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
