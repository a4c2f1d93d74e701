package router

import (
	"fmt"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

// Switch is one controllable entity derived from a network descriptor.
type Switch struct {
	UniqueID   string          `json:"unique_id"`
	Name       string          `json:"name"`
	Icon       string          `json:"icon"`
	On         bool            `json:"is_on"`
	Available  bool            `json:"available"`
	Descriptor wifi.Descriptor `json:"descriptor"`
	Attributes map[string]any  `json:"attributes"`
}

// UniqueID is stable across restarts: <host>_<profile>_<radio type>.
func UniqueID(host string, d wifi.Descriptor) string {
	return fmt.Sprintf("%s_%d_%s", host, d.ProfileID, d.RadioType)
}

func switchName(d wifi.Descriptor) string {
	if d.IsToggle() {
		return d.ProfileName + " - SmartConnect Toggle"
	}
	return fmt.Sprintf("%s - %s (%s)", d.ProfileName, d.SSID, d.RadioType)
}

func switchIcon(d wifi.Descriptor) string {
	switch {
	case d.IsToggle():
		return "mdi:wifi-settings"
	case d.RadioType == wifi.RadioSmartConnect:
		return "mdi:wifi-star"
	default:
		return "mdi:wifi"
	}
}

// buildSwitches turns the model summary into switches. Nothing is available
// while the last refresh failed.
func buildSwitches(host string, model *wifi.Model, healthy bool) []Switch {
	descriptors := model.Summarize()
	switches := make([]Switch, 0, len(descriptors))

	for _, d := range descriptors {
		s := Switch{
			UniqueID:   UniqueID(host, d),
			Name:       switchName(d),
			Icon:       switchIcon(d),
			On:         d.Enabled,
			Available:  healthy && d.Available,
			Descriptor: d,
		}

		if d.IsToggle() {
			s.Attributes = map[string]any{
				"profile_id":   d.ProfileID,
				"network_type": d.NetworkType,
				"switch_type":  d.SwitchType,
			}
		} else {
			s.Attributes = radioAttributes(model, d)
		}

		switches = append(switches, s)
	}

	return switches
}

func radioAttributes(model *wifi.Model, d wifi.Descriptor) map[string]any {
	attributes := map[string]any{
		"profile_id":            d.ProfileID,
		"radio_type":            d.RadioType,
		"network_type":          d.NetworkType,
		"ssid":                  d.SSID,
		"switch_type":           d.SwitchType,
		"smart_connect_enabled": model.IsSmartConnectEnabled(d.ProfileID),
		"radio_available":       d.Available,
	}

	if details, ok := model.RadioDetails(d.ProfileID, d.RadioType); ok {
		attributes["hidden"] = details.Hidden
		attributes["max_connections"] = details.MaxConnections
		attributes["client_isolation"] = details.ClientIsolation
		if details.SecurityLevel != "" {
			attributes["security_level"] = details.SecurityLevel
		} else {
			attributes["security_level"] = nil
		}
	}

	return attributes
}
