package wifi

// RadioType identifies a radio within a profile.
type RadioType string

const (
	Radio24G          RadioType = "2.4G"
	Radio5G1          RadioType = "5G-1"
	Radio5G2          RadioType = "5G-2"
	RadioSmartConnect RadioType = "SmartConnect"

	// SmartConnectToggle is the pseudo radio type of the per-profile Smart Connect switch.
	SmartConnectToggle RadioType = "smart_connect_toggle"
)

type NetworkType string

const (
	NetworkPrimary NetworkType = "primary"
	NetworkGuest   NetworkType = "guest"
	NetworkCustom  NetworkType = "custom"
)

type SecurityLevel string

const (
	SecurityOpen        SecurityLevel = "open"
	SecurityWPA2PSK     SecurityLevel = "wpa2_psk"
	SecurityWPA3PSK     SecurityLevel = "wpa3_psk"
	SecurityWPA2WPA3PSK SecurityLevel = "wpa2_wpa3_psk"
)

// SwitchType tells the adapter which kind of switch a Descriptor describes.
type SwitchType string

const (
	SwitchRadio              SwitchType = "radio"
	SwitchSmartConnectToggle SwitchType = "smart_connect_toggle"
)

// SmartConnectToggleSSID is the label used for Smart Connect toggle descriptors.
const SmartConnectToggleSSID = " SmartConnect Toggle"

// Descriptor is one controllable network entry derived from a snapshot.
type Descriptor struct {
	ProfileID       int         `json:"profile_id"`
	RadioType       RadioType   `json:"radio_type"`
	SSID            string      `json:"ssid"`
	NetworkType     NetworkType `json:"network_type"`
	ProfileName     string      `json:"profile_name"`
	SwitchType      SwitchType  `json:"switch_type"`
	Enabled         bool        `json:"enabled"`
	Available       bool        `json:"available"`
	AlwaysAvailable bool        `json:"always_available"`
}

// IsToggle reports whether d is the Smart Connect toggle of its profile.
func (d Descriptor) IsToggle() bool {
	return d.SwitchType == SwitchSmartConnectToggle
}

// RadioDetails are the secondary radio attributes shown next to a switch.
type RadioDetails struct {
	Hidden          bool          `json:"hidden"`
	SecurityLevel   SecurityLevel `json:"security_level"`
	MaxConnections  int           `json:"max_connections"`
	ClientIsolation bool          `json:"client_isolation"`
}
