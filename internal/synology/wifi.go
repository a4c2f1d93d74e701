package synology

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

// Default radio used by station mode calls when none is given.
const defaultStationRadio = "2.4G"

// WiFiAPI covers the SYNO.Wifi namespace.
type WiFiAPI struct {
	api
}

func wifiCall(api, method string, params map[string]string) Call {
	return Call{
		Endpoint: "entry.cgi",
		API:      api,
		Method:   method,
		Version:  1,
		Params:   params,
	}
}

func stationRadio(radioType string) string {
	if radioType == "" {
		return defaultStationRadio
	}
	return radioType
}

// GetNetworkSetting returns the full WiFi configuration with every profile and radio.
func (w *WiFiAPI) GetNetworkSetting(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.Network.Setting", "get", nil))
}

// SetNetworkSetting writes the whole profile list back. profiles is either
// the list itself or an object holding it under "profiles".
func (w *WiFiAPI) SetNetworkSetting(ctx context.Context, profiles any) (any, error) {
	list, err := profileList(profiles)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(list)
	if err != nil {
		return nil, errors.Wrap(err, "encode profiles")
	}

	return w.call(ctx, wifiCall("SYNO.Wifi.Network.Setting", "set", map[string]string{
		"profiles": string(encoded),
	}))
}

func profileList(profiles any) (any, error) {
	switch p := profiles.(type) {
	case []any, []Record:
		return p, nil
	case wifi.Snapshot:
		if list, ok := p["profiles"]; ok {
			return list, nil
		}
	case Record:
		if list, ok := p["profiles"]; ok {
			return list, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidProfiles, "got %T", profiles)
}

// GetConnectedDevices lists the WiFi clients matching filters.
func (w *WiFiAPI) GetConnectedDevices(ctx context.Context, filters map[string]any) ([]Record, error) {
	devices, err := w.list(ctx, wifiCall("SYNO.Wifi.Device", "get", nil), "device_list")
	if err != nil {
		return nil, err
	}
	return filter(devices, filters), nil
}

func (w *WiFiAPI) DisconnectDevice(ctx context.Context, mac string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Device", "disconnect", map[string]string{"mac": mac}))
}

func (w *WiFiAPI) BlockDevice(ctx context.Context, mac string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Device", "block", map[string]string{"mac": mac}))
}

func (w *WiFiAPI) UnblockDevice(ctx context.Context, mac string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Device", "unblock", map[string]string{"mac": mac}))
}

// GetRadioStatus returns the status of every band.
func (w *WiFiAPI) GetRadioStatus(ctx context.Context) ([]Record, error) {
	return w.list(ctx, wifiCall("SYNO.Wifi.Radio.Status", "get", nil), "status_list")
}

func (w *WiFiAPI) GetRadioCapability(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.Radio.Capability", "get", nil))
}

func (w *WiFiAPI) SetRadioChannel(ctx context.Context, radioType string, channel int) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Radio.Setting", "set", map[string]string{
		"radio_type": radioType,
		"channel":    strconv.Itoa(channel),
	}))
}

// SetRadioPower sets the transmission power in percent (0-100).
func (w *WiFiAPI) SetRadioPower(ctx context.Context, radioType string, txPower int) (any, error) {
	if txPower < 0 || txPower > 100 {
		return nil, errors.Newf("tx power must be between 0 and 100, got %d", txPower)
	}
	return w.call(ctx, wifiCall("SYNO.Wifi.Radio.Setting", "set", map[string]string{
		"radio_type": radioType,
		"tx_power":   strconv.Itoa(txPower),
	}))
}

func (w *WiFiAPI) GetCountryCodes(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.CountryCode.Capability", "get", nil))
}

// GetCurrentCountryCode returns the regulatory country code, or "" when unset.
func (w *WiFiAPI) GetCurrentCountryCode(ctx context.Context) (string, error) {
	record, err := w.object(ctx, wifiCall("SYNO.Wifi.CountryCode.Setting", "get", nil))
	if err != nil {
		return "", err
	}
	code, _ := record["country_code"].(string)
	return code, nil
}

func (w *WiFiAPI) SetCountryCode(ctx context.Context, countryCode string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.CountryCode.Setting", "set", map[string]string{
		"country_code": countryCode,
	}))
}

func (w *WiFiAPI) GetWPSStatus(ctx context.Context) ([]Record, error) {
	return w.list(ctx, wifiCall("SYNO.Wifi.WPS.Status", "get", nil), "status_list")
}

// StartWPSPBC starts WPS push button configuration.
func (w *WiFiAPI) StartWPSPBC(ctx context.Context) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.WPS.Main.PBC", "start", nil))
}

func (w *WiFiAPI) StopWPS(ctx context.Context) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.WPS.Main", "stop", nil))
}

func (w *WiFiAPI) GetWPSPin(ctx context.Context) (string, error) {
	record, err := w.object(ctx, wifiCall("SYNO.Wifi.WPS.Main.PIN.AP", "get", nil))
	if err != nil {
		return "", err
	}
	switch pin := record["pin"].(type) {
	case string:
		return pin, nil
	case json.Number:
		return pin.String(), nil
	default:
		return "", nil
	}
}

func (w *WiFiAPI) StartWifiScan(ctx context.Context, radioType string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Station.Scan", "start", map[string]string{
		"radio_type": stationRadio(radioType),
	}))
}

func (w *WiFiAPI) GetWifiScanResults(ctx context.Context, radioType string) ([]Record, error) {
	return w.list(ctx, wifiCall("SYNO.Wifi.Station.Scan", "get", map[string]string{
		"radio_type": stationRadio(radioType),
	}), "networks")
}

func (w *WiFiAPI) GetMACFilterProfiles(ctx context.Context) ([]Record, error) {
	return w.list(ctx, wifiCall("SYNO.Wifi.MACFilter.Profile", "list", nil), "profiles")
}

// CreateMACFilterProfile creates a MAC filter profile and returns the router's answer,
// which carries the new profile id.
func (w *WiFiAPI) CreateMACFilterProfile(ctx context.Context, name, description string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.MACFilter.Profile", "create", map[string]string{
		"name":        name,
		"description": description,
	}))
}

func (w *WiFiAPI) GetGlobalCapability(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.Global.Capability", "get", nil))
}

func (w *WiFiAPI) GetHWButtonStatus(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.Global.HWButton", "get", nil))
}

func (w *WiFiAPI) SetHWButtonEnabled(ctx context.Context, enabled bool) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Global.HWButton", "set", map[string]string{
		"enabled": strconv.FormatBool(enabled),
	}))
}

// GetStationStatus reports the uplink state when the router acts as a WiFi client.
func (w *WiFiAPI) GetStationStatus(ctx context.Context) (Record, error) {
	return w.object(ctx, wifiCall("SYNO.Wifi.Station.Status", "get", nil))
}

func (w *WiFiAPI) ConnectToNetwork(ctx context.Context, ssid, password, security, radioType string) (any, error) {
	if security == "" {
		security = string(wifi.SecurityWPA2PSK)
	}
	return w.call(ctx, wifiCall("SYNO.Wifi.Station.Setting", "connect", map[string]string{
		"ssid":       ssid,
		"password":   password,
		"security":   security,
		"radio_type": stationRadio(radioType),
	}))
}

func (w *WiFiAPI) DisconnectFromNetwork(ctx context.Context, radioType string) (any, error) {
	return w.call(ctx, wifiCall("SYNO.Wifi.Station.Setting", "disconnect", map[string]string{
		"radio_type": stationRadio(radioType),
	}))
}
