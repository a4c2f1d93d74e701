package synology

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

// Client aggregates the SRM API namespaces over one shared Transport.
type Client struct {
	Base *BaseAPI
	WiFi *WiFiAPI
	Mesh *MeshAPI
	Core *CoreAPI

	transport *Transport
}

// NewClient creates a new SRM client. No request is sent until the first call.
func NewClient(opts Options) (*Client, error) {
	transport, err := NewTransport(opts)
	if err != nil {
		return nil, err
	}
	return newClient(transport), nil
}

func newClient(transport *Transport) *Client {
	shared := api{transport: transport}
	return &Client{
		Base:      &BaseAPI{shared},
		WiFi:      &WiFiAPI{shared},
		Mesh:      &MeshAPI{shared},
		Core:      &CoreAPI{shared},
		transport: transport,
	}
}

// Transport exposes the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Close ends the router session.
func (c *Client) Close(ctx context.Context) error {
	return c.transport.Logout(ctx)
}

// CheckConnection verifies the router answers the public API query.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.Base.QueryInfo(ctx)
	return err
}

// FetchCurrentConfiguration reads the WiFi configuration. Every call returns
// an independent snapshot that callers may mutate freely.
func (c *Client) FetchCurrentConfiguration(ctx context.Context) (wifi.Snapshot, error) {
	raw, err := c.transport.Call(ctx, wifiCall("SYNO.Wifi.Network.Setting", "get", nil))
	if err != nil {
		return nil, err
	}
	snapshot, err := wifi.DecodeSnapshot(raw)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformedResponse)
	}
	return snapshot, nil
}

// PushConfiguration writes the whole snapshot back in a single call.
func (c *Client) PushConfiguration(ctx context.Context, snapshot wifi.Snapshot) (bool, error) {
	result, err := c.WiFi.SetNetworkSetting(ctx, snapshot)
	if err != nil {
		return false, err
	}
	return successFlag(result), nil
}

func (c *Client) GetWifiNetworkSetting(ctx context.Context) (Record, error) {
	return c.WiFi.GetNetworkSetting(ctx)
}

// SetWifiNetworkSetting accepts a profile list or a full configuration object.
func (c *Client) SetWifiNetworkSetting(ctx context.Context, config any) (any, error) {
	return c.WiFi.SetNetworkSetting(ctx, config)
}

func (c *Client) GetWifiConnectedDevices(ctx context.Context, filters map[string]any) ([]Record, error) {
	return c.WiFi.GetConnectedDevices(ctx, filters)
}

func (c *Client) GetWifiRadioStatus(ctx context.Context) ([]Record, error) {
	return c.WiFi.GetRadioStatus(ctx)
}

func (c *Client) DisconnectWifiDevice(ctx context.Context, mac string) (bool, error) {
	return flag(c.WiFi.DisconnectDevice(ctx, mac))
}

func (c *Client) BlockWifiDevice(ctx context.Context, mac string) (bool, error) {
	return flag(c.WiFi.BlockDevice(ctx, mac))
}

func (c *Client) UnblockWifiDevice(ctx context.Context, mac string) (bool, error) {
	return flag(c.WiFi.UnblockDevice(ctx, mac))
}

func (c *Client) StartWPS(ctx context.Context) (bool, error) {
	return flag(c.WiFi.StartWPSPBC(ctx))
}

func (c *Client) StopWPS(ctx context.Context) (bool, error) {
	return flag(c.WiFi.StopWPS(ctx))
}

func (c *Client) GetWPSStatus(ctx context.Context) ([]Record, error) {
	return c.WiFi.GetWPSStatus(ctx)
}

// ScanWifiNetworks starts a scan on radioType and returns what the router has found so far.
func (c *Client) ScanWifiNetworks(ctx context.Context, radioType string) ([]Record, error) {
	if _, err := c.WiFi.StartWifiScan(ctx, radioType); err != nil {
		return nil, err
	}
	return c.WiFi.GetWifiScanResults(ctx, radioType)
}

func (c *Client) SetWifiChannel(ctx context.Context, radioType string, channel int) (bool, error) {
	return flag(c.WiFi.SetRadioChannel(ctx, radioType, channel))
}

func (c *Client) SetWifiPower(ctx context.Context, radioType string, power int) (bool, error) {
	return flag(c.WiFi.SetRadioPower(ctx, radioType, power))
}

func (c *Client) GetWifiCountryCode(ctx context.Context) (string, error) {
	return c.WiFi.GetCurrentCountryCode(ctx)
}

func (c *Client) SetWifiCountryCode(ctx context.Context, countryCode string) (bool, error) {
	return flag(c.WiFi.SetCountryCode(ctx, countryCode))
}

// Download streams an archive produced by the given call into w.
func (c *Client) Download(ctx context.Context, call Call, w io.Writer) (int64, error) {
	return c.transport.Download(ctx, call, w)
}

// Raw performs an arbitrary call and returns the undecoded payload.
func (c *Client) Raw(ctx context.Context, call Call) (json.RawMessage, error) {
	return c.transport.Call(ctx, call)
}

func flag(result any, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return successFlag(result), nil
}
