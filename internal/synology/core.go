package synology

import "context"

// CoreAPI covers the SYNO.Core namespace.
type CoreAPI struct {
	api
}

func (c *CoreAPI) GetSystemUtilization(ctx context.Context) (Record, error) {
	return c.object(ctx, Call{
		Endpoint: "entry.cgi",
		API:      "SYNO.Core.System.Utilization",
		Method:   "get",
		Version:  1,
	})
}

// GetNetworkDevices lists the devices known to the network manager that match filters.
func (c *CoreAPI) GetNetworkDevices(ctx context.Context, filters map[string]any) ([]Record, error) {
	devices, err := c.list(ctx, Call{
		Endpoint: "entry.cgi",
		API:      "SYNO.Core.Network.NSM.Device",
		Method:   "get",
		Version:  1,
		Params:   map[string]string{"info": "basic"},
	}, "devices")
	if err != nil {
		return nil, err
	}
	return filter(devices, filters), nil
}

// GetTraffic returns per-device traffic statistics. interval is one of
// live, day, week, month (defaults to live).
func (c *CoreAPI) GetTraffic(ctx context.Context, interval string) ([]Record, error) {
	if interval == "" {
		interval = "live"
	}
	value, err := c.call(ctx, Call{
		Endpoint: "entry.cgi",
		API:      "SYNO.Core.NGFW.Traffic",
		Method:   "get",
		Version:  1,
		Params:   map[string]string{"interval": interval},
	})
	if err != nil {
		return nil, err
	}
	return records(value), nil
}
