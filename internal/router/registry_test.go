package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func TestRegistryAddRemove(t *testing.T) {
	reg := NewRegistry()
	office, _ := newTestRouter(t, "office", nil)
	home, _ := newTestRouter(t, "home", nil)

	require.NoError(t, reg.Add(office))
	require.NoError(t, reg.Add(home))
	assert.ErrorIs(t, reg.Add(home), ErrRouterExists)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "home", all[0].Name())
	assert.Equal(t, "office", all[1].Name())

	got, ok := reg.Get("home")
	require.True(t, ok)
	assert.Same(t, home, got)

	removed, ok := reg.Remove("home")
	require.True(t, ok)
	assert.Same(t, home, removed)
	_, ok = reg.Get("home")
	assert.False(t, ok)

	_, ok = reg.Remove("home")
	assert.False(t, ok)
}

func TestServiceCallValidation(t *testing.T) {
	reg := NewRegistry()
	r, _ := newTestRouter(t, "home", nil)
	require.NoError(t, reg.Add(r))
	ctx := context.Background()

	tests := []struct {
		name    string
		service string
		call    ServiceCall
		want    error
	}{
		{"unknown service", "reboot", ServiceCall{}, ErrUnknownService},
		{"enable without target", ServiceEnableWiFi, ServiceCall{}, ErrInvalidServiceCall},
		{"profile without radio", ServiceDisableWiFi, ServiceCall{ProfileID: intPtr(0)}, ErrInvalidServiceCall},
		{"toggle without profile", ServiceToggleSmartConnect, ServiceCall{}, ErrInvalidServiceCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, reg.Call(ctx, tt.service, tt.call, SourceService), tt.want)
		})
	}
}

func TestServiceCallWithoutRouters(t *testing.T) {
	err := NewRegistry().Call(context.Background(), ServiceEnableWiFi, ServiceCall{NetworkName: "Home"}, SourceService)
	assert.Error(t, err)
}

func TestServiceEnableByNetworkName(t *testing.T) {
	reg := NewRegistry()
	home, homeMock := newTestRouter(t, "home", nil)
	office, officeMock := newTestRouter(t, "office", nil)
	officeMock.SetWifiConfig(`{"profiles": [{"id": 0, "name": "Office", "enable_smart_connect": false, "radio_list": [
		{"radio_type": "2.4G", "ssid": "Office", "enable": true}]}]}`)
	require.NoError(t, reg.Add(home))
	require.NoError(t, reg.Add(office))

	err := reg.Call(context.Background(), ServiceEnableWiFi, ServiceCall{NetworkName: "Home-5G"}, SourceService)
	require.NoError(t, err)

	assert.Equal(t, 1, homeMock.Writes())
	assert.Equal(t, 0, officeMock.Writes(), "routers without the network are skipped")

	model, ok := home.Model()
	require.True(t, ok)
	assert.True(t, model.IsEnabled(0, wifi.Radio5G1))
}

func TestServiceUnknownNetwork(t *testing.T) {
	reg := NewRegistry()
	r, mock := newTestRouter(t, "home", nil)
	require.NoError(t, reg.Add(r))

	err := reg.Call(context.Background(), ServiceDisableWiFi, ServiceCall{NetworkName: "Nowhere"}, SourceService)
	assert.ErrorIs(t, err, wifi.ErrRadioNotFound)
	assert.Equal(t, 0, mock.Writes())
}

func TestServiceByProfileAndRadio(t *testing.T) {
	reg := NewRegistry()
	r, mock := newTestRouter(t, "home", nil)
	require.NoError(t, reg.Add(r))
	ctx := context.Background()

	err := reg.Call(ctx, ServiceDisableWiFi, ServiceCall{ProfileID: intPtr(0), RadioType: wifi.Radio24G}, SourceService)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Writes())

	err = reg.Call(ctx, ServiceEnableWiFi, ServiceCall{ProfileID: intPtr(1), RadioType: wifi.Radio24G}, SourceService)
	assert.ErrorIs(t, err, wifi.ErrRadioUnavailable)
	assert.Equal(t, 1, mock.Writes())
}

func TestServiceToggleSmartConnect(t *testing.T) {
	reg := NewRegistry()
	r, _ := newTestRouter(t, "home", nil)
	require.NoError(t, reg.Add(r))
	ctx := context.Background()

	// enable defaults to true
	require.NoError(t, reg.Call(ctx, ServiceToggleSmartConnect, ServiceCall{ProfileID: intPtr(0)}, SourceService))
	model, _ := r.Model()
	assert.True(t, model.IsSmartConnectEnabled(0))

	require.NoError(t, reg.Call(ctx, ServiceToggleSmartConnect, ServiceCall{ProfileID: intPtr(0), Enable: boolPtr(false)}, SourceService))
	model, _ = r.Model()
	assert.False(t, model.IsSmartConnectEnabled(0))

	err := reg.Call(ctx, ServiceToggleSmartConnect, ServiceCall{ProfileID: intPtr(7)}, SourceService)
	assert.ErrorIs(t, err, wifi.ErrProfileNotFound)
}

func TestServiceReportsRouterFailures(t *testing.T) {
	reg := NewRegistry()
	r, mock := newTestRouter(t, "home", nil)
	require.NoError(t, reg.Add(r))

	mock.FailNext("SYNO.Wifi.Network.Setting", 117)
	err := reg.Call(context.Background(), ServiceEnableWiFi, ServiceCall{NetworkName: "Home-5G"}, SourceService)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router home")
	assert.Equal(t, 0, mock.Writes())
}
