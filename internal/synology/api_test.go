package synology

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

func TestFilter(t *testing.T) {
	devices := []Record{
		{"mac": "aa", "band": "5G-1", "signal": json.Number("-45")},
		{"mac": "bb", "band": "2.4G", "signal": json.Number("-60")},
		{"mac": "cc"},
	}

	tests := []struct {
		name     string
		filters  map[string]any
		expected []string
	}{
		{"no filters", nil, []string{"aa", "bb", "cc"}},
		{"empty filters", map[string]any{}, []string{"aa", "bb", "cc"}},
		{"single field", map[string]any{"band": "2.4G"}, []string{"bb"}},
		{"numeric field", map[string]any{"signal": -45}, []string{"aa"}},
		{"all fields must match", map[string]any{"band": "5G-1", "mac": "bb"}, []string{}},
		{"missing key never matches", map[string]any{"band": "none"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			macs := []string{}
			for _, device := range filter(devices, tt.filters) {
				macs = append(macs, device["mac"].(string))
			}
			assert.Equal(t, tt.expected, macs)
		})
	}
}

type recordingCaller struct {
	calls []Call
	reply json.RawMessage
}

func (r *recordingCaller) Call(_ context.Context, call Call) (json.RawMessage, error) {
	r.calls = append(r.calls, call)
	return r.reply, nil
}

func TestSetNetworkSettingArguments(t *testing.T) {
	profiles := []any{map[string]any{"id": json.Number("1"), "radio_list": []any{}}}

	tests := []struct {
		name  string
		input any
	}{
		{"list", profiles},
		{"object", map[string]any{"profiles": profiles, "other": true}},
		{"snapshot", wifi.Snapshot{"profiles": profiles}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &recordingCaller{reply: json.RawMessage(`true`)}
			w := &WiFiAPI{api{transport: caller}}

			result, err := w.SetNetworkSetting(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, true, result)

			require.Len(t, caller.calls, 1)
			call := caller.calls[0]
			assert.Equal(t, "SYNO.Wifi.Network.Setting", call.API)
			assert.Equal(t, "set", call.Method)
			assert.JSONEq(t, `[{"id": 1, "radio_list": []}]`, call.Params["profiles"])
		})
	}
}

func TestSetNetworkSettingRejectsInvalidInput(t *testing.T) {
	inputs := []any{
		"profiles",
		42,
		map[string]any{"profile": []any{}},
		wifi.Snapshot{},
		nil,
	}

	for _, input := range inputs {
		caller := &recordingCaller{}
		w := &WiFiAPI{api{transport: caller}}

		_, err := w.SetNetworkSetting(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidProfiles, "input %#v", input)
		assert.Empty(t, caller.calls, "invalid input must not reach the router")
	}
}

func TestSuccessFlag(t *testing.T) {
	assert.True(t, successFlag(true))
	assert.False(t, successFlag(false))
	assert.True(t, successFlag(Record{"success": true}))
	assert.False(t, successFlag(Record{"success": false}))
	assert.True(t, successFlag(Record{"id": json.Number("3")}))
	assert.True(t, successFlag(nil))
}

func TestSetRadioPowerRange(t *testing.T) {
	caller := &recordingCaller{reply: json.RawMessage(`true`)}
	w := &WiFiAPI{api{transport: caller}}

	_, err := w.SetRadioPower(context.Background(), "2.4G", 101)
	assert.Error(t, err)
	assert.Empty(t, caller.calls)

	_, err = w.SetRadioPower(context.Background(), "2.4G", 50)
	require.NoError(t, err)
	require.Len(t, caller.calls, 1)
	assert.Equal(t, map[string]string{"radio_type": "2.4G", "tx_power": "50"}, caller.calls[0].Params)
}

func TestCountryCodeUsesSetVerb(t *testing.T) {
	caller := &recordingCaller{reply: json.RawMessage(`true`)}
	w := &WiFiAPI{api{transport: caller}}

	_, err := w.SetCountryCode(context.Background(), "UA")
	require.NoError(t, err)
	require.Len(t, caller.calls, 1)
	assert.Equal(t, "SYNO.Wifi.CountryCode.Setting", caller.calls[0].API)
	assert.Equal(t, "set", caller.calls[0].Method)
	assert.Equal(t, "UA", caller.calls[0].Params["country_code"])
}
