package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routerConfig = `{
  "profiles": [
    {
      "id": 1,
      "name": "Home",
      "network_type": "primary",
      "enable_smart_connect": false,
      "vendor_extra": {"band_steering": 3},
      "radio_list": [
        {"radio_type": "2.4G", "ssid": "Home", "enable": true, "hide_ssid": false,
         "security": {"security_level": "wpa2_psk"}, "max_connection": 64, "enable_client_isolation": false},
        {"radio_type": "5G-1", "ssid": "Home-5G", "enable": false},
        {"radio_type": "SmartConnect", "ssid": "Home-SC", "enable": false}
      ]
    },
    {
      "id": 2,
      "name": "Guests",
      "network_type": "guest",
      "enable_smart_connect": true,
      "radio_list": [
        {"radio_type": "2.4G", "ssid": "Guest", "enable": true},
        {"radio_type": "SmartConnect", "ssid": "Guest-SC", "enable": true, "hide_ssid": true, "max_connection": 16}
      ]
    }
  ]
}`

func loadModel(t *testing.T, raw string) *Model {
	t.Helper()
	snapshot, err := DecodeSnapshot([]byte(raw))
	require.NoError(t, err)
	return BuildModel(snapshot)
}

func TestSummarizeLengthAndOrder(t *testing.T) {
	model := loadModel(t, routerConfig)

	descriptors := model.Summarize()
	// 2 profiles + 5 radios
	require.Len(t, descriptors, 7)

	var order []string
	for _, d := range descriptors {
		order = append(order, string(d.RadioType))
	}
	assert.Equal(t, []string{
		"smart_connect_toggle", "2.4G", "5G-1", "SmartConnect",
		"smart_connect_toggle", "2.4G", "SmartConnect",
	}, order)

	assert.Equal(t, descriptors, model.Summarize(), "summary must be deterministic")
}

func TestSummarizeOneTogglePerProfile(t *testing.T) {
	model := loadModel(t, routerConfig)

	toggles := map[int]int{}
	for _, d := range model.Summarize() {
		if d.SwitchType == SwitchSmartConnectToggle {
			toggles[d.ProfileID]++
			assert.True(t, d.AlwaysAvailable)
			assert.Equal(t, SmartConnectToggleSSID, d.SSID)
		} else {
			assert.False(t, d.AlwaysAvailable)
		}
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1}, toggles)
}

func TestAvailabilityFollowsSmartConnect(t *testing.T) {
	model := loadModel(t, routerConfig)

	tests := []struct {
		profile  int
		radio    RadioType
		expected bool
	}{
		{1, Radio24G, true},
		{1, Radio5G1, true},
		{1, Radio5G2, true},
		{1, RadioSmartConnect, false},
		{2, Radio24G, false},
		{2, Radio5G1, false},
		{2, Radio5G2, false},
		{2, RadioSmartConnect, true},
		{99, Radio24G, false},
		{99, RadioSmartConnect, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.radio), func(t *testing.T) {
			assert.Equal(t, tt.expected, model.Availability(tt.profile, tt.radio),
				"profile %d radio %s", tt.profile, tt.radio)
		})
	}

	require.True(t, model.SetSmartConnect(1, true))
	assert.True(t, model.Availability(1, RadioSmartConnect))
	assert.False(t, model.Availability(1, Radio24G))
}

func TestSetRadioEnabledIdempotent(t *testing.T) {
	model := loadModel(t, routerConfig)

	assert.True(t, model.SetRadioEnabled(1, Radio5G1, true))
	assert.True(t, model.SetRadioEnabled(1, Radio5G1, true))
	assert.True(t, model.IsEnabled(1, Radio5G1))

	assert.False(t, model.SetRadioEnabled(1, Radio5G2, true))
	assert.False(t, model.SetRadioEnabled(42, Radio24G, true))
}

func TestSetRadioEnabledDoesNotCheckAvailability(t *testing.T) {
	model := loadModel(t, routerConfig)

	assert.True(t, model.SetRadioEnabled(2, Radio24G, false))
	assert.False(t, model.IsEnabled(2, Radio24G))
}

func TestSetRadioEnabledIfAvailable(t *testing.T) {
	model := loadModel(t, routerConfig)

	require.NoError(t, model.SetRadioEnabledIfAvailable(1, Radio5G1, true))
	assert.True(t, model.IsEnabled(1, Radio5G1))

	err := model.SetRadioEnabledIfAvailable(2, Radio24G, false)
	assert.ErrorIs(t, err, ErrRadioUnavailable)
	assert.True(t, model.IsEnabled(2, Radio24G), "unavailable radio must not change")

	assert.ErrorIs(t, model.SetRadioEnabledIfAvailable(7, Radio24G, true), ErrProfileNotFound)
	assert.ErrorIs(t, model.SetRadioEnabledIfAvailable(1, Radio5G2, true), ErrRadioNotFound)
}

func TestRoundTripWithoutMutation(t *testing.T) {
	original, err := DecodeSnapshot([]byte(routerConfig))
	require.NoError(t, err)
	expected := original.Clone()

	model := BuildModel(original)
	model.Summarize()
	model.Availability(1, Radio24G)
	model.IsEnabled(2, RadioSmartConnect)
	model.RadioDetails(1, Radio24G)

	assert.Equal(t, expected, model.Config())
}

func TestCloneIsIndependent(t *testing.T) {
	original, err := DecodeSnapshot([]byte(routerConfig))
	require.NoError(t, err)
	copied := original.Clone()

	model := BuildModel(copied)
	require.True(t, model.SetRadioEnabled(1, Radio24G, false))

	assert.True(t, BuildModel(original).IsEnabled(1, Radio24G))
	assert.False(t, model.IsEnabled(1, Radio24G))
}

func TestSingleRadioScenario(t *testing.T) {
	model := loadModel(t, `{"profiles": [{"id": 1, "enable_smart_connect": false,
		"radio_list": [{"radio_type": "2.4G", "enable": false, "ssid": "Home"}]}]}`)

	descriptors := model.Summarize()
	require.Len(t, descriptors, 2)

	radio := descriptors[1]
	assert.Equal(t, Radio24G, radio.RadioType)
	assert.True(t, radio.Available)
	assert.False(t, radio.Enabled)
	assert.Equal(t, "Profile 1", radio.ProfileName)
	assert.Equal(t, NetworkCustom, radio.NetworkType)

	assert.True(t, model.SetRadioEnabled(1, Radio24G, true))
	assert.True(t, model.IsEnabled(1, Radio24G))
}

func TestUnknownProfileQueries(t *testing.T) {
	model := loadModel(t, routerConfig)

	_, ok := model.LookupProfile(404)
	assert.False(t, ok)
	_, ok = model.LookupRadio(404, Radio24G)
	assert.False(t, ok)
	_, ok = model.RadioDetails(404, Radio24G)
	assert.False(t, ok)
	assert.False(t, model.Availability(404, Radio24G))
	assert.False(t, model.IsEnabled(404, Radio24G))
	assert.False(t, model.IsSmartConnectEnabled(404))
	assert.False(t, model.SetSmartConnect(404, true))
}

func TestEmptyConfiguration(t *testing.T) {
	model := BuildModel(nil)
	assert.Empty(t, model.Summarize())
	assert.Empty(t, model.Profiles())

	model = loadModel(t, `{}`)
	assert.Empty(t, model.Summarize())
}

func TestDefaults(t *testing.T) {
	model := loadModel(t, `{"profiles": [{"id": 5, "radio_list": [{"radio_type": "5G-2"}]}]}`)

	descriptors := model.Summarize()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "Profile 5", descriptors[0].ProfileName)
	assert.False(t, descriptors[0].Enabled)
	assert.Equal(t, "Unknown_5G-2", descriptors[1].SSID)
	assert.False(t, descriptors[1].Enabled)
	assert.True(t, descriptors[1].Available)
}

func TestFindNetworkBySSID(t *testing.T) {
	model := loadModel(t, routerConfig)

	profile, radio, ok := model.FindNetworkBySSID("Guest-SC")
	require.True(t, ok)
	id, _ := profile.ID()
	assert.Equal(t, 2, id)
	assert.Equal(t, RadioSmartConnect, radio.Type())

	_, _, ok = model.FindNetworkBySSID("nope")
	assert.False(t, ok)
}

func TestRadioDetails(t *testing.T) {
	model := loadModel(t, routerConfig)

	details, ok := model.RadioDetails(1, Radio24G)
	require.True(t, ok)
	assert.Equal(t, RadioDetails{SecurityLevel: SecurityWPA2PSK, MaxConnections: 64}, details)

	details, ok = model.RadioDetails(2, RadioSmartConnect)
	require.True(t, ok)
	assert.True(t, details.Hidden)
	assert.Equal(t, 16, details.MaxConnections)
}

func TestDecodeSnapshotRejectsNonObject(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte(`null`))
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte(`{`))
	assert.Error(t, err)
}

func TestSnapshotBuiltInGo(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
	}{
		{
			name: "map slices",
			snapshot: Snapshot{"profiles": []map[string]any{{
				"id": 1, "name": "Home", "enable_smart_connect": false,
				"radio_list": []map[string]any{{"radio_type": "2.4G", "ssid": "Home", "enable": false}},
			}}},
		},
		{
			name: "typed views",
			snapshot: Snapshot{"profiles": []Profile{{
				"id": 1, "name": "Home", "enable_smart_connect": false,
				"radio_list": []Radio{{"radio_type": "2.4G", "ssid": "Home", "enable": false}},
			}}},
		},
		{
			name: "mixed elements",
			snapshot: Snapshot{"profiles": []any{Profile{
				"id": 1, "name": "Home", "enable_smart_connect": false,
				"radio_list": []any{Radio{"radio_type": "2.4G", "ssid": "Home", "enable": false}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := BuildModel(tt.snapshot)

			descriptors := model.Summarize()
			require.Len(t, descriptors, 2)
			assert.Equal(t, "Home", descriptors[1].SSID)
			assert.True(t, descriptors[1].Available)

			require.True(t, model.SetRadioEnabled(1, Radio24G, true))
			assert.True(t, model.IsEnabled(1, Radio24G))
			assert.True(t, BuildModel(model.Config().Clone()).IsEnabled(1, Radio24G), "clone keeps the change")
		})
	}
}
