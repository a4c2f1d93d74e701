package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbettag/srm-wifi-switches/internal/config"
	"github.com/fbettag/srm-wifi-switches/internal/router"
	"github.com/fbettag/srm-wifi-switches/internal/synology"
	"github.com/fbettag/srm-wifi-switches/internal/wifi"
	"github.com/fbettag/srm-wifi-switches/testutils"
)

var testTopics = topics{prefix: "srm", discovery: "homeassistant"}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter(t *testing.T, name string) (*router.Router, *testutils.MockSRMServer) {
	t.Helper()
	mock := testutils.NewMockSRMServer()
	t.Cleanup(mock.Close)

	host, port := mock.HostPort()
	username, password := mock.GetTestCredentials()
	client, err := synology.NewClient(synology.Options{Host: host, Port: port, Username: username, Password: password})
	require.NoError(t, err)

	r := router.New(name, host, client, nil, quietLogger())
	require.NoError(t, r.Setup(context.Background()))
	return r, mock
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.1_0_2.4G", "192_168_1_1_0_2_4g"},
		{"Home Router", "home_router"},
		{"office-1", "office-1"},
		{"127.0.0.1_1_smart_connect_toggle", "127_0_0_1_1_smart_connect_toggle"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize(tt.in))
		})
	}
}

func TestDiscoveryPayload(t *testing.T) {
	r, _ := newTestRouter(t, "Home Router")
	s, ok := r.Switch(r.Host() + "_0_2.4G")
	require.True(t, ok)

	msg := buildDiscovery(testTopics, r, s)
	object := sanitize(s.UniqueID)
	assert.Equal(t, "homeassistant/switch/"+object+"/config", msg.Topic)

	var payload haSwitch
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	assert.Equal(t, "Home - Home (2.4G)", payload.Name)
	assert.Equal(t, s.UniqueID, payload.UniqueID)
	assert.Equal(t, object, payload.ObjectID)
	assert.Equal(t, "mdi:wifi", payload.Icon)
	assert.Equal(t, "srm/home_router/"+object+"/state", payload.StateTopic)
	assert.Equal(t, "srm/home_router/"+object+"/set", payload.CommandTopic)
	assert.Equal(t, "srm/home_router/"+object+"/attributes", payload.JSONAttributesTopic)
	assert.Equal(t, "ON", payload.PayloadOn)
	assert.Equal(t, "OFF", payload.PayloadOff)
	assert.Equal(t, "all", payload.AvailabilityMode)
	require.Len(t, payload.Availability, 2)
	assert.Equal(t, "srm/bridge/state", payload.Availability[0].Topic)
	assert.Equal(t, "srm/home_router/"+object+"/availability", payload.Availability[1].Topic)

	assert.Equal(t, "Home Router", payload.Device.Name)
	assert.Equal(t, "Synology", payload.Device.Manufacturer)
	assert.Equal(t, []string{"srm_" + sanitize(r.Host())}, payload.Device.Identifiers)

	remove := buildRemoveDiscovery(testTopics, s.UniqueID)
	assert.Equal(t, msg.Topic, remove.Topic)
	assert.Empty(t, remove.Payload)
}

func TestStateMessages(t *testing.T) {
	s := router.Switch{
		UniqueID:   "10.0.0.1_1_SmartConnect",
		On:         true,
		Available:  false,
		Attributes: map[string]any{"ssid": "Guest"},
	}

	msgs := buildState(testTopics, "home", s)
	require.Len(t, msgs, 3)

	assert.Equal(t, "srm/home/10_0_0_1_1_smartconnect/state", msgs[0].Topic)
	assert.Equal(t, "ON", string(msgs[0].Payload))
	assert.Equal(t, "srm/home/10_0_0_1_1_smartconnect/availability", msgs[1].Topic)
	assert.Equal(t, "offline", string(msgs[1].Payload))
	assert.JSONEq(t, `{"ssid": "Guest"}`, string(msgs[2].Payload))
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic  string
		router string
		object string
		ok     bool
	}{
		{"srm/home/192_168_1_1_0_2_4g/set", "home", "192_168_1_1_0_2_4g", true},
		{"srm/home/192_168_1_1_0_2_4g/state", "", "", false},
		{"other/home/x/set", "", "", false},
		{"srm/home/set", "", "", false},
		{"srm//x/set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			routerObject, switchObject, ok := testTopics.parseCommandTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.router, routerObject)
			assert.Equal(t, tt.object, switchObject)
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		on      bool
		ok      bool
	}{
		{"ON", true, true},
		{"off", false, true},
		{" On \n", true, true},
		{`{"state": "OFF"}`, false, true},
		{`{"state": "on"}`, true, true},
		{"TOGGLE", false, false},
		{`{"state":`, false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			on, ok := parseCommand([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.on, on)
		})
	}
}

func TestHandleCommandSwitchesRadio(t *testing.T) {
	registry := router.NewRegistry()
	r, mock := newTestRouter(t, "home")
	require.NoError(t, registry.Add(r))

	b := newBridge(config.MQTTConfig{TopicPrefix: "srm", DiscoveryPrefix: "homeassistant"}, registry, quietLogger())
	b.Watch(r)

	topic := b.topics.command(r.Name(), r.Host()+"_0_5G-1")
	b.handleCommand(topic, []byte("ON"))

	assert.Equal(t, 1, mock.Writes())
	model, ok := r.Model()
	require.True(t, ok)
	assert.True(t, model.IsEnabled(0, wifi.Radio5G1))
}

func TestHandleCommandIgnoresBadInput(t *testing.T) {
	registry := router.NewRegistry()
	r, mock := newTestRouter(t, "home")
	require.NoError(t, registry.Add(r))

	b := newBridge(config.MQTTConfig{TopicPrefix: "srm", DiscoveryPrefix: "homeassistant"}, registry, quietLogger())

	b.handleCommand(b.topics.command("home", r.Host()+"_0_5G-1"), []byte("TOGGLE"))
	b.handleCommand(b.topics.command("office", r.Host()+"_0_5G-1"), []byte("ON"))
	b.handleCommand(b.topics.command("home", "missing"), []byte("ON"))
	// unavailable while the guest profile runs Smart Connect
	b.handleCommand(b.topics.command("home", r.Host()+"_1_2.4G"), []byte("ON"))

	assert.Equal(t, 0, mock.Writes())
}

func TestPublishedSwitchTracking(t *testing.T) {
	b := newBridge(config.MQTTConfig{TopicPrefix: "srm", DiscoveryPrefix: "homeassistant"}, router.NewRegistry(), quietLogger())

	assert.True(t, b.markPublished("home", "a"))
	assert.False(t, b.markPublished("home", "a"))
	assert.True(t, b.markPublished("home", "b"))

	removed := b.stale("home", map[string]bool{"a": true})
	assert.Equal(t, []string{"b"}, removed)
	assert.True(t, b.markPublished("home", "b"))
}

func TestBridgeStartsWhileBrokerIsDown(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:          "tcp://127.0.0.1:1",
		TopicPrefix:     "srm",
		DiscoveryPrefix: "homeassistant",
	}

	b, err := connectBridge(cfg, router.NewRegistry(), quietLogger(), 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NotNil(t, b.client)
	assert.False(t, b.client.IsConnectionOpen())

	r, _ := newTestRouter(t, "home")
	b.Watch(r)
	assert.Len(t, b.published["home"], 7, "discovery is tracked until the broker comes up")

	b.Stop()
	assert.False(t, b.client.IsConnectionOpen())
}

func TestBridgeRequiresBroker(t *testing.T) {
	_, err := NewBridge(config.MQTTConfig{}, router.NewRegistry(), quietLogger())
	assert.Error(t, err)
}
