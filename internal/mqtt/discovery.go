package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/fbettag/srm-wifi-switches/internal/router"
)

const (
	payloadOn  = "ON"
	payloadOff = "OFF"

	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// discoveryMsg is one retained message for Home Assistant MQTT discovery.
type discoveryMsg struct {
	Topic   string
	Payload []byte // empty removes the entity
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type haAvailability struct {
	Topic string `json:"topic"`
}

// haSwitch is the discovery payload of a switch entity.
type haSwitch struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	ObjectID            string           `json:"object_id"`
	Icon                string           `json:"icon,omitempty"`
	StateTopic          string           `json:"state_topic"`
	CommandTopic        string           `json:"command_topic"`
	JSONAttributesTopic string           `json:"json_attributes_topic"`
	Availability        []haAvailability `json:"availability"`
	AvailabilityMode    string           `json:"availability_mode"`
	PayloadOn           string           `json:"payload_on"`
	PayloadOff          string           `json:"payload_off"`
	Device              haDevice         `json:"device"`
}

// topics derives every topic used for one router and its switches.
type topics struct {
	prefix    string
	discovery string
}

func (t topics) bridgeState() string {
	return t.prefix + "/bridge/state"
}

func (t topics) switchBase(routerName, uniqueID string) string {
	return t.prefix + "/" + sanitize(routerName) + "/" + sanitize(uniqueID)
}

func (t topics) state(routerName, uniqueID string) string {
	return t.switchBase(routerName, uniqueID) + "/state"
}

func (t topics) command(routerName, uniqueID string) string {
	return t.switchBase(routerName, uniqueID) + "/set"
}

func (t topics) attributes(routerName, uniqueID string) string {
	return t.switchBase(routerName, uniqueID) + "/attributes"
}

func (t topics) availability(routerName, uniqueID string) string {
	return t.switchBase(routerName, uniqueID) + "/availability"
}

func (t topics) commandSubscription() string {
	return t.prefix + "/+/+/set"
}

func (t topics) config(uniqueID string) string {
	return t.discovery + "/switch/" + sanitize(uniqueID) + "/config"
}

// parseCommandTopic splits <prefix>/<router>/<switch>/set.
func (t topics) parseCommandTopic(topic string) (routerObject, switchObject string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// sanitize maps a name to the characters Home Assistant accepts in object ids.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
}

func routerDevice(r *router.Router) haDevice {
	return haDevice{
		Identifiers:  []string{"srm_" + sanitize(r.Host())},
		Manufacturer: "Synology",
		Model:        "SRM router",
		Name:         r.Name(),
	}
}

func buildDiscovery(t topics, r *router.Router, s router.Switch) discoveryMsg {
	payload := haSwitch{
		Name:                s.Name,
		UniqueID:            s.UniqueID,
		ObjectID:            sanitize(s.UniqueID),
		Icon:                s.Icon,
		StateTopic:          t.state(r.Name(), s.UniqueID),
		CommandTopic:        t.command(r.Name(), s.UniqueID),
		JSONAttributesTopic: t.attributes(r.Name(), s.UniqueID),
		Availability: []haAvailability{
			{Topic: t.bridgeState()},
			{Topic: t.availability(r.Name(), s.UniqueID)},
		},
		AvailabilityMode: "all",
		PayloadOn:        payloadOn,
		PayloadOff:       payloadOff,
		Device:           routerDevice(r),
	}
	return discoveryMsg{Topic: t.config(s.UniqueID), Payload: mustJSON(payload)}
}

func buildRemoveDiscovery(t topics, uniqueID string) discoveryMsg {
	return discoveryMsg{Topic: t.config(uniqueID)}
}

// buildState returns the state, availability and attribute messages of a switch.
func buildState(t topics, routerName string, s router.Switch) []discoveryMsg {
	state, availability := payloadOff, availabilityOffline
	if s.On {
		state = payloadOn
	}
	if s.Available {
		availability = availabilityOnline
	}
	return []discoveryMsg{
		{Topic: t.state(routerName, s.UniqueID), Payload: []byte(state)},
		{Topic: t.availability(routerName, s.UniqueID), Payload: []byte(availability)},
		{Topic: t.attributes(routerName, s.UniqueID), Payload: mustJSON(s.Attributes)},
	}
}

// parseCommand accepts ON/OFF in any case, or a JSON object with a "state" key.
func parseCommand(payload []byte) (bool, bool) {
	value := strings.TrimSpace(string(payload))
	if strings.HasPrefix(value, "{") {
		var cmd struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return false, false
		}
		value = cmd.State
	}

	switch strings.ToUpper(value) {
	case payloadOn:
		return true, true
	case payloadOff:
		return false, true
	default:
		return false, false
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
