package wifi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Snapshot is a fetched WiFi configuration kept as a generic JSON tree,
// so that fields this package does not know about survive a push.
type Snapshot map[string]any

// DecodeSnapshot parses a configuration object. Numbers are kept as json.Number.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var snapshot Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		return nil, errors.Wrap(err, "decode wifi configuration")
	}
	if snapshot == nil {
		return nil, errors.New("wifi configuration is not an object")
	}
	return snapshot, nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return Snapshot(cloneValue(map[string]any(s)).(map[string]any))
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Snapshot:
		return v.Clone()
	case Profile:
		return Profile(cloneValue(map[string]any(v)).(map[string]any))
	case Radio:
		return Radio(cloneValue(map[string]any(v)).(map[string]any))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []Profile:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []Radio:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Profile is a live view over one profile object of a snapshot.
type Profile map[string]any

// Radio is a live view over one radio object of a profile.
type Radio map[string]any

// ID returns the profile id and whether it is present and integral.
func (p Profile) ID() (int, bool) {
	return intValue(p["id"])
}

// Name defaults to "Profile <id>".
func (p Profile) Name() string {
	if name, ok := p["name"].(string); ok {
		return name
	}
	id, _ := p.ID()
	return fmt.Sprintf("Profile %d", id)
}

// NetworkType defaults to custom.
func (p Profile) NetworkType() NetworkType {
	if kind, ok := p["network_type"].(string); ok {
		return NetworkType(kind)
	}
	return NetworkCustom
}

func (p Profile) SmartConnect() bool {
	enabled, _ := p["enable_smart_connect"].(bool)
	return enabled
}

// Radios returns the radio objects of the profile in order.
func (p Profile) Radios() []Radio {
	items := objects(p["radio_list"])
	radios := make([]Radio, 0, len(items))
	for _, item := range items {
		radios = append(radios, Radio(item))
	}
	return radios
}

// objects returns the object elements of a list, in any of the shapes a
// snapshot may hold: decoded JSON or values built in Go.
func objects(value any) []map[string]any {
	switch list := value.(type) {
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if obj, ok := object(item); ok {
				out = append(out, obj)
			}
		}
		return out
	case []map[string]any:
		return list
	case []Profile:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			out = append(out, item)
		}
		return out
	case []Radio:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			out = append(out, item)
		}
		return out
	default:
		return nil
	}
}

func object(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Profile:
		return v, true
	case Radio:
		return v, true
	case Snapshot:
		return v, true
	default:
		return nil, false
	}
}

func (r Radio) Type() RadioType {
	kind, _ := r["radio_type"].(string)
	return RadioType(kind)
}

// SSID defaults to "Unknown_<radio_type>".
func (r Radio) SSID() string {
	if ssid, ok := r["ssid"].(string); ok {
		return ssid
	}
	return "Unknown_" + string(r.Type())
}

func (r Radio) Enabled() bool {
	enabled, _ := r["enable"].(bool)
	return enabled
}

func (r Radio) Details() RadioDetails {
	details := RadioDetails{}
	details.Hidden, _ = r["hide_ssid"].(bool)
	details.ClientIsolation, _ = r["enable_client_isolation"].(bool)
	details.MaxConnections, _ = intValue(r["max_connection"])
	if security, ok := r["security"].(map[string]any); ok {
		if level, ok := security["security_level"].(string); ok {
			details.SecurityLevel = SecurityLevel(level)
		}
	}
	return details
}

// intValue accepts the numeric shapes a snapshot may hold.
func intValue(value any) (int, bool) {
	switch v := value.(type) {
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
