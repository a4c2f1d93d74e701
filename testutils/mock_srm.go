package testutils

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// DefaultWifiConfig is the WiFi configuration served by a fresh MockSRMServer:
// a primary profile in per-band mode and a guest profile in Smart Connect mode.
const DefaultWifiConfig = `{
  "profiles": [
    {
      "id": 0,
      "name": "Home",
      "network_type": "primary",
      "enable_smart_connect": false,
      "mac_filter": {"enable": false, "profile_id": 0},
      "radio_list": [
        {"radio_type": "2.4G", "ssid": "Home", "enable": true, "hide_ssid": false,
         "security": {"security_level": "wpa2_psk", "password": "secret"},
         "max_connection": 64, "enable_client_isolation": false},
        {"radio_type": "5G-1", "ssid": "Home-5G", "enable": false, "hide_ssid": false,
         "security": {"security_level": "wpa3_psk"}, "max_connection": 64, "enable_client_isolation": false},
        {"radio_type": "SmartConnect", "ssid": "Home-SC", "enable": false,
         "security": {"security_level": "wpa2_psk"}}
      ]
    },
    {
      "id": 1,
      "name": "Guests",
      "network_type": "guest",
      "enable_smart_connect": true,
      "radio_list": [
        {"radio_type": "2.4G", "ssid": "Guest-24", "enable": false},
        {"radio_type": "SmartConnect", "ssid": "Guest", "enable": true, "hide_ssid": true,
         "security": {"security_level": "open"}, "max_connection": 16, "enable_client_isolation": true}
      ]
    }
  ]
}`

// MockSRMServer provides a mock Synology SRM web API for testing
type MockSRMServer struct {
	Server *httptest.Server
	URL    string

	mu         sync.Mutex
	username   string
	password   string
	sid        string
	logins     int
	expire     int
	failures   map[string][]int
	calls      map[string]int
	config     map[string]any
	writes     int
	lastParams map[string]map[string]string
}

// NewMockSRMServer creates a new mock SRM router
func NewMockSRMServer() *MockSRMServer {
	m := &MockSRMServer{
		username:   "admin",
		password:   "testpass",
		failures:   map[string][]int{},
		calls:      map[string]int{},
		lastParams: map[string]map[string]string{},
	}
	m.SetWifiConfig(DefaultWifiConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("/webapi/auth.cgi", m.handleAuth)
	mux.HandleFunc("/webapi/query.cgi", m.handleAPI)
	mux.HandleFunc("/webapi/encryption.cgi", m.handleAPI)
	mux.HandleFunc("/webapi/entry.cgi", m.handleAPI)

	m.Server = httptest.NewServer(mux)
	m.URL = m.Server.URL
	return m
}

// Close shuts down the mock server
func (m *MockSRMServer) Close() {
	m.Server.Close()
}

// GetTestCredentials returns the account accepted by the mock server
func (m *MockSRMServer) GetTestCredentials() (string, string) {
	return m.username, m.password
}

// HostPort returns the host and port the mock server listens on
func (m *MockSRMServer) HostPort() (string, int) {
	host, port, err := net.SplitHostPort(m.Server.Listener.Addr().String())
	if err != nil {
		log.Printf("Failed to parse mock server address: %v", err)
		return "", 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}

// ExpireSessions answers the next n authenticated calls with error 106.
func (m *MockSRMServer) ExpireSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expire = n
}

// FailNext queues an error code for the next call to api.
func (m *MockSRMServer) FailNext(api string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[api] = append(m.failures[api], code)
}

// SetWifiConfig replaces the stored WiFi configuration
func (m *MockSRMServer) SetWifiConfig(raw string) {
	var config map[string]any
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		log.Printf("Failed to decode mock wifi config: %v", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// WifiConfig returns the stored WiFi configuration re-encoded as JSON
func (m *MockSRMServer) WifiConfig() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(m.config)
	if err != nil {
		log.Printf("Failed to encode mock wifi config: %v", err)
	}
	return data
}

// Logins returns the number of successful logins
func (m *MockSRMServer) Logins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}

// Writes returns the number of WiFi configuration writes
func (m *MockSRMServer) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Calls returns how many times api was called
func (m *MockSRMServer) Calls(api string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[api]
}

// LastParams returns the query parameters of the last call to api
func (m *MockSRMServer) LastParams(api string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastParams[api]
}

func (m *MockSRMServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	m.record(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch query.Get("method") {
	case "Login":
		if query.Get("account") != m.username || query.Get("passwd") != m.password {
			writeJSON(w, failure(400))
			return
		}
		m.sid = uuid.NewString()
		m.logins++
		writeJSON(w, map[string]any{"success": true, "data": map[string]any{"sid": m.sid}})
	case "Logout":
		m.sid = ""
		writeJSON(w, map[string]any{"success": true})
	default:
		writeJSON(w, failure(103))
	}
}

func (m *MockSRMServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	api := query.Get("api")
	method := query.Get("method")
	m.record(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	if codes := m.failures[api]; len(codes) > 0 {
		m.failures[api] = codes[1:]
		writeJSON(w, failure(codes[0]))
		return
	}

	// SYNO.API.Info query is public, everything else needs the session cookie
	public := api == "SYNO.API.Info" && r.URL.Path == "/webapi/query.cgi"
	cookie, err := r.Cookie("id")
	authenticated := err == nil && m.sid != "" && cookie.Value == m.sid

	if !public || err == nil {
		if m.expire > 0 && authenticated {
			m.expire--
			m.sid = ""
			writeJSON(w, failure(106))
			return
		}
	}
	if !public && !authenticated {
		writeJSON(w, failure(119))
		return
	}

	switch {
	case api == "SYNO.API.Info":
		writeJSON(w, success(map[string]any{
			"SYNO.API.Auth":             map[string]any{"path": "auth.cgi", "minVersion": 1, "maxVersion": 2},
			"SYNO.Wifi.Network.Setting": map[string]any{"path": "entry.cgi", "minVersion": 1, "maxVersion": 1},
		}))
	case api == "SYNO.API.Encryption":
		writeJSON(w, success(map[string]any{"cipherkey": "__cIpHeRtExT", "ciphertoken": "__cIpHeRtOkEn"}))
	case api == "SYNO.Wifi.Network.Setting" && method == "get":
		writeJSON(w, success(m.config))
	case api == "SYNO.Wifi.Network.Setting" && method == "set":
		var profiles []any
		if err := json.Unmarshal([]byte(query.Get("profiles")), &profiles); err != nil {
			writeJSON(w, failure(120))
			return
		}
		m.config["profiles"] = profiles
		m.writes++
		writeJSON(w, map[string]any{"success": true})
	case api == "SYNO.Wifi.Device" && method == "get":
		writeJSON(w, success(map[string]any{"device_list": []any{
			map[string]any{"mac": "aa:bb:cc:dd:ee:01", "hostname": "laptop", "band": "5G-1", "signal": -45},
			map[string]any{"mac": "aa:bb:cc:dd:ee:02", "hostname": "phone", "band": "2.4G", "signal": -60},
		}}))
	case api == "SYNO.Wifi.Radio.Status":
		writeJSON(w, success(map[string]any{"status_list": []any{
			map[string]any{"radio_type": "2.4G", "channel": 6},
			map[string]any{"radio_type": "5G-1", "channel": 36},
		}}))
	case api == "SYNO.Wifi.CountryCode.Setting" && method == "get":
		writeJSON(w, success(map[string]any{"country_code": "DE"}))
	case api == "SYNO.Wifi.WPS.Main.PIN.AP":
		writeJSON(w, success(map[string]any{"pin": 12345670}))
	case api == "SYNO.Wifi.Station.Scan" && method == "get":
		writeJSON(w, success(map[string]any{"networks": []any{
			map[string]any{"ssid": "Neighbour", "signal": -70},
		}}))
	case api == "SYNO.Mesh.Node.List":
		writeJSON(w, success(map[string]any{"nodes": []any{
			map[string]any{"node_id": 0, "name": "RT6600ax", "is_online": true},
			map[string]any{"node_id": 1, "name": "WRX560", "is_online": false},
		}}))
	case api == "SYNO.Core.Network.NSM.Device":
		writeJSON(w, success(map[string]any{"devices": []any{
			map[string]any{"mac": "aa:bb:cc:dd:ee:01", "is_online": true},
			map[string]any{"mac": "aa:bb:cc:dd:ee:03", "is_online": false},
		}}))
	case api == "SYNO.Core.NGFW.Traffic":
		writeJSON(w, success([]any{
			map[string]any{"deviceID": "aa:bb:cc:dd:ee:01", "download": 1024, "upload": 512},
		}))
	case method == "download":
		w.Header().Set("Content-Type", "application/zip")
		if _, err := w.Write([]byte("PK\x03\x04mock-archive")); err != nil {
			log.Printf("Failed to write archive: %v", err)
		}
	default:
		// Write style endpoints answer with the bare success flag
		writeJSON(w, map[string]any{"success": true})
	}
}

func (m *MockSRMServer) record(query map[string][]string) {
	api := ""
	if values := query["api"]; len(values) > 0 {
		api = values[0]
	}
	params := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[api]++
	m.lastParams[api] = params
}

func success(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func failure(code int) map[string]any {
	return map[string]any{"success": false, "error": map[string]any{"code": code}}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
