package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/fbettag/srm-wifi-switches/internal/database"
	"github.com/fbettag/srm-wifi-switches/internal/synology"
	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

// Where a change request came from, recorded in the activity log.
const (
	SourceAPI     = "api"
	SourceService = "service"
	SourceMQTT    = "mqtt"
	SourcePoll    = "poll"
)

var (
	// ErrNotReady is returned while no configuration has been fetched yet.
	ErrNotReady = errors.New("router configuration not loaded yet")

	// ErrPushRejected is returned when the router answers a write without success.
	ErrPushRejected = errors.New("router rejected the wifi configuration")

	// ErrSwitchNotFound is returned for unknown switch ids.
	ErrSwitchNotFound = errors.New("switch not found")
)

// Client is the part of the SRM client a Router needs.
type Client interface {
	CheckConnection(ctx context.Context) error
	FetchCurrentConfiguration(ctx context.Context) (wifi.Snapshot, error)
	PushConfiguration(ctx context.Context, snapshot wifi.Snapshot) (bool, error)
}

// Store persists switch activity. It is optional.
type Store interface {
	LogEvent(entry *database.LogEntry) error
	UpdateSwitchState(router, uniqueID string, enabled, available bool) error
	GetSwitchState(router, uniqueID string) (database.SwitchState, bool, error)
}

// Status summarizes a router for the API.
type Status struct {
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error,omitempty"`
	Switches   int       `json:"switches"`
}

// Router owns one SRM client and the last configuration fetched from it.
// Writes are serialized so that concurrent toggles never overwrite each
// other's fetch-mutate-push cycle.
type Router struct {
	name   string
	host   string
	client Client
	store  Store
	logger logrus.FieldLogger

	writeMu sync.Mutex

	mu         sync.RWMutex
	snapshot   wifi.Snapshot
	lastErr    error
	lastUpdate time.Time
	connected  bool
	states     map[string]bool
	listeners  []func(*Router)

	// writes counts pushes; a refresh that overlaps one discards its fetch.
	writes uint64
}

// New creates a Router. store may be nil.
func New(name, host string, client Client, store Store, logger logrus.FieldLogger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		name:   name,
		host:   host,
		client: client,
		store:  store,
		logger: logger.WithField("router", name),
		states: make(map[string]bool),
	}
}

func (r *Router) Name() string { return r.name }

func (r *Router) Host() string { return r.host }

func (r *Router) Client() Client { return r.client }

// OnUpdate registers fn to be called after every refresh, successful or not.
func (r *Router) OnUpdate(fn func(*Router)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Setup checks that the router answers and loads the first configuration.
func (r *Router) Setup(ctx context.Context) error {
	if err := r.client.CheckConnection(ctx); err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		r.logger.Errorf("Failed to connect to Synology SRM at %s: %v", r.host, err)
		return errors.Wrapf(err, "connect to %s", r.host)
	}

	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()

	r.logger.Infof("Connected to Synology SRM at %s", r.host)
	return r.Refresh(ctx)
}

// Refresh fetches the current configuration and publishes it. A fetch that
// started before a concurrent write was pushed is dropped; the write refreshes
// on its own.
func (r *Router) Refresh(ctx context.Context) error {
	r.mu.RLock()
	writes := r.writes
	r.mu.RUnlock()

	snapshot, err := r.client.FetchCurrentConfiguration(ctx)

	r.mu.Lock()
	if r.writes != writes {
		r.mu.Unlock()
		r.logger.Debug("Discarding configuration fetched before a write")
		return nil
	}
	failedBefore := r.lastErr != nil
	if err != nil {
		r.lastErr = err
	} else {
		r.snapshot = snapshot
		r.lastErr = nil
		r.lastUpdate = time.Now()
		r.connected = true
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Errorf("Error communicating with Synology SRM: %v", err)
		if !failedBefore {
			r.logActivity(&database.LogEntry{
				Action:  database.ActionRefreshFailed,
				Source:  SourcePoll,
				Message: err.Error(),
			})
		}
		r.notify()
		return errors.Wrap(err, "refresh wifi configuration")
	}

	if failedBefore {
		r.logger.Infof("Communication with Synology SRM restored")
	}

	r.trackChanges(r.Switches())
	r.notify()
	return nil
}

func (r *Router) notify() {
	r.mu.RLock()
	listeners := append([]func(*Router){}, r.listeners...)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(r)
	}
}

// trackChanges records switch states and logs changes made outside this process.
func (r *Router) trackChanges(switches []Switch) {
	for _, s := range switches {
		r.mu.Lock()
		previous, known := r.states[s.UniqueID]
		r.states[s.UniqueID] = s.On
		r.mu.Unlock()

		if !known && r.store != nil {
			stored, found, err := r.store.GetSwitchState(r.name, s.UniqueID)
			if err != nil {
				r.logger.Errorf("Failed to load state for switch %s: %v", s.UniqueID, err)
			}
			previous, known = stored.Enabled, found
		}

		if known && previous == s.On {
			continue
		}

		if known {
			r.logger.Infof("Switch %s changed outside of this service: %t -> %t", s.Name, previous, s.On)
			r.logActivity(&database.LogEntry{
				ProfileID: s.Descriptor.ProfileID,
				RadioType: string(s.Descriptor.RadioType),
				SSID:      s.Descriptor.SSID,
				Action:    database.ActionExternalChange,
				Source:    SourcePoll,
				Success:   true,
				Message:   fmt.Sprintf("%s is now %s", s.Name, onOff(s.On)),
			})
		}

		if r.store != nil {
			if err := r.store.UpdateSwitchState(r.name, s.UniqueID, s.On, s.Available); err != nil {
				r.logger.Errorf("Failed to update state for switch %s: %v", s.UniqueID, err)
			}
		}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Model returns an independent model of the last fetched configuration.
func (r *Router) Model() (*wifi.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return nil, false
	}
	return wifi.BuildModel(r.snapshot.Clone()), true
}

// Switches lists the switches of the last fetched configuration.
func (r *Router) Switches() []Switch {
	r.mu.RLock()
	snapshot := r.snapshot
	healthy := r.lastErr == nil
	r.mu.RUnlock()

	if snapshot == nil {
		return []Switch{}
	}
	return buildSwitches(r.host, wifi.BuildModel(snapshot.Clone()), healthy)
}

// Switch looks up a switch by unique id.
func (r *Router) Switch(uniqueID string) (Switch, bool) {
	for _, s := range r.Switches() {
		if s.UniqueID == uniqueID {
			return s, true
		}
	}
	return Switch{}, false
}

func (r *Router) Status() Status {
	r.mu.RLock()
	status := Status{
		Name:       r.name,
		Host:       r.host,
		Connected:  r.connected && r.lastErr == nil,
		LastUpdate: r.lastUpdate,
	}
	if r.lastErr != nil {
		status.LastError = r.lastErr.Error()
	}
	r.mu.RUnlock()

	status.Switches = len(r.Switches())
	return status
}

// SetSwitch turns a switch on or off by unique id.
func (r *Router) SetSwitch(ctx context.Context, uniqueID string, on bool, source string) error {
	s, ok := r.Switch(uniqueID)
	if !ok {
		return errors.Wrapf(ErrSwitchNotFound, "%s", uniqueID)
	}
	if s.Descriptor.IsToggle() {
		return r.SetSmartConnect(ctx, s.Descriptor.ProfileID, on, source)
	}
	return r.SetRadio(ctx, s.Descriptor.ProfileID, s.Descriptor.RadioType, on, source)
}

// SetRadio enables or disables one radio. Radios that are not controllable
// in the current Smart Connect mode are refused.
func (r *Router) SetRadio(ctx context.Context, profileID int, radioType wifi.RadioType, enable bool, source string) error {
	if radioType == wifi.SmartConnectToggle {
		return r.SetSmartConnect(ctx, profileID, enable, source)
	}

	entry := &database.LogEntry{
		ProfileID: profileID,
		RadioType: string(radioType),
		Action:    radioAction(enable),
		Source:    source,
	}
	return r.mutate(ctx, entry, func(model *wifi.Model) error {
		if radio, ok := model.LookupRadio(profileID, radioType); ok {
			entry.SSID = radio.SSID()
		}
		return model.SetRadioEnabledIfAvailable(profileID, radioType, enable)
	})
}

// SetNetwork enables or disables the first controllable radio broadcasting ssid.
func (r *Router) SetNetwork(ctx context.Context, ssid string, enable bool, source string) error {
	entry := &database.LogEntry{
		SSID:   ssid,
		Action: radioAction(enable),
		Source: source,
	}
	return r.mutate(ctx, entry, func(model *wifi.Model) error {
		found := false
		for _, profile := range model.Profiles() {
			id, _ := profile.ID()
			for _, radio := range profile.Radios() {
				if value, ok := radio["ssid"].(string); !ok || value != ssid {
					continue
				}
				found = true
				if !model.Availability(id, radio.Type()) {
					continue
				}
				entry.ProfileID = id
				entry.RadioType = string(radio.Type())
				return model.SetRadioEnabledIfAvailable(id, radio.Type(), enable)
			}
		}
		if found {
			return errors.Wrapf(wifi.ErrRadioUnavailable, "network %q", ssid)
		}
		return errors.Wrapf(wifi.ErrRadioNotFound, "network %q", ssid)
	})
}

// SetSmartConnect switches a profile between Smart Connect and per-band mode.
func (r *Router) SetSmartConnect(ctx context.Context, profileID int, enable bool, source string) error {
	action := database.ActionSmartConnectOff
	if enable {
		action = database.ActionSmartConnectOn
	}
	entry := &database.LogEntry{
		ProfileID: profileID,
		RadioType: string(wifi.SmartConnectToggle),
		Action:    action,
		Source:    source,
	}
	return r.mutate(ctx, entry, func(model *wifi.Model) error {
		if !model.SetSmartConnect(profileID, enable) {
			return errors.Wrapf(wifi.ErrProfileNotFound, "profile %d", profileID)
		}
		return nil
	})
}

func radioAction(enable bool) string {
	if enable {
		return database.ActionEnable
	}
	return database.ActionDisable
}

// mutate runs one fetch, mutate, push cycle and refreshes afterwards.
func (r *Router) mutate(ctx context.Context, entry *database.LogEntry, apply func(*wifi.Model) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := r.applyChange(ctx, apply)

	entry.Success = err == nil
	if err != nil {
		entry.Message = err.Error()
		r.logger.Errorf("Failed to %s (profile %d, radio %s): %v", entry.Action, entry.ProfileID, entry.RadioType, err)
	} else {
		entry.Message = "configuration updated"
		r.logger.Infof("Applied %s (profile %d, radio %s) from %s", entry.Action, entry.ProfileID, entry.RadioType, entry.Source)
	}
	r.logActivity(entry)

	if err != nil {
		return err
	}

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warnf("Refresh after write failed: %v", err)
	}
	return nil
}

func (r *Router) applyChange(ctx context.Context, apply func(*wifi.Model) error) error {
	snapshot, err := r.client.FetchCurrentConfiguration(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch wifi configuration")
	}

	model := wifi.BuildModel(snapshot).WithLogger(r.logger)
	if err := apply(model); err != nil {
		return err
	}

	ok, err := r.client.PushConfiguration(ctx, model.Config())
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "push wifi configuration")
	}
	if !ok {
		return ErrPushRejected
	}

	// Our own change must not be reported as an external one on the next refresh.
	for _, s := range buildSwitches(r.host, model, true) {
		r.mu.Lock()
		previous, known := r.states[s.UniqueID]
		r.states[s.UniqueID] = s.On
		r.mu.Unlock()

		if r.store != nil && (!known || previous != s.On) {
			if err := r.store.UpdateSwitchState(r.name, s.UniqueID, s.On, s.Available); err != nil {
				r.logger.Errorf("Failed to update state for switch %s: %v", s.UniqueID, err)
			}
		}
	}
	return nil
}

func (r *Router) logActivity(entry *database.LogEntry) {
	if r.store == nil {
		return
	}
	entry.Router = r.name
	if err := r.store.LogEvent(entry); err != nil {
		r.logger.Errorf("Failed to log activity: %v", err)
	}
}

// Run sets the router up and refreshes it every interval until ctx is done.
// A router that cannot be reached at start is retried on every tick; rejected
// credentials are retried with exponential backoff.
func (r *Router) Run(ctx context.Context, interval time.Duration) {
	r.logger.Infof("Starting WiFi polling every %s", interval)

	var backoff setupBackoff
	ready := backoff.setup(ctx, r)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !ready {
				ready = backoff.setup(ctx, r)
				continue
			}
			_ = r.Refresh(ctx)
		case <-ctx.Done():
			r.logger.Info("Stopping WiFi polling")
			return
		}
	}
}

const maxSetupBackoff = 64 * time.Second

// setupBackoff delays setup attempts after authentication failures so that a
// wrong password does not lock the account on the router.
type setupBackoff struct {
	failures    int
	lastAttempt time.Time
	wait        time.Duration
}

func (b *setupBackoff) setup(ctx context.Context, r *Router) bool {
	if time.Since(b.lastAttempt) < b.wait {
		return false
	}
	b.lastAttempt = time.Now()

	err := r.Setup(ctx)
	if err == nil {
		b.failures, b.wait = 0, 0
		return true
	}
	if !IsAuthError(err) {
		b.wait = 0
		return false
	}

	// 1s, 2s, 4s ... 64s
	b.failures++
	b.wait = time.Duration(1<<uint(min(b.failures-1, 6))) * time.Second
	if b.wait > maxSetupBackoff {
		b.wait = maxSetupBackoff
	}
	r.logger.Errorf("Authentication failed (attempt #%d), next retry in %s", b.failures, b.wait)
	return false
}

// IsAuthError reports whether err means the router credentials are rejected.
func IsAuthError(err error) bool {
	return synology.IsAuthError(err)
}
