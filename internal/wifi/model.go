package wifi

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrRadioNotFound    = errors.New("radio not found")
	ErrRadioUnavailable = errors.New("radio is not controllable in the current Smart Connect mode")
)

// Model is an in-memory view over one snapshot. Mutations change the
// snapshot in place. A Model is not safe for concurrent use.
type Model struct {
	config Snapshot
	logger logrus.FieldLogger
}

// BuildModel wraps snapshot without copying it and performs no I/O.
func BuildModel(snapshot Snapshot) *Model {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Model{config: snapshot, logger: discard}
}

// WithLogger sets the logger used to report failed mutations.
func (m *Model) WithLogger(logger logrus.FieldLogger) *Model {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Config returns the underlying snapshot.
func (m *Model) Config() Snapshot {
	return m.config
}

// Profiles returns every profile in order.
func (m *Model) Profiles() []Profile {
	items := objects(m.config["profiles"])
	profiles := make([]Profile, 0, len(items))
	for _, item := range items {
		profiles = append(profiles, Profile(item))
	}
	return profiles
}

func (m *Model) LookupProfile(id int) (Profile, bool) {
	for _, profile := range m.Profiles() {
		if pid, ok := profile.ID(); ok && pid == id {
			return profile, true
		}
	}
	return nil, false
}

func (m *Model) LookupRadio(profileID int, radioType RadioType) (Radio, bool) {
	profile, ok := m.LookupProfile(profileID)
	if !ok {
		return nil, false
	}
	for _, radio := range profile.Radios() {
		if radio.Type() == radioType {
			return radio, true
		}
	}
	return nil, false
}

// Availability reports whether radioType may be controlled: the SmartConnect
// radio only while Smart Connect is on, band radios only while it is off.
func (m *Model) Availability(profileID int, radioType RadioType) bool {
	profile, ok := m.LookupProfile(profileID)
	if !ok {
		return false
	}
	return available(profile.SmartConnect(), radioType)
}

func available(smartConnect bool, radioType RadioType) bool {
	if radioType == RadioSmartConnect {
		return smartConnect
	}
	return !smartConnect
}

func (m *Model) IsEnabled(profileID int, radioType RadioType) bool {
	radio, ok := m.LookupRadio(profileID, radioType)
	return ok && radio.Enabled()
}

func (m *Model) IsSmartConnectEnabled(profileID int) bool {
	profile, ok := m.LookupProfile(profileID)
	return ok && profile.SmartConnect()
}

// SetRadioEnabled sets the radio's enable flag. It does not check
// availability; see SetRadioEnabledIfAvailable. Returns false if the radio
// does not exist.
func (m *Model) SetRadioEnabled(profileID int, radioType RadioType, enable bool) bool {
	radio, ok := m.LookupRadio(profileID, radioType)
	if !ok {
		m.logger.Errorf("Radio %s in profile %d not found", radioType, profileID)
		return false
	}
	radio["enable"] = enable
	m.logger.Infof("Radio %s in profile %d set to %t", radioType, profileID, enable)
	return true
}

// SetRadioEnabledIfAvailable is SetRadioEnabled guarded by Availability.
func (m *Model) SetRadioEnabledIfAvailable(profileID int, radioType RadioType, enable bool) error {
	profile, ok := m.LookupProfile(profileID)
	if !ok {
		return errors.Wrapf(ErrProfileNotFound, "profile %d", profileID)
	}
	if _, ok := m.LookupRadio(profileID, radioType); !ok {
		return errors.Wrapf(ErrRadioNotFound, "radio %s in profile %d", radioType, profileID)
	}
	if !available(profile.SmartConnect(), radioType) {
		m.logger.Warnf("Radio %s in profile %d is not available (smart connect: %t)", radioType, profileID, profile.SmartConnect())
		return errors.Wrapf(ErrRadioUnavailable, "radio %s in profile %d", radioType, profileID)
	}
	m.SetRadioEnabled(profileID, radioType, enable)
	return nil
}

// SetSmartConnect sets the profile's Smart Connect flag. Returns false if the
// profile does not exist.
func (m *Model) SetSmartConnect(profileID int, enable bool) bool {
	profile, ok := m.LookupProfile(profileID)
	if !ok {
		m.logger.Errorf("Profile %d not found", profileID)
		return false
	}
	profile["enable_smart_connect"] = enable
	m.logger.Infof("Smart Connect for profile %d set to %t", profileID, enable)
	return true
}

// FindNetworkBySSID returns the first radio broadcasting ssid, in profile
// then radio order.
func (m *Model) FindNetworkBySSID(ssid string) (Profile, Radio, bool) {
	for _, profile := range m.Profiles() {
		for _, radio := range profile.Radios() {
			if value, ok := radio["ssid"].(string); ok && value == ssid {
				return profile, radio, true
			}
		}
	}
	return nil, nil, false
}

// RadioDetails returns the secondary attributes of a radio.
func (m *Model) RadioDetails(profileID int, radioType RadioType) (RadioDetails, bool) {
	radio, ok := m.LookupRadio(profileID, radioType)
	if !ok {
		return RadioDetails{}, false
	}
	return radio.Details(), true
}

// Summarize lists, for each profile in order, its Smart Connect toggle
// followed by one descriptor per radio in radio list order.
func (m *Model) Summarize() []Descriptor {
	var descriptors []Descriptor
	for _, profile := range m.Profiles() {
		id, _ := profile.ID()
		name := profile.Name()
		networkType := profile.NetworkType()
		smartConnect := profile.SmartConnect()

		descriptors = append(descriptors, Descriptor{
			ProfileID:       id,
			RadioType:       SmartConnectToggle,
			SSID:            SmartConnectToggleSSID,
			NetworkType:     networkType,
			ProfileName:     name,
			SwitchType:      SwitchSmartConnectToggle,
			Enabled:         smartConnect,
			Available:       true,
			AlwaysAvailable: true,
		})

		for _, radio := range profile.Radios() {
			descriptors = append(descriptors, Descriptor{
				ProfileID:   id,
				RadioType:   radio.Type(),
				SSID:        radio.SSID(),
				NetworkType: networkType,
				ProfileName: name,
				SwitchType:  SwitchRadio,
				Enabled:     radio.Enabled(),
				Available:   available(smartConnect, radio.Type()),
			})
		}
	}
	return descriptors
}
