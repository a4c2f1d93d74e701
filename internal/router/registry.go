package router

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"

	"github.com/fbettag/srm-wifi-switches/internal/wifi"
)

// User facing services, applied to every registered router.
const (
	ServiceEnableWiFi         = "enable_wifi"
	ServiceDisableWiFi        = "disable_wifi"
	ServiceToggleSmartConnect = "toggle_smart_connect"
)

var (
	ErrUnknownService     = errors.New("unknown service")
	ErrInvalidServiceCall = errors.New("invalid service call")
	ErrRouterExists       = errors.New("router already registered")
)

// ServiceCall carries the service data. Radios are addressed either by
// NetworkName (SSID) or by ProfileID and RadioType.
type ServiceCall struct {
	NetworkName string         `json:"network_name,omitempty"`
	ProfileID   *int           `json:"profile_id,omitempty"`
	RadioType   wifi.RadioType `json:"radio_type,omitempty"`
	Enable      *bool          `json:"enable,omitempty"`
}

// Registry holds every configured router by name.
type Registry struct {
	mu      sync.RWMutex
	routers map[string]*Router
}

func NewRegistry() *Registry {
	return &Registry{routers: make(map[string]*Router)}
}

func (reg *Registry) Add(r *Router) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.routers[r.Name()]; exists {
		return errors.Wrapf(ErrRouterExists, "%s", r.Name())
	}
	reg.routers[r.Name()] = r
	return nil
}

func (reg *Registry) Remove(name string) (*Router, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.routers[name]
	delete(reg.routers, name)
	return r, ok
}

func (reg *Registry) Get(name string) (*Router, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.routers[name]
	return r, ok
}

// All returns the routers sorted by name.
func (reg *Registry) All() []*Router {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	routers := make([]*Router, 0, len(reg.routers))
	for _, r := range reg.routers {
		routers = append(routers, r)
	}
	sort.Slice(routers, func(i, j int) bool {
		return routers[i].Name() < routers[j].Name()
	})
	return routers
}

// Call runs a service against every router. A router that does not know the
// addressed network is skipped; the call fails only if no router knows it or
// if any router failed for another reason.
func (reg *Registry) Call(ctx context.Context, service string, call ServiceCall, source string) error {
	apply, err := serviceFunc(service, call)
	if err != nil {
		return err
	}

	routers := reg.All()
	if len(routers) == 0 {
		return errors.New("no routers configured")
	}

	var failures []error
	var missing error
	applied := 0

	for _, r := range routers {
		err := apply(ctx, r, source)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, wifi.ErrRadioNotFound) || errors.Is(err, wifi.ErrProfileNotFound):
			missing = errors.Wrapf(err, "router %s", r.Name())
		default:
			failures = append(failures, errors.Wrapf(err, "router %s", r.Name()))
		}
	}

	if len(failures) > 0 {
		return multierr.Combine(failures...)
	}
	if applied == 0 && missing != nil {
		return missing
	}
	return nil
}

type serviceApply func(ctx context.Context, r *Router, source string) error

func serviceFunc(service string, call ServiceCall) (serviceApply, error) {
	switch service {
	case ServiceEnableWiFi, ServiceDisableWiFi:
		enable := service == ServiceEnableWiFi
		switch {
		case call.NetworkName != "":
			return func(ctx context.Context, r *Router, source string) error {
				return r.SetNetwork(ctx, call.NetworkName, enable, source)
			}, nil
		case call.ProfileID != nil && call.RadioType != "":
			profileID, radioType := *call.ProfileID, call.RadioType
			return func(ctx context.Context, r *Router, source string) error {
				return r.SetRadio(ctx, profileID, radioType, enable, source)
			}, nil
		default:
			return nil, errors.Wrap(ErrInvalidServiceCall, "network_name or profile_id and radio_type are required")
		}

	case ServiceToggleSmartConnect:
		if call.ProfileID == nil {
			return nil, errors.Wrap(ErrInvalidServiceCall, "profile_id is required")
		}
		profileID, enable := *call.ProfileID, true
		if call.Enable != nil {
			enable = *call.Enable
		}
		return func(ctx context.Context, r *Router, source string) error {
			return r.SetSmartConnect(ctx, profileID, enable, source)
		}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownService, "%q", service)
	}
}
