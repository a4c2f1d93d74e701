// Package mqtt exposes the WiFi switches of every router to Home Assistant
// through MQTT discovery.
package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fbettag/srm-wifi-switches/internal/config"
	"github.com/fbettag/srm-wifi-switches/internal/router"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 30 * time.Second
)

// Bridge publishes switch discovery and state, and applies ON/OFF commands.
type Bridge struct {
	client  pahomqtt.Client
	routers *router.Registry
	topics  topics
	logger  logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	watched   map[*router.Router]bool
	published map[string]map[string]bool // router name -> unique ids with discovery
}

// NewBridge connects to the broker. Routers are picked up with Watch.
// A broker that is down at start is retried in the background; the bridge
// publishes once the connection comes up.
func NewBridge(cfg config.MQTTConfig, routers *router.Registry, logger logrus.FieldLogger) (*Bridge, error) {
	return connectBridge(cfg, routers, logger, connectTimeout)
}

func connectBridge(cfg config.MQTTConfig, routers *router.Registry, logger logrus.FieldLogger, wait time.Duration) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	b := newBridge(cfg, routers, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "srm-switches-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.topics.bridgeState(), availabilityOffline, 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publish(b.topics.bridgeState(), []byte(availabilityOnline))
			b.subscribeCommands()
			b.republish()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warnf("MQTT connection lost: %v", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client

	token := client.Connect()
	if !token.WaitTimeout(wait) {
		b.logger.Warnf("MQTT broker %s not reachable yet, retrying in the background", cfg.Broker)
		return b, nil
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		b.cancel()
		return nil, errors.Wrap(err, "mqtt connect")
	}

	return b, nil
}

func newBridge(cfg config.MQTTConfig, routers *router.Registry, logger logrus.FieldLogger) *Bridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		routers:   routers,
		topics:    topics{prefix: cfg.TopicPrefix, discovery: cfg.DiscoveryPrefix},
		logger:    logger.WithField("component", "mqtt"),
		ctx:       ctx,
		cancel:    cancel,
		watched:   make(map[*router.Router]bool),
		published: make(map[string]map[string]bool),
	}
}

// Watch publishes the switches of r now and after every refresh.
func (b *Bridge) Watch(r *router.Router) {
	b.mu.Lock()
	if b.watched[r] {
		b.mu.Unlock()
		return
	}
	b.watched[r] = true
	b.mu.Unlock()

	r.OnUpdate(b.handleUpdate)
	b.handleUpdate(r)
}

// Forget removes the entities of a router that is no longer configured.
func (b *Bridge) Forget(r *router.Router) {
	b.mu.Lock()
	delete(b.watched, r)
	ids := b.published[r.Name()]
	delete(b.published, r.Name())
	b.mu.Unlock()

	for id := range ids {
		msg := buildRemoveDiscovery(b.topics, id)
		b.publish(msg.Topic, msg.Payload)
	}
	b.logger.Infof("Removed MQTT entities of router %s", r.Name())
}

// Stop marks the bridge offline and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.client == nil {
		return
	}
	b.publish(b.topics.bridgeState(), []byte(availabilityOffline))
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleUpdate(r *router.Router) {
	b.mu.Lock()
	watched := b.watched[r]
	b.mu.Unlock()
	if !watched {
		return
	}

	switches := r.Switches()
	current := make(map[string]bool, len(switches))

	for _, s := range switches {
		current[s.UniqueID] = true
		if b.markPublished(r.Name(), s.UniqueID) {
			msg := buildDiscovery(b.topics, r, s)
			b.publish(msg.Topic, msg.Payload)
			b.logger.Debugf("Published discovery for %s", s.UniqueID)
		}
		for _, msg := range buildState(b.topics, r.Name(), s) {
			b.publish(msg.Topic, msg.Payload)
		}
	}

	// Profiles or radios removed on the router side. A failed refresh keeps
	// the switch list, so this only triggers on real removals.
	for _, id := range b.stale(r.Name(), current) {
		msg := buildRemoveDiscovery(b.topics, id)
		b.publish(msg.Topic, msg.Payload)
	}
}

// markPublished reports whether uniqueID still needs a discovery message.
func (b *Bridge) markPublished(routerName, uniqueID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.published[routerName]
	if !ok {
		ids = make(map[string]bool)
		b.published[routerName] = ids
	}
	if ids[uniqueID] {
		return false
	}
	ids[uniqueID] = true
	return true
}

func (b *Bridge) stale(routerName string, current map[string]bool) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []string
	for id := range b.published[routerName] {
		if !current[id] {
			removed = append(removed, id)
			delete(b.published[routerName], id)
		}
	}
	return removed
}

// republish sends discovery again after a reconnect; retained messages
// may have been lost if the broker restarted.
func (b *Bridge) republish() {
	b.mu.Lock()
	b.published = make(map[string]map[string]bool)
	routers := make([]*router.Router, 0, len(b.watched))
	for r := range b.watched {
		routers = append(routers, r)
	}
	b.mu.Unlock()

	for _, r := range routers {
		b.handleUpdate(r)
	}
}

func (b *Bridge) subscribeCommands() {
	topic := b.topics.commandSubscription()
	token := b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		// Commands block on the router; keep the paho router goroutine free.
		go b.handleCommand(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warnf("MQTT subscribe timeout on %s", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Errorf("MQTT subscribe to %s failed: %v", topic, err)
		}
	}()
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	routerObject, switchObject, ok := b.topics.parseCommandTopic(topic)
	if !ok {
		b.logger.Warnf("Ignoring command on unexpected topic %s", topic)
		return
	}

	on, ok := parseCommand(payload)
	if !ok {
		b.logger.Warnf("Invalid command %q on %s", payload, topic)
		return
	}

	r, s, found := b.lookup(routerObject, switchObject)
	if !found {
		b.logger.Warnf("Command for unknown switch %s/%s", routerObject, switchObject)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := r.SetSwitch(ctx, s.UniqueID, on, router.SourceMQTT); err != nil {
		b.logger.Errorf("Failed to switch %s %s: %v", s.Name, onOff(on), err)
		// Push the unchanged state back so Home Assistant drops its optimistic value.
		for _, msg := range buildState(b.topics, r.Name(), s) {
			b.publish(msg.Topic, msg.Payload)
		}
	}
}

func (b *Bridge) lookup(routerObject, switchObject string) (*router.Router, router.Switch, bool) {
	for _, r := range b.routers.All() {
		if sanitize(r.Name()) != routerObject {
			continue
		}
		for _, s := range r.Switches() {
			if sanitize(s.UniqueID) == switchObject {
				return r, s, true
			}
		}
	}
	return nil, router.Switch{}, false
}

func (b *Bridge) publish(topic string, payload []byte) {
	if b.client == nil {
		return
	}
	token := b.client.Publish(topic, 1, true, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warnf("MQTT publish timeout on %s", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warnf("MQTT publish to %s failed: %v", topic, err)
		}
	}()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
