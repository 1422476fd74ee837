package mqtt

import (
	"encoding/json"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// VariableMessage is the payload accepted on the variables topic.
type VariableMessage struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Bridge feeds device traffic into the engine: variable writes from the
// variables topic and device registrations into a Directory. Subscriptions
// are idempotent across reconnects.
type Bridge struct {
	t     Transport
	vars  variables.Store
	dir   *Directory
	bus   *events.Bus
	topic string

	mu         sync.RWMutex
	subscribed map[string]bool
}

// NewBridge creates a bridge writing to vars from topic.
func NewBridge(t Transport, vars variables.Store, dir *Directory, bus *events.Bus, topic string) *Bridge {
	return &Bridge{
		t:          t,
		vars:       vars,
		dir:        dir,
		bus:        bus,
		topic:      topic,
		subscribed: make(map[string]bool),
	}
}

// RegistrationTopic is where device controllers announce their devices.
func (b *Bridge) RegistrationTopic() string {
	return b.dir.Prefix() + "/register"
}

// Start subscribes to the variables and registration topics.
func (b *Bridge) Start() error {
	if err := b.subscribe(b.topic, b.handleVariable); err != nil {
		return err
	}
	return b.subscribe(b.RegistrationTopic(), b.handleRegistration)
}

func (b *Bridge) subscribe(topic string, handler paho.MessageHandler) error {
	b.mu.Lock()
	if b.subscribed[topic] {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.t.Subscribe(topic, handler); err != nil {
		b.bus.Emit(events.LevelError, "device.error", "failed to subscribe", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return err
	}

	b.mu.Lock()
	b.subscribed[topic] = true
	b.mu.Unlock()
	return nil
}

func (b *Bridge) handleVariable(_ paho.Client, msg paho.Message) {
	var m VariableMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil || m.Name == "" {
		b.bus.Emit(events.LevelWarn, "device.error", "invalid variable message", map[string]interface{}{
			"topic":   msg.Topic(),
			"payload": string(msg.Payload()),
		})
		return
	}
	if err := b.vars.Set(m.Name, m.Value); err != nil {
		b.bus.Emit(events.LevelWarn, "device.error", "variable write rejected", map[string]interface{}{
			"topic": msg.Topic(),
			"name":  m.Name,
			"error": err.Error(),
		})
		return
	}
	b.bus.Emit(events.LevelInfo, "device.input", "", map[string]interface{}{
		"topic": msg.Topic(),
		"name":  m.Name,
		"value": m.Value,
	})
}

func (b *Bridge) handleRegistration(_ paho.Client, msg paho.Message) {
	payload, err := ParseRegistration(msg.Payload())
	if err != nil {
		b.bus.Emit(events.LevelWarn, "device.error", "invalid registration", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
		return
	}
	result := ValidateRegistration(payload)
	if !result.Valid {
		b.bus.Emit(events.LevelWarn, "device.error", "registration rejected", map[string]interface{}{
			"controller_id": payload.Controller.ID,
			"errors":        result.Errors,
		})
		return
	}
	b.dir.RegisterFromPayload(payload)
	ids := make([]string, 0, len(payload.Devices))
	for _, dev := range payload.Devices {
		ids = append(ids, dev.ID)
	}
	b.bus.Emit(events.LevelInfo, "device.input", "devices registered", map[string]interface{}{
		"controller_id": payload.Controller.ID,
		"devices":       ids,
		"warnings":      result.Warnings,
	})
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *Bridge) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribed[topic]
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (b *Bridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}
