package mqtt

import (
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// mockBroker is an in-memory Transport.
type mockBroker struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []published
	connected     bool
	failSubscribe bool
}

type published struct {
	topic   string
	payload []byte
}

func newMockBroker() *mockBroker {
	return &mockBroker{
		subscriptions: make(map[string]paho.MessageHandler),
		connected:     true,
	}
}

func (m *mockBroker) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic: topic, payload: payload})
	return nil
}

func (m *mockBroker) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubscribe {
		return errors.New("subscribe refused")
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockBroker) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, topic)
	return nil
}

func (m *mockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockBroker) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscriptions[topic]
	return ok
}

func (m *mockBroker) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

func (m *mockBroker) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
