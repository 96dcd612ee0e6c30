package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

// MockMQTTClient is a test implementation of MQTTClient.
type MockMQTTClient struct {
	mu            sync.Mutex
	connected     bool
	published     []publishedMessage
	subscriptions map[string]mqtt.MessageHandler
	subscribeErr  error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected:     true,
		subscriptions: make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

// deliver simulates a broker message on topic.
func (m *MockMQTTClient) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range m.subscriptions {
		if mqtt.Match(filter, topic) {
			handler = h
		}
	}
	m.mu.Unlock()
	require.NotNil(t, handler, "no subscription matches %s", topic)
	return handler(topic, []byte(payload))
}

func (m *MockMQTTClient) healthMessages(t *testing.T) []HealthMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	topic := mqtt.Topics{}.BridgeHealth()
	var out []HealthMessage
	for _, p := range m.published {
		if p.topic != topic {
			continue
		}
		assert.True(t, p.retained)
		var msg HealthMessage
		require.NoError(t, json.Unmarshal(p.payload, &msg))
		out = append(out, msg)
	}
	return out
}

func (m *MockMQTTClient) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscriptions[topic]
	return ok
}

type recordingListener struct {
	mu      sync.Mutex
	updates []map[string]any
}

func (l *recordingListener) OnDeviceUpdate(data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, data)
}

func (l *recordingListener) all() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]map[string]any(nil), l.updates...)
}

func newTestBridge(t *testing.T) (*Bridge, *MockMQTTClient, *recordingListener) {
	t.Helper()
	reg := device.NewRegistry()
	dev := device.New("dev1", "brand.fan.v1", spec.New("brand.fan.v1"), device.Info{UniqueID: "AA:BB"}, nil)
	require.NoError(t, reg.Register(dev))
	listener := &recordingListener{}
	dev.AddListener(listener)

	client := NewMockMQTTClient()
	b, err := NewBridge(BridgeOptions{
		Version:    "test",
		MQTTClient: client,
		Devices:    reg,
		Health: HealthReporterConfig{
			Interval: time.Hour,
			Sizes:    func() (int, int) { return reg.GetDeviceCount(), 2 },
		},
	})
	require.NoError(t, err)
	return b, client, listener
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(BridgeOptions{Devices: device.NewRegistry()})
	assert.Error(t, err)

	_, err = NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient()})
	assert.Error(t, err)
}

func TestBridge_StartDispatchesState(t *testing.T) {
	b, client, listener := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	assert.True(t, client.subscribed("graylogic/state/miot/+"))

	require.NoError(t, client.deliver(t, "graylogic/state/miot/dev1", `{"fan:speed": 3}`))
	require.NoError(t, client.deliver(t, "graylogic/state/miot/other", `{"device_id": "dev1", "data": {"fan:on": true}}`))

	updates := listener.all()
	require.Len(t, updates, 2)
	assert.Equal(t, map[string]any{"fan:speed": 3.0}, updates[0])
	assert.Equal(t, map[string]any{"fan:on": true}, updates[1])

	stats := b.GetStats()
	assert.Equal(t, uint64(2), stats.MessagesReceived)
	assert.Equal(t, uint64(0), stats.MessagesDropped)
	assert.Equal(t, string(HealthHealthy), stats.Status)
}

func TestBridge_DropsBadMessages(t *testing.T) {
	b, client, listener := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	err := client.deliver(t, "graylogic/state/miot/ghost", `{"x": 1}`)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	err = client.deliver(t, "graylogic/state/miot/dev1", `not json`)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = client.deliver(t, "graylogic/state/miot/dev1", `[1, 2]`)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	// Empty updates are accepted but not dispatched.
	require.NoError(t, client.deliver(t, "graylogic/state/miot/dev1", `{}`))

	assert.Empty(t, listener.all())
	stats := b.GetStats()
	assert.Equal(t, uint64(4), stats.MessagesReceived)
	assert.Equal(t, uint64(3), stats.MessagesDropped)
}

func TestBridge_StartSubscribeFailure(t *testing.T) {
	b, client, _ := newTestBridge(t)
	client.subscribeErr = errors.New("refused")

	err := b.Start(context.Background())
	assert.Error(t, err)
	b.Stop()
}

func TestBridge_HealthLifecycle(t *testing.T) {
	b, client, _ := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(client.healthMessages(t)) >= 2
	}, time.Second, 10*time.Millisecond)

	b.Stop()
	b.Stop()

	msgs := client.healthMessages(t)
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, HealthStarting, msgs[0].Status)
	assert.Equal(t, HealthHealthy, msgs[1].Status)
	assert.Equal(t, 1, msgs[1].Devices)
	assert.Equal(t, 2, msgs[1].Entities)
	assert.Equal(t, "miot", msgs[1].Bridge)
	assert.Equal(t, "test", msgs[1].Version)
	assert.Equal(t, HealthStopping, msgs[len(msgs)-1].Status)

	assert.False(t, client.subscribed("graylogic/state/miot/+"))
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	client := NewMockMQTTClient()
	devices := 1
	h := NewHealthReporter(HealthReporterConfig{
		Publisher: client,
		Sizes:     func() (int, int) { return devices, 0 },
	})
	assert.Equal(t, defaultHealthInterval, h.interval)

	status, _ := h.determineStatus()
	assert.Equal(t, HealthHealthy, status)

	devices = 0
	status, reason := h.determineStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "no devices", reason)

	devices = 1
	client.setConnected(false)
	status, reason = h.determineStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "MQTT disconnected", reason)

	assert.NoError(t, NewHealthReporter(HealthReporterConfig{}).PublishNow())
}
