package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/config"
)

// mockLogger implements Logger for tests.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// disconnectedClient returns a client that never dialled a broker.
func disconnectedClient() *Client {
	return &Client{subscriptions: make(map[string]subscription)}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()
	big := make([]byte, maxPayloadSize+1)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "graylogic/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "graylogic/test", big, 1, ErrPublishFailed},
		{"not connected", "graylogic/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := disconnectedClient()
	err := c.PublishJSON("graylogic/test", map[string]any{"ch": make(chan int)}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("a/b", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("a/b") {
		t.Error("failed subscribe must not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty: %v", err)
	}
}

func TestDeliver_RecoversPanicsAndLogsErrors(t *testing.T) {
	c := disconnectedClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.deliver(func(string, []byte) error { panic("boom") }, "t", nil)
	c.deliver(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.deliver(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors=%v warns=%v, want one of each", logger.errors, logger.warns)
	}

	// No logger: must still not panic.
	c.SetLogger(nil)
	c.deliver(func(string, []byte) error { panic("boom") }, "t", nil)
}

func TestCallbacks(t *testing.T) {
	c := disconnectedClient()

	var disconnectErr error
	c.SetOnDisconnect(func(err error) { disconnectErr = err })
	c.handleDisconnect(errors.New("link down"))

	if disconnectErr == nil || disconnectErr.Error() != "link down" {
		t.Errorf("onDisconnect got %v", disconnectErr)
	}
	if c.IsConnected() {
		t.Error("IsConnected() should be false after disconnect")
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal(buildStatusPayload("graylogic-miot", statusOffline, reasonUnexpected), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "graylogic-miot" || msg.Reason != "unexpected_disconnect" {
		t.Errorf("status message = %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("timestamp missing")
	}

	// Online messages omit the reason.
	if strings.Contains(string(buildStatusPayload("x", statusOnline, "")), "reason") {
		t.Error("online payload should omit reason")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "miot"},
		Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "miot" || opts.Username != "u" {
		t.Errorf("ClientID=%q Username=%q", opts.ClientID, opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config should be set")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("auto-reconnect and clean session should be enabled")
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceState", topics.DeviceState("a1b2"), "graylogic/state/miot/a1b2"},
		{"AllDeviceStates", topics.AllDeviceStates(), "graylogic/state/miot/+"},
		{"EntityState", topics.EntityState("a1b2-fan:on"), "graylogic/core/entity/a1b2-fan:on/state"},
		{"AllEntityStates", topics.AllEntityStates(), "graylogic/core/entity/+/state"},
		{"CoreEvent", topics.CoreEvent("entity_attached"), "graylogic/core/event/entity_attached"},
		{"BridgeHealth", topics.BridgeHealth(), "graylogic/health/miot"},
		{"BridgeStatus", topics.BridgeStatus("graylogic-miot"), "graylogic/system/graylogic-miot/status"},
		{"AllTopics", topics.AllTopics(), "graylogic/#"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"graylogic/state/miot/+", "graylogic/state/miot/abc", true},
		{"graylogic/state/miot/+", "graylogic/state/miot/abc/extra", false},
		{"graylogic/state/miot/+", "graylogic/state/knx/abc", false},
		{"graylogic/#", "graylogic/core/entity/x/state", true},
		{"graylogic/#", "graylogic", true},
		{"graylogic/core/entity/+/state", "graylogic/core/entity/x/state", true},
		{"a/b", "a/b", true},
		{"a/b", "a", false},
	}
	for _, tt := range tests {
		if got := Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"graylogic/state/miot/abc": "abc",
		"abc":                      "abc",
		"graylogic/state/miot/":    "",
		"":                         "",
	}
	for topic, want := range tests {
		if got := LastSegment(topic); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", topic, got, want)
		}
	}
}
