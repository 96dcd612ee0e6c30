package host

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-miot/internal/converter"
	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-miot/internal/spec"
	_ "github.com/nerrad567/gray-logic-miot/migrations"
)

// openTestDB opens a migrated database in a temp directory.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// newFanDevice builds a device with a speed sensor and a power switch.
func newFanDevice(t *testing.T, id, mac string) *device.Device {
	t.Helper()
	tree := spec.New("brand.fan.v1")
	fan := spec.NewService(2, "fan", "Fan")
	require.NoError(t, tree.AddService(fan))
	on := fan.AddProperty(spec.NewProperty(1, "on", ""))
	on.Format = "bool"
	speed := fan.AddProperty(spec.NewProperty(2, "speed", ""))
	speed.Unit = "rpm"

	dev := device.New(id, "brand.fan.v1", tree, device.Info{UniqueID: mac}, nil)
	dev.Converters = []*converter.Converter{
		converter.NewProperty(speed, "sensor"),
		converter.NewProperty(on, "switch"),
	}
	return dev
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	count    int
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: make(map[string][]byte)}
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.err != nil {
		return p.err
	}
	p.messages[topic] = payload
	return nil
}

func (p *fakePublisher) get(topic string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.messages[topic]
	return b, ok
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) Broadcast(channel string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, channel)
}

func (b *fakeBroadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fakePoints struct {
	mu     sync.Mutex
	points []influxdb.EntityPoint
}

func (f *fakePoints) WriteEntityState(p influxdb.EntityPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakePoints) all() []influxdb.EntityPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]influxdb.EntityPoint(nil), f.points...)
}
