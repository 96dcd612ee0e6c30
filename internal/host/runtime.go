package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/entity"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/mqtt"
)

// ChannelStateChanged is the websocket channel entity snapshots go out on.
const ChannelStateChanged = "entity.state_changed"

const defaultWriteQueueSize = 1024

// Logger defines the logging interface used by the runtime.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher publishes retained MQTT messages.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Broadcaster pushes events to websocket subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// PointWriter writes entity state points to the time-series store.
type PointWriter interface {
	WriteEntityState(p influxdb.EntityPoint)
}

// Options configures a Runtime. DB, Devices and Factory are required;
// every sink is optional.
type Options struct {
	DB        *database.DB
	Devices   *device.Registry
	Factory   *entity.Factory
	Overrides entity.Overrides
	Logger    Logger
	Metrics   *metrics.Collector

	Publisher    Publisher
	StatePublish bool
	Broadcaster  Broadcaster
	Points       PointWriter

	// WriteQueueSize bounds the number of entities with a pending write.
	WriteQueueSize int
}

// Runtime owns the entities of every added device and implements
// entity.Host for them.
type Runtime struct {
	db        *database.DB
	devices   *device.Registry
	factory   *entity.Factory
	overrides entity.Overrides
	logger    Logger
	metrics   *metrics.Collector

	registry *EntityRegistry
	restore  *RestoreStore
	history  *HistoryStore

	publisher    Publisher
	statePublish bool
	broadcaster  Broadcaster
	points       PointWriter

	mu       sync.RWMutex
	entities map[string]*entity.Entity
	byDevice map[string][]*entity.Entity
	closed   bool

	pendingMu sync.Mutex
	pending   map[string]*entity.Entity
	order     []string
	queueSize int
	wake      chan struct{}

	// writeMu keeps drains sequential so one entity's writes stay ordered.
	writeMu sync.Mutex

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ entity.Host = (*Runtime)(nil)

// New creates a runtime. Call Start to run the background writer.
func New(opts Options) (*Runtime, error) {
	if opts.DB == nil {
		return nil, errors.New("host: database is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("host: device registry is required")
	}
	if opts.Factory == nil {
		opts.Factory = entity.DefaultFactory()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.WriteQueueSize <= 0 {
		opts.WriteQueueSize = defaultWriteQueueSize
	}

	return &Runtime{
		db:           opts.DB,
		devices:      opts.Devices,
		factory:      opts.Factory,
		overrides:    opts.Overrides,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		registry:     NewEntityRegistry(opts.DB.DB),
		restore:      NewRestoreStore(opts.DB.DB),
		history:      NewHistoryStore(opts.DB.DB),
		publisher:    opts.Publisher,
		statePublish: opts.StatePublish,
		broadcaster:  opts.Broadcaster,
		points:       opts.Points,
		entities:     make(map[string]*entity.Entity),
		byDevice:     make(map[string][]*entity.Entity),
		pending:      make(map[string]*entity.Entity),
		queueSize:    opts.WriteQueueSize,
		wake:         make(chan struct{}, 1),
	}, nil
}

// Start runs the state writer until ctx is cancelled or Close is called.
func (r *Runtime) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		r.wg.Add(1)
		go r.writeLoop(ctx)
	})
}

func (r *Runtime) writeLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.Flush(ctx)
		}
	}
}

// AddDevice registers dev and builds, registers and attaches one entity per
// converter. It is all-or-nothing: on error no entity stays attached, registry
// entries created by this call are removed and the device is unregistered
// again.
func (r *Runtime) AddDevice(ctx context.Context, dev *device.Device) error {
	if r.isClosed() {
		return ErrClosed
	}
	if err := r.devices.Register(dev); err != nil {
		return err
	}

	var (
		built   []*entity.Entity
		created []string
	)
	rollback := func() {
		for _, e := range built {
			e.Detach()
		}
		for _, uid := range created {
			if err := r.registry.Remove(ctx, uid); err != nil {
				r.logger.Warn("removing registry entry", "unique_id", uid, "error", err)
			}
		}
		_, _ = r.devices.Unregister(dev.UniqueID) //nolint:errcheck // registered above
	}

	seen := make(map[string]struct{}, len(dev.Converters))
	for _, conv := range dev.Converters {
		e, err := r.factory.Build(dev, conv,
			entity.WithLogger(r.logger),
			entity.WithOverrides(r.overrides),
		)
		if err != nil {
			rollback()
			return fmt.Errorf("building entity for %s: %w", dev.UniqueID, err)
		}
		built = append(built, e)
		if _, dup := seen[e.UniqueID()]; dup {
			rollback()
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.UniqueID())
		}
		seen[e.UniqueID()] = struct{}{}
	}

	r.mu.RLock()
	for uid := range seen {
		if _, exists := r.entities[uid]; exists {
			r.mu.RUnlock()
			rollback()
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, uid)
		}
	}
	r.mu.RUnlock()

	for _, e := range built {
		_, gerr := r.registry.Get(ctx, e.UniqueID())
		entry, err := r.registry.Register(ctx, RegistryEntry{
			UniqueID: e.UniqueID(),
			EntityID: e.EntityID(),
			DeviceID: dev.UniqueID,
			Domain:   e.Domain(),
			Platform: e.Platform(),
		})
		if err != nil {
			rollback()
			return fmt.Errorf("registering %s: %w", e.UniqueID(), err)
		}
		if errors.Is(gerr, ErrEntityNotFound) {
			created = append(created, e.UniqueID())
		}
		e.SetEntityID(entry.EntityID)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		rollback()
		return ErrClosed
	}
	for _, e := range built {
		r.entities[e.UniqueID()] = e
	}
	r.byDevice[dev.UniqueID] = built
	count := len(r.entities)
	r.mu.Unlock()

	for _, e := range built {
		if err := e.Attach(ctx, r); err != nil {
			r.logger.Error("attaching entity", "unique_id", e.UniqueID(), "error", err)
			continue
		}
		r.ScheduleStateWrite(e)
	}

	r.metrics.SetEntities(count)
	r.metrics.SetDevices(r.devices.GetDeviceCount())
	r.logger.Info("device added", "device_id", dev.UniqueID, "model", dev.Model, "entities", len(built))
	return nil
}

// RemoveDevice persists restore data for the device's entities, detaches
// them and unregisters the device. Registry entries are kept so the
// entity IDs survive the device coming back.
func (r *Runtime) RemoveDevice(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	ents, ok := r.byDevice[deviceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	delete(r.byDevice, deviceID)
	for _, e := range ents {
		delete(r.entities, e.UniqueID())
	}
	count := len(r.entities)
	r.mu.Unlock()

	_, err := r.persistRestore(ctx, ents)
	for _, e := range ents {
		e.Detach()
		r.dropPending(e.UniqueID())
	}
	if _, uerr := r.devices.Unregister(deviceID); uerr != nil {
		r.logger.Warn("unregistering device", "device_id", deviceID, "error", uerr)
	}

	r.metrics.SetEntities(count)
	r.metrics.SetDevices(r.devices.GetDeviceCount())
	r.logger.Info("device removed", "device_id", deviceID, "entities", len(ents))
	return err
}

// ScheduleStateWrite queues a state write for e without blocking.
// Requests for an entity that already has a pending write are merged.
func (r *Runtime) ScheduleStateWrite(e *entity.Entity) {
	uid := e.UniqueID()

	r.pendingMu.Lock()
	if _, ok := r.pending[uid]; ok {
		r.pendingMu.Unlock()
		r.metrics.WriteCoalesced()
		return
	}
	if len(r.pending) >= r.queueSize {
		r.pendingMu.Unlock()
		r.metrics.WriteDropped()
		r.logger.Warn("state write queue full, dropping write", "unique_id", uid)
		return
	}
	r.pending[uid] = e
	r.order = append(r.order, uid)
	r.pendingMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// LastExtraData returns the persisted restore data for uniqueID.
func (r *Runtime) LastExtraData(ctx context.Context, uniqueID string) (map[string]any, error) {
	return r.restore.Load(ctx, uniqueID)
}

// Flush writes every pending state now, in request order.
func (r *Runtime) Flush(ctx context.Context) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.pendingMu.Lock()
	pending, order := r.pending, r.order
	r.pending = make(map[string]*entity.Entity, len(pending))
	r.order = nil
	r.pendingMu.Unlock()

	for _, uid := range order {
		if e, ok := pending[uid]; ok {
			delete(pending, uid)
			r.writeState(ctx, e)
		}
	}
}

func (r *Runtime) dropPending(uid string) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if _, ok := r.pending[uid]; !ok {
		return
	}
	delete(r.pending, uid)
	for i, id := range r.order {
		if id == uid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// writeState fans the entity's snapshot out to every configured sink.
// Sink failures are logged and counted; they never stop the other sinks.
func (r *Runtime) writeState(ctx context.Context, e *entity.Entity) {
	snap := e.Snapshot()
	if snap.Phase != entity.PhaseAttached.String() {
		return
	}

	if r.publisher != nil && r.statePublish {
		payload, err := json.Marshal(snap)
		if err == nil {
			err = r.publisher.PublishRetained(mqtt.Topics{}.EntityState(snap.UniqueID), payload)
		}
		if err != nil {
			r.metrics.WriteFailed("mqtt")
			r.logger.Warn("publishing entity state", "unique_id", snap.UniqueID, "error", err)
		}
	}

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelStateChanged, snap)
	}

	if err := r.history.Record(ctx, snap.UniqueID, snap.EntityID, HistoryState{
		State:      snap.State,
		Unit:       snap.Unit,
		Available:  snap.Available,
		Attributes: snap.Attributes,
	}, snap.Timestamp); err != nil {
		r.metrics.WriteFailed("history")
		r.logger.Warn("recording state history", "unique_id", snap.UniqueID, "error", err)
	}

	if r.points != nil {
		if v, ok := influxdb.NumericValue(snap.State); ok {
			r.points.WriteEntityState(influxdb.EntityPoint{
				UniqueID: snap.UniqueID,
				EntityID: snap.EntityID,
				Domain:   snap.Domain,
				Unit:     snap.Unit,
				Value:    v,
				Time:     snap.Timestamp,
			})
		}
	}

	r.metrics.StateWritten(snap.Domain)
}

// SnapshotRestoreState persists restore data for every attached entity
// and returns how many rows were saved.
func (r *Runtime) SnapshotRestoreState(ctx context.Context) (int, error) {
	return r.persistRestore(ctx, r.Entities())
}

func (r *Runtime) persistRestore(ctx context.Context, ents []*entity.Entity) (int, error) {
	var errs []error
	saved := 0
	for _, e := range ents {
		data, ok := e.ExtraRestoreData()
		if !ok {
			if err := r.restore.Delete(ctx, e.UniqueID()); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := r.restore.Save(ctx, e.UniqueID(), data); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	r.metrics.RestoreSaved(saved)
	return saved, errors.Join(errs...)
}

// PruneHistory deletes state history older than retention.
func (r *Runtime) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := r.history.Prune(ctx, retention)
	if err != nil {
		return 0, err
	}
	r.metrics.HistoryPruned(n)
	return n, nil
}

// History returns recent state history for an entity, by unique or entity ID.
func (r *Runtime) History(ctx context.Context, id string, limit int, since time.Time) ([]HistoryEntry, error) {
	e, err := r.Entity(id)
	uid := id
	if err == nil {
		uid = e.UniqueID()
	} else if _, rerr := r.registry.Get(ctx, id); rerr != nil {
		return nil, err
	}
	return r.history.History(ctx, uid, limit, since)
}

// ForgetEntity deletes the registry entry, restore data and state history
// of an entity that is not currently attached, freeing its entity ID.
func (r *Runtime) ForgetEntity(ctx context.Context, uniqueID string) error {
	if _, err := r.Entity(uniqueID); err == nil {
		return fmt.Errorf("%w: %s is attached", ErrInvalidEntry, uniqueID)
	}
	if err := r.registry.Remove(ctx, uniqueID); err != nil {
		return err
	}
	if err := r.restore.Delete(ctx, uniqueID); err != nil {
		return err
	}
	return r.history.Delete(ctx, uniqueID)
}

// Registry returns the persistent entity registry.
func (r *Runtime) Registry() *EntityRegistry { return r.registry }

// Entities returns the attached entities ordered by entity ID.
func (r *Runtime) Entities() []*entity.Entity {
	r.mu.RLock()
	out := make([]*entity.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID() < out[j].EntityID() })
	return out
}

// Entity looks an entity up by unique ID, then by entity ID.
func (r *Runtime) Entity(id string) (*entity.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entities[id]; ok {
		return e, nil
	}
	for _, e := range r.entities {
		if e.EntityID() == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
}

// DeviceEntities returns the entities built for a device.
func (r *Runtime) DeviceEntities(deviceID string) ([]*entity.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ents, ok := r.byDevice[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return append([]*entity.Entity(nil), ents...), nil
}

// EntityCount returns the number of attached entities.
func (r *Runtime) EntityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func (r *Runtime) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close stops the writer, flushes pending writes, persists restore data
// and detaches every entity. It is safe to call more than once.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()

		r.Flush(ctx)

		ents := r.Entities()
		_, err = r.persistRestore(ctx, ents)
		for _, e := range ents {
			e.Detach()
		}

		r.mu.Lock()
		r.entities = make(map[string]*entity.Entity)
		r.byDevice = make(map[string][]*entity.Entity)
		r.mu.Unlock()

		r.metrics.SetEntities(0)
		r.logger.Info("host runtime closed", "entities", len(ents))
	})
	return err
}
