package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/price"
	"github.com/tallywatt/tallywatt/pkg/reads"
	"github.com/tallywatt/tallywatt/pkg/sink"
	"github.com/tallywatt/tallywatt/pkg/types"
)

// deviceRecord is the in-memory state of one tracked device.
type deviceRecord struct {
	cfg types.DeviceConfig

	// metered
	lastReadingKWH float64
	hasReading     bool

	// estimated
	estWatts float64
	on       bool
	level    *float64

	lastObs  time.Time
	todayKWH float64
	monthKWH float64
}

// Ledger is the time-of-use accounting engine. It owns every device record
// and accumulator; all mutation happens under a single mutex so concurrent
// events, ticks and rollovers can never interleave partial updates to the
// shared cost scalars. Price resolution and live reads happen before the lock
// is taken since they can touch external state.
type Ledger struct {
	reader reads.Reader
	sink   sink.Sink

	// now is replaceable for tests.
	now func() time.Time

	mu          sync.Mutex
	settings    types.Settings
	source      price.Source
	devices     map[string]*deviceRecord
	todayCost   float64
	monthCost   float64
	lastPrice   *float64
	lastPriceAt time.Time
	lastDaily   time.Time
	lastMonthly time.Time
}

// New creates an empty ledger. ApplySettings must be called before events are
// delivered; until then every event is ignored as untracked.
func New(reader reads.Reader, snk sink.Sink) *Ledger {
	return &Ledger{
		reader:  reader,
		sink:    snk,
		now:     time.Now,
		devices: make(map[string]*deviceRecord),
	}
}

// ApplySettings installs a new configuration snapshot. Records for devices no
// longer tracked are dropped; surviving estimated records have their open
// interval closed at the cached price before the new wattage curve takes
// effect.
func (l *Ledger) ApplySettings(ctx context.Context, settings types.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	source := price.FromSettings(settings, l.reader)
	// prime the cached price so estimated intervals settled before the first
	// tick or price event are already costed
	priceVal, havePrice := source.Resolve(ctx)
	now := l.now()

	l.mu.Lock()
	for id, rec := range l.devices {
		cfg, ok := settings.Device(id)
		if !ok {
			log.Ctx(ctx).InfoContext(ctx, "dropping untracked device", slog.String("deviceID", id))
			delete(l.devices, id)
			continue
		}
		if cfg.Kind != rec.cfg.Kind {
			// a reclassified device starts over
			log.Ctx(ctx).InfoContext(
				ctx,
				"device kind changed, resetting record",
				slog.String("deviceID", id),
				slog.String("kind", string(cfg.Kind)),
			)
			l.devices[id] = &deviceRecord{cfg: cfg, lastObs: now}
			continue
		}
		if rec.cfg.Kind == types.DeviceKindEstimated {
			l.closeEstimatedLocked(ctx, id, rec, now)
		}
		rec.cfg = cfg
		if rec.cfg.Kind == types.DeviceKindEstimated {
			rec.estWatts = estimateWatts(cfg, rec.on, rec.level)
		}
	}
	l.settings = settings
	l.source = source
	if havePrice {
		v := priceVal
		l.lastPrice = &v
		l.lastPriceAt = now
	}
	l.mu.Unlock()
	return nil
}

// Settings returns the currently installed configuration snapshot.
func (l *Ledger) Settings() types.Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

// record returns the device record, creating it lazily. Callers must hold the
// mutex and must have verified the device is configured.
func (l *Ledger) recordLocked(cfg types.DeviceConfig, now time.Time) *deviceRecord {
	rec, ok := l.devices[cfg.ID]
	if !ok {
		rec = &deviceRecord{cfg: cfg, lastObs: now}
		if cfg.Kind == types.DeviceKindEstimated {
			// switch state is unknown until the first event; assume off so we
			// never over-attribute before we have observed anything
			rec.estWatts = estimateWatts(cfg, false, nil)
		}
		l.devices[cfg.ID] = rec
	}
	return rec
}

// HandleEvent processes one inbound attribute event. Bad values are absorbed:
// non-numeric readings, unknown attributes and untracked devices are logged
// and skipped, never raised.
func (l *Ledger) HandleEvent(ctx context.Context, deviceID, attribute, value string, ts time.Time) {
	l.mu.Lock()
	settings := l.settings
	l.mu.Unlock()

	// a price attribute event closes out every estimated interval at the old
	// cached price before the new one takes effect
	if settings.PriceMode == types.PriceModeAttribute &&
		deviceID == settings.PriceDeviceID && attribute == settings.PriceAttribute {
		l.handlePriceEvent(ctx, value, ts)
		return
	}

	cfg, ok := settings.Device(deviceID)
	if !ok {
		log.Ctx(ctx).DebugContext(ctx, "event for untracked device", slog.String("deviceID", deviceID))
		return
	}

	switch {
	case cfg.Kind == types.DeviceKindMetered && attribute == cfg.EnergyAttribute:
		l.handleMeterEvent(ctx, cfg, value, ts)
	case cfg.Kind == types.DeviceKindEstimated && attribute == cfg.SwitchAttribute:
		l.handleSwitchEvent(ctx, cfg, value, ts)
	case cfg.Kind == types.DeviceKindEstimated && cfg.LevelAttribute != "" && attribute == cfg.LevelAttribute:
		l.handleLevelEvent(ctx, cfg, value, ts)
	default:
		log.Ctx(ctx).DebugContext(
			ctx,
			"ignoring attribute event",
			slog.String("deviceID", deviceID),
			slog.String("attribute", attribute),
		)
	}
}

func (l *Ledger) handleMeterEvent(ctx context.Context, cfg types.DeviceConfig, value string, ts time.Time) {
	kwh, ok := reads.Number(value)
	if !ok {
		log.Ctx(ctx).WarnContext(
			ctx,
			"non-numeric meter reading dropped",
			slog.String("deviceID", cfg.ID),
			slog.String("value", value),
		)
		return
	}
	// resolve before locking; for metered devices the price is always the one
	// in effect at settlement time
	priceVal, havePrice := l.resolvePrice(ctx)

	l.mu.Lock()
	rec := l.recordLocked(cfg, ts)
	l.accrueMeteredLocked(ctx, rec, kwh, ts, priceVal, havePrice)
	l.mu.Unlock()

	l.publish(ctx)
}

func (l *Ledger) handleSwitchEvent(ctx context.Context, cfg types.DeviceConfig, value string, ts time.Time) {
	on, ok := reads.Switch(value)
	if !ok {
		log.Ctx(ctx).WarnContext(
			ctx,
			"unparseable switch state dropped",
			slog.String("deviceID", cfg.ID),
			slog.String("value", value),
		)
		return
	}

	l.mu.Lock()
	rec := l.recordLocked(cfg, ts)
	// the interval that just ended ran at the prior estimate
	l.closeEstimatedLocked(ctx, cfg.ID, rec, ts)
	rec.on = on
	rec.estWatts = estimateWatts(cfg, rec.on, rec.level)
	l.mu.Unlock()

	l.publish(ctx)
}

func (l *Ledger) handleLevelEvent(ctx context.Context, cfg types.DeviceConfig, value string, ts time.Time) {
	level, ok := reads.Number(value)
	if !ok {
		log.Ctx(ctx).WarnContext(
			ctx,
			"non-numeric level dropped",
			slog.String("deviceID", cfg.ID),
			slog.String("value", value),
		)
		return
	}

	l.mu.Lock()
	rec := l.recordLocked(cfg, ts)
	l.closeEstimatedLocked(ctx, cfg.ID, rec, ts)
	rec.level = &level
	rec.estWatts = estimateWatts(cfg, rec.on, rec.level)
	l.mu.Unlock()

	l.publish(ctx)
}

func (l *Ledger) handlePriceEvent(ctx context.Context, value string, ts time.Time) {
	base, numeric := reads.Number(value)
	var next *float64
	switch {
	case !numeric:
		log.Ctx(ctx).WarnContext(ctx, "non-numeric price, treating as unavailable", slog.String("value", value))
	case base < 0:
		// cost accumulators only move forward; a negative rate means no rate
		log.Ctx(ctx).WarnContext(ctx, "negative price, treating as unavailable", slog.Float64("dollarsPerKWH", base))
	default:
		surcharge := l.settingsSurcharge()
		effective := base + surcharge
		next = &effective
	}

	l.mu.Lock()
	for id, rec := range l.devices {
		if rec.cfg.Kind == types.DeviceKindEstimated {
			l.closeEstimatedLocked(ctx, id, rec, ts)
		}
	}
	l.lastPrice = next
	l.lastPriceAt = ts
	l.mu.Unlock()

	l.publish(ctx)
}

func (l *Ledger) settingsSurcharge() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.settings.SurchargeDollarsPerKWH; s > 0 {
		return s
	}
	return 0
}

// resolvePrice resolves the current effective price without holding the state
// lock. Returns (0, false) when no source is configured yet.
func (l *Ledger) resolvePrice(ctx context.Context) (float64, bool) {
	l.mu.Lock()
	source := l.source
	l.mu.Unlock()
	if source == nil {
		return 0, false
	}
	return source.Resolve(ctx)
}

// publish pushes a fresh snapshot to the sink. Called after every mutation,
// outside the lock.
func (l *Ledger) publish(ctx context.Context) {
	if l.sink == nil {
		return
	}
	l.sink.Publish(ctx, l.Snapshot(ctx))
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
