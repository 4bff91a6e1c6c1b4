// Package interpolation implements the client-side render-smoothing
// buffer described in spec.md §4.9, grounded directly on
// client/src/interpolation_manager.rs — including its empty
// sync_interpolation stub, whose intended semantics spec.md §9 pins down
// (refresh anchor + resample live value) since the source never defines
// it. See DESIGN.md Open Question #3.
package interpolation

import (
	"time"

	"github.com/appnet-org/naia/pkg/entity"
)

// record is one per-entity interpolation window: from is the value to
// interpolate from, target is the live value as of the last
// CreateInterpolation/SyncInterpolation call, and anchor is when that
// window started. GetInterpolation always interpolates from "from"
// toward whatever live value the caller hands it, so target only
// matters internally, to let SyncInterpolation re-derive "from" as the
// window slides forward instead of snapping straight to the newest
// value.
type record struct {
	anchor time.Time
	from   entity.Entity
	target entity.Entity
}

// Buffer holds interpolation records for replicated ("entity") and
// locally-predicted ("pawn") entities in two separate maps, per spec.md
// §3's InterpolationRecord definition.
type Buffer struct {
	updatePeriod time.Duration

	entitySnapshots map[entity.LocalEntityKey]record
	pawnSnapshots   map[entity.LocalEntityKey]record
}

// NewBuffer creates an empty interpolation buffer. updatePeriod is the
// expected time between server updates (spec.md §4.9: equal to
// tick_interval), used to scale the interpolation fraction.
func NewBuffer(updatePeriod time.Duration) *Buffer {
	return &Buffer{
		updatePeriod:    updatePeriod,
		entitySnapshots: make(map[entity.LocalEntityKey]record),
		pawnSnapshots:   make(map[entity.LocalEntityKey]record),
	}
}

func (b *Buffer) table(pawn bool) map[entity.LocalEntityKey]record {
	if pawn {
		return b.pawnSnapshots
	}
	return b.entitySnapshots
}

// CreateInterpolation takes a snapshot of live's current state and
// records it under key anchored at now. A no-op if live is nil.
func (b *Buffer) CreateInterpolation(key entity.LocalEntityKey, live entity.Entity, now time.Time, pawn bool) {
	if live == nil {
		return
	}
	b.table(pawn)[key] = record{anchor: now, from: live.Clone(), target: live.Clone()}
}

// DeleteInterpolation removes any stored snapshot for key.
func (b *Buffer) DeleteInterpolation(key entity.LocalEntityKey, pawn bool) {
	delete(b.table(pawn), key)
}

func fracOf(anchor, now time.Time, period time.Duration) float64 {
	frac := 0.0
	if period > 0 {
		frac = float64(now.Sub(anchor)) / float64(period)
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac
}

// SyncInterpolation records now as the new anchor for key and arms the
// buffer to smooth toward live over the next updatePeriod. Call when a
// fresh server update arrives for key. Rather than snapping the
// interpolation origin straight to live (which would make interpolation
// a no-op on the very next GetInterpolation call), it resamples the
// value the previous window was mid-flight toward — wherever rendering
// had actually gotten to by now — and continues smoothing from there, so
// a slow or bursty update stream never produces a visible jump. A no-op
// if key has no existing record or live is nil.
func (b *Buffer) SyncInterpolation(key entity.LocalEntityKey, live entity.Entity, now time.Time, pawn bool) {
	if live == nil {
		return
	}
	table := b.table(pawn)
	rec, ok := table[key]
	if !ok {
		return
	}

	frac := fracOf(rec.anchor, now, b.updatePeriod)
	rendered := rec.target.Interpolate(rec.from, frac)

	table[key] = record{anchor: now, from: rendered, target: live.Clone()}
}

// GetInterpolation produces a smoothed value between the stored
// interpolation origin and live, based on (now - anchor) / updatePeriod
// clamped to [0, 1]. Per spec.md §4.9, returns (nil, false) if no
// snapshot is stored for key or live is nil.
func (b *Buffer) GetInterpolation(key entity.LocalEntityKey, live entity.Entity, now time.Time, pawn bool) (entity.Entity, bool) {
	if live == nil {
		return nil, false
	}
	rec, ok := b.table(pawn)[key]
	if !ok {
		return nil, false
	}

	frac := fracOf(rec.anchor, now, b.updatePeriod)
	return live.Interpolate(rec.from, frac), true
}
