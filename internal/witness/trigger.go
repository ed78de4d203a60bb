package witness

import (
	"github.com/whalecell/witness/internal/world"
)

// AOIReceiver is the callback side of a spatial trigger: the witness that
// owns it. Grounded on witness.cpp's Witness class acting as its own
// AOITrigger delegate (spec §4.1, §6).
type AOIReceiver interface {
	onEnterAOI(target EntityHandle)
	onLeaveAOI(target EntityHandle)
}

// TriggerAdapter binds a spatial trigger at a viewer's position with a given
// radius, diffs its candidate set once per refresh, and calls back into the
// owning witness's onEnterAOI/onLeaveAOI. Grounded on witness.cpp's
// AOITrigger/AOIHysteresisAreaTrigger pair and on the teacher's enter/leave
// diffing technique in internal/system/visibility.go, generalized from a 2D
// tile grid keyed by a single map id to a 3D-positioned, per-space grid.
type TriggerAdapter struct {
	grid     *world.AOIGrid
	lookup   EntityLookup
	receiver AOIReceiver

	origin     EntityHandle
	spaceID    int32
	radius     float32
	hysteresis float32
	installed  bool

	known map[EntityID]struct{}
}

// NewTriggerAdapter creates an adapter over a shared spatial grid. The grid
// is shared across every witness in the same space so insertion/removal
// stays O(1) regardless of population.
func NewTriggerAdapter(grid *world.AOIGrid, lookup EntityLookup, receiver AOIReceiver) *TriggerAdapter {
	return &TriggerAdapter{
		grid:   grid,
		lookup: lookup,
		receiver: receiver,
		known:  make(map[EntityID]struct{}),
	}
}

// Install binds the trigger to origin's current position with the given
// radius and hysteresis margin (spec §4.2's setAoiRadius hysteresis band).
// Re-installing while already installed first uninstalls.
func (t *TriggerAdapter) Install(origin EntityHandle, spaceID int32, radius, hysteresis float32) {
	if t.installed {
		t.Uninstall()
	}
	t.origin = origin
	t.spaceID = spaceID
	t.radius = radius
	t.hysteresis = hysteresis
	t.installed = true

	pos := origin.Position()
	t.grid.Add(uint32(origin.ID()), spaceID, pos.X(), pos.Z())
}

// Uninstall detaches the trigger and forgets every entity it was tracking,
// without emitting leave callbacks — callers uninstalling as part of a
// space-leave or detach already have their own teardown path (spec §4.1's
// onLeaveSpace).
func (t *TriggerAdapter) Uninstall() {
	if !t.installed {
		return
	}
	pos := t.origin.Position()
	t.grid.Remove(uint32(t.origin.ID()), t.spaceID, pos.X(), pos.Z())
	t.origin = nil
	t.known = make(map[EntityID]struct{})
	t.installed = false
}

// Origin returns the entity the trigger is centered on.
func (t *TriggerAdapter) Origin() EntityHandle { return t.origin }

// SetRadius updates the trigger's radius and hysteresis margin in place
// (spec §4.2's setAoiRadius), without touching grid membership.
func (t *TriggerAdapter) SetRadius(radius, hysteresis float32) {
	t.radius = radius
	t.hysteresis = hysteresis
}

// Refresh re-centers the trigger on the origin's current position, computes
// the set of candidates within radius (using hysteresis to damp flicker at
// the boundary for entities already known), and fires onEnterAOI/onLeaveAOI
// for the difference against the previous refresh.
func (t *TriggerAdapter) Refresh() {
	if !t.installed {
		return
	}

	pos := t.origin.Position()
	t.grid.Move(uint32(t.origin.ID()), t.spaceID, pos.X(), pos.Z(), pos.X(), pos.Z())

	candidateIDs := t.grid.Nearby(t.spaceID, pos)
	current := make(map[EntityID]struct{}, len(candidateIDs))

	for _, raw := range candidateIDs {
		id := EntityID(raw)
		if id == t.origin.ID() {
			continue
		}
		handle, ok := t.lookup.Find(id)
		if !ok {
			continue
		}

		dist := handle.Position().Sub(pos).Len()
		_, wasKnown := t.known[id]
		limit := t.radius
		if wasKnown {
			limit += t.hysteresis
		}
		if dist > limit {
			continue
		}

		current[id] = struct{}{}
		if !wasKnown {
			t.receiver.onEnterAOI(handle)
		}
	}

	for id := range t.known {
		if _, stillIn := current[id]; stillIn {
			continue
		}
		if handle, ok := t.lookup.Find(id); ok {
			t.receiver.onLeaveAOI(handle)
		}
	}

	t.known = current
}
