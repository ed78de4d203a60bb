// Package entityreg is the concrete entity registry backing witness's
// EntityLookup/EntityHandle interfaces (spec §6, §9's "central entity
// registry... the single lifetime root"). It is built on the teacher's
// generational ECS (internal/core/ecs), generalized from component-store
// game data to the fields a Witness needs: position, direction, on-ground,
// script type, change ticks, volatile thresholds, the witnessed-by set, and
// a mailbox.
package entityreg

import (
	"github.com/whalecell/witness/internal/core/ecs"
	"github.com/whalecell/witness/internal/witness"
)

// record holds one entity's replication-relevant state. Exactly one record
// exists per live entity; witness.EntityID is the record's stable key,
// independent of the ecs.EntityID generation churn underneath it.
type record struct {
	ecsID      ecs.EntityID
	pos        witness.Vec3
	dir        witness.Direction
	onGround   bool
	scriptType uint16
	posTick    uint64
	dirTick    uint64
	volatile   witness.VolatileInfo
	witnessed  map[witness.EntityID]struct{}
	mailbox    witness.Mailbox

	writeProps func(w *witness.BundleWriter, absolute bool)
	writeData  func(w *witness.BundleWriter, forOwnClient bool)
}

// Registry is the live entity table for one cell space. Accessed only from
// the game-loop goroutine, like the rest of the ECS (spec §5: no internal
// locking).
type Registry struct {
	world   *ecs.World
	records *ecs.PtrComponentStore[record]
	byWID   map[witness.EntityID]ecs.EntityID
}

func New(world *ecs.World) *Registry {
	r := &Registry{
		world:   world,
		records: ecs.NewPtrComponentStore[record](),
		byWID:   make(map[witness.EntityID]ecs.EntityID, 256),
	}
	world.Registry().Register(r.records)
	return r
}

// Spawn creates a new entity and returns its stable witness.EntityID. The
// caller fills in replication data with the Set* methods below before the
// entity becomes witnessable.
func (r *Registry) Spawn(scriptType uint16, mailbox witness.Mailbox) witness.EntityID {
	ecsID := r.world.CreateEntity()
	wid := witness.EntityID(ecsID.Index())

	rec := &record{
		ecsID:      ecsID,
		scriptType: scriptType,
		mailbox:    mailbox,
		witnessed:  make(map[witness.EntityID]struct{}),
	}
	r.records.Set(ecsID, rec)
	r.byWID[wid] = ecsID
	return wid
}

// Despawn destroys an entity and drops it from every component store
// (ecs.World.FlushDestroyQueue's immediate counterpart — witness entities
// are destroyed synchronously, not deferred, since AOI teardown must see a
// dead target immediately rather than at end-of-tick).
func (r *Registry) Despawn(id witness.EntityID) {
	ecsID, ok := r.byWID[id]
	if !ok {
		return
	}
	r.world.Registry().RemoveAll(ecsID)
	r.world.Pool().Destroy(ecsID)
	delete(r.byWID, id)
}

func (r *Registry) lookup(id witness.EntityID) (*record, bool) {
	ecsID, ok := r.byWID[id]
	if !ok {
		return nil, false
	}
	if !r.world.Alive(ecsID) {
		delete(r.byWID, id)
		return nil, false
	}
	return r.records.Get(ecsID)
}

// SetPosition updates an entity's position and bumps its position-changed
// tick, the input DeltaEncoder's staleness check reads (spec §4.3).
func (r *Registry) SetPosition(id witness.EntityID, pos witness.Vec3, onGround bool, now uint64) {
	rec, ok := r.lookup(id)
	if !ok {
		return
	}
	rec.pos = pos
	rec.onGround = onGround
	rec.posTick = now
}

// SetDirection updates an entity's orientation and bumps its
// direction-changed tick.
func (r *Registry) SetDirection(id witness.EntityID, dir witness.Direction, now uint64) {
	rec, ok := r.lookup(id)
	if !ok {
		return
	}
	rec.dir = dir
	rec.dirTick = now
}

// SetVolatileInfo configures which fields replicate for this entity's
// script type.
func (r *Registry) SetVolatileInfo(id witness.EntityID, v witness.VolatileInfo) {
	if rec, ok := r.lookup(id); ok {
		rec.volatile = v
	}
}

// SetWriters installs the callbacks WriteProperties/WriteClientData
// delegate to — the entity's own script-level serialization, which this
// package does not itself implement (wire-message catalog is out of scope,
// spec §1).
func (r *Registry) SetWriters(id witness.EntityID,
	writeProps func(w *witness.BundleWriter, absolute bool),
	writeData func(w *witness.BundleWriter, forOwnClient bool),
) {
	if rec, ok := r.lookup(id); ok {
		rec.writeProps = writeProps
		rec.writeData = writeData
	}
}

// Position returns an entity's current position and whether it's still
// alive.
func (r *Registry) Position(id witness.EntityID) (witness.Vec3, bool) {
	rec, ok := r.lookup(id)
	if !ok {
		return witness.Vec3{}, false
	}
	return rec.pos, true
}

// Find implements witness.EntityLookup.
func (r *Registry) Find(id witness.EntityID) (witness.EntityHandle, bool) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	return &handle{id: id, rec: rec, reg: r}, true
}

// handle is the witness.EntityHandle view over one record.
type handle struct {
	id  witness.EntityID
	rec *record
	reg *Registry
}

func (h *handle) ID() witness.EntityID             { return h.id }
func (h *handle) Position() witness.Vec3           { return h.rec.pos }
func (h *handle) Direction() witness.Direction     { return h.rec.dir }
func (h *handle) OnGround() bool                   { return h.rec.onGround }
func (h *handle) ScriptTypeID() uint16             { return h.rec.scriptType }
func (h *handle) PosChangedTick() uint64           { return h.rec.posTick }
func (h *handle) DirChangedTick() uint64           { return h.rec.dirTick }
func (h *handle) VolatileInfo() witness.VolatileInfo { return h.rec.volatile }

func (h *handle) AddWitnessedBy(viewer witness.EntityID) {
	h.rec.witnessed[viewer] = struct{}{}
}

func (h *handle) RemoveWitnessedBy(viewer witness.EntityID) {
	delete(h.rec.witnessed, viewer)
}

func (h *handle) WriteProperties(w *witness.BundleWriter, absolute bool) {
	if h.rec.writeProps != nil {
		h.rec.writeProps(w, absolute)
	}
}

func (h *handle) WriteClientData(w *witness.BundleWriter, forOwnClient bool) {
	if h.rec.writeData != nil {
		h.rec.writeData(w, forOwnClient)
	}
}

func (h *handle) Mailbox() witness.Mailbox { return h.rec.mailbox }

// WitnessedByCount exposes the size of an entity's witnessed-by set, used
// by tests to check invariant I1 without reaching into unexported state.
func (r *Registry) WitnessedByCount(id witness.EntityID) int {
	rec, ok := r.lookup(id)
	if !ok {
		return 0
	}
	return len(rec.witnessed)
}
