// Package witness implements the per-entity Area-of-Interest replicator:
// the component that walks a viewer's membership set every tick and encodes
// enter/leave/delta updates into that viewer's outbound packet stream under
// a hard per-tick size budget.
package witness

import (
	"github.com/go-gl/mathgl/mgl32"
)

// EntityID is the permanent, stable identity of a replicated entity. It
// survives destruction of the live handle — EntityRef keeps it around so a
// deferred leave message can still name the entity that's gone.
type EntityID uint32

// Vec3 is a position or position-delta in world space.
type Vec3 = mgl32.Vec3

// Direction holds the three replicated orientation angles, in radians.
type Direction struct {
	Yaw, Pitch, Roll float32
}

// VolatileInfo carries the per-field replication thresholds for an entity's
// script type. A field above zero means "replicate this field when it
// changed recently"; the exact threshold value is not consulted by the
// witness, only its sign (see DeltaEncoder).
type VolatileInfo struct {
	Position float32
	Yaw      float32
	Pitch    float32
	Roll     float32
}

// Replicates reports whether the field is active for volatile replication.
func (v VolatileInfo) ReplicatesPosition() bool { return v.Position > 0 }
func (v VolatileInfo) ReplicatesYaw() bool       { return v.Yaw > 0 }
func (v VolatileInfo) ReplicatesPitch() bool     { return v.Pitch > 0 }
func (v VolatileInfo) ReplicatesRoll() bool      { return v.Roll > 0 }

// EntityHandle is the live, non-owning reference to a replicated entity.
// Witness never owns the entity it witnesses — the registry behind
// EntityLookup is the single lifetime root (spec §9's cyclic-reference note).
type EntityHandle interface {
	ID() EntityID
	Position() Vec3
	Direction() Direction
	OnGround() bool
	ScriptTypeID() uint16
	PosChangedTick() uint64
	DirChangedTick() uint64
	VolatileInfo() VolatileInfo

	// AddWitnessedBy/RemoveWitnessedBy maintain the target's side of the
	// witnessed-by relation (invariant I1 in spec §3).
	AddWitnessedBy(viewer EntityID)
	RemoveWitnessedBy(viewer EntityID)

	// WriteProperties appends this entity's position+direction (and, for a
	// viewer's own onEnterSpace frame, absolute=true) to w.
	WriteProperties(w *BundleWriter, absolute bool)
	// WriteClientData appends any additional per-client payload (equipment,
	// title, etc. in a full implementation) that rides along with
	// onUpdatePropertys on first sight.
	WriteClientData(w *BundleWriter, forOwnClient bool)

	Mailbox() Mailbox
}

// Mailbox resolves an entity to its client transport.
type Mailbox interface {
	Channel() Channel
	PostMail(bundle []byte)
}

// Channel is the external outbound-bundle queue a witness pushes frames
// onto. QueuedBytes reflects real backlog (including anything the transport
// hasn't flushed to the socket yet), so packet-budget math accounts for
// actual backpressure, not just this tick's production.
type Channel interface {
	QueuedBytes() int
	Enqueue(bundle []byte)
	Flush() error
}

// EntityLookup resolves an EntityID to its live handle. Implemented by the
// entity registry, which is an external collaborator referenced only by
// this interface (spec §1 scope, §6).
type EntityLookup interface {
	Find(id EntityID) (EntityHandle, bool)
}
