package witness

// RefFlags is the per-ref pending-state bitmask. ENTER and LEAVE are
// mutually exclusive at any observable moment (invariant I2/I3, spec §3).
type RefFlags uint8

const (
	EnterPending RefFlags = 1 << iota
	LeavePending
)

func (f RefFlags) has(bit RefFlags) bool { return f&bit != 0 }

// EntityRef is a membership record: a weak, non-owning reference to a
// target plus its replication pending-state. Owned exclusively by the
// AOIMembership it lives in (spec §3).
type EntityRef struct {
	id     EntityID
	handle EntityHandle // nil once LeavePending clears it
	flags  RefFlags
}

func newEntityRef(h EntityHandle) *EntityRef {
	return &EntityRef{id: h.ID(), handle: h, flags: EnterPending}
}

func (r *EntityRef) ID() EntityID        { return r.id }
func (r *EntityRef) Handle() EntityHandle { return r.handle }
func (r *EntityRef) Flags() RefFlags     { return r.flags }

func (r *EntityRef) setFlag(f RefFlags)   { r.flags |= f }
func (r *EntityRef) clearFlag(f RefFlags) { r.flags &^= f }

func (r *EntityRef) isEnterPending() bool { return r.flags.has(EnterPending) }
func (r *EntityRef) isLeavePending() bool { return r.flags.has(LeavePending) }
