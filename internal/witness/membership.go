package witness

// AOIMembership is the ordered set of a witness's EntityRefs. Order is
// insertion order and defines alias assignment: the i-th element holds
// alias i (spec §3). There are never two refs with the same id.
type AOIMembership struct {
	order []*EntityRef
	byID  map[EntityID]int // id -> index into order
}

func newAOIMembership() *AOIMembership {
	return &AOIMembership{
		byID: make(map[EntityID]int, 64),
	}
}

// Len returns the current membership size.
func (m *AOIMembership) Len() int { return len(m.order) }

// FindByID returns the ref for id, if present.
func (m *AOIMembership) FindByID(id EntityID) (*EntityRef, bool) {
	idx, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return m.order[idx], true
}

// FindByHandle returns the ref currently holding this live handle, if any.
// A ref whose handle was cleared by a pending leave is not found this way.
func (m *AOIMembership) FindByHandle(h EntityHandle) (*EntityRef, bool) {
	ref, ok := m.FindByID(h.ID())
	if !ok || ref.handle == nil {
		return nil, false
	}
	return ref, true
}

// Append adds a brand-new ref to the back of the membership order. Callers
// must have already verified there is no existing ref for this id.
func (m *AOIMembership) Append(ref *EntityRef) {
	m.byID[ref.id] = len(m.order)
	m.order = append(m.order, ref)
}

// AliasOf returns the alias (insertion index) of id within the current
// membership, and whether id is a member at all.
func (m *AOIMembership) AliasOf(id EntityID) (uint8, bool) {
	idx, ok := m.byID[id]
	if !ok || idx > 255 {
		return 0, false
	}
	return uint8(idx), true
}

// remove deletes the ref at position idx, shifting subsequent aliases down
// by one (spec §3: "alias IDs are only stable within a single tick frame").
func (m *AOIMembership) remove(idx int) {
	removed := m.order[idx]
	delete(m.byID, removed.id)
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	for i := idx; i < len(m.order); i++ {
		m.byID[m.order[i].id] = i
	}
}

// RemoveByID removes the ref for id, if present.
func (m *AOIMembership) RemoveByID(id EntityID) {
	if idx, ok := m.byID[id]; ok {
		m.remove(idx)
	}
}

// Each walks the membership front-to-back (FIFO traversal order, spec §4.6),
// letting fn request removal of the current ref by returning remove=true.
// fn must not mutate the slice directly.
func (m *AOIMembership) Each(fn func(ref *EntityRef) (remove bool, stop bool)) {
	for i := 0; i < len(m.order); {
		ref := m.order[i]
		remove, stop := fn(ref)
		if remove {
			m.remove(i)
			if stop {
				return
			}
			continue
		}
		if stop {
			return
		}
		i++
	}
}

// Clear empties the membership, used by detach().
func (m *AOIMembership) Clear() {
	m.order = nil
	m.byID = make(map[EntityID]int, 64)
}

// Snapshot returns the current refs in order, for read-only inspection
// (tests, metrics).
func (m *AOIMembership) Snapshot() []*EntityRef {
	out := make([]*EntityRef, len(m.order))
	copy(out, m.order)
	return out
}
