package witness

import "testing"

type fakeHandle struct {
	id  EntityID
	pos Vec3
}

func (f *fakeHandle) ID() EntityID                 { return f.id }
func (f *fakeHandle) Position() Vec3               { return f.pos }
func (f *fakeHandle) Direction() Direction         { return Direction{} }
func (f *fakeHandle) OnGround() bool                { return true }
func (f *fakeHandle) ScriptTypeID() uint16          { return 1 }
func (f *fakeHandle) PosChangedTick() uint64        { return 0 }
func (f *fakeHandle) DirChangedTick() uint64        { return 0 }
func (f *fakeHandle) VolatileInfo() VolatileInfo    { return VolatileInfo{} }
func (f *fakeHandle) AddWitnessedBy(EntityID)       {}
func (f *fakeHandle) RemoveWitnessedBy(EntityID)    {}
func (f *fakeHandle) WriteProperties(*BundleWriter, bool)    {}
func (f *fakeHandle) WriteClientData(*BundleWriter, bool)    {}
func (f *fakeHandle) Mailbox() Mailbox                       { return nil }

func TestAOIMembershipAliasAssignment(t *testing.T) {
	m := newAOIMembership()
	for i := 0; i < 5; i++ {
		m.Append(newEntityRef(&fakeHandle{id: EntityID(i + 1)}))
	}

	for i := 0; i < 5; i++ {
		alias, ok := m.AliasOf(EntityID(i + 1))
		if !ok || alias != uint8(i) {
			t.Fatalf("id %d: want alias %d, got %d (ok=%v)", i+1, i, alias, ok)
		}
	}
}

func TestAOIMembershipRemoveShiftsAliases(t *testing.T) {
	m := newAOIMembership()
	for i := 0; i < 4; i++ {
		m.Append(newEntityRef(&fakeHandle{id: EntityID(i + 1)}))
	}

	m.RemoveByID(EntityID(2))

	if _, ok := m.FindByID(EntityID(2)); ok {
		t.Fatal("removed id still present")
	}
	alias, ok := m.AliasOf(EntityID(3))
	if !ok || alias != 1 {
		t.Fatalf("id 3 should shift to alias 1 after removing id 2, got %d (ok=%v)", alias, ok)
	}
	alias, ok = m.AliasOf(EntityID(4))
	if !ok || alias != 2 {
		t.Fatalf("id 4 should shift to alias 2 after removing id 2, got %d (ok=%v)", alias, ok)
	}
}

func TestAOIMembershipEachRemoveDuringWalk(t *testing.T) {
	m := newAOIMembership()
	for i := 0; i < 5; i++ {
		m.Append(newEntityRef(&fakeHandle{id: EntityID(i + 1)}))
	}

	var visited []EntityID
	m.Each(func(ref *EntityRef) (remove bool, stop bool) {
		visited = append(visited, ref.ID())
		return ref.ID()%2 == 0, false
	})

	if m.Len() != 3 {
		t.Fatalf("want 3 remaining after removing evens, got %d", m.Len())
	}
	if len(visited) != 5 {
		t.Fatalf("want all 5 visited exactly once, got %d", len(visited))
	}
	for _, id := range []EntityID{2, 4} {
		if _, ok := m.FindByID(id); ok {
			t.Fatalf("id %d should have been removed", id)
		}
	}
	for _, id := range []EntityID{1, 3, 5} {
		if _, ok := m.FindByID(id); !ok {
			t.Fatalf("id %d should still be present", id)
		}
	}
}

func TestEntityRefPendingStateIsExclusive(t *testing.T) {
	ref := newEntityRef(&fakeHandle{id: 1})
	if !ref.isEnterPending() {
		t.Fatal("new ref should start ENTER_PENDING")
	}
	if ref.isLeavePending() {
		t.Fatal("new ref should not start LEAVE_PENDING")
	}

	ref.clearFlag(EnterPending)
	ref.setFlag(LeavePending)
	if ref.isEnterPending() {
		t.Fatal("ENTER_PENDING should have been cleared")
	}
	if !ref.isLeavePending() {
		t.Fatal("LEAVE_PENDING should now be set")
	}
}
