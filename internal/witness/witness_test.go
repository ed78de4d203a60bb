package witness

import (
	"testing"

	"go.uber.org/zap"

	"github.com/whalecell/witness/internal/core/system"
)

type recordingChannel struct {
	queued   int
	enqueued [][]byte
	flushes  int
}

func (c *recordingChannel) QueuedBytes() int { return c.queued }
func (c *recordingChannel) Enqueue(b []byte) { c.enqueued = append(c.enqueued, append([]byte(nil), b...)) }
func (c *recordingChannel) Flush() error     { c.flushes++; return nil }

type recordingMailbox struct {
	ch    *recordingChannel
	mails [][]byte
}

func (m *recordingMailbox) Channel() Channel { return m.ch }
func (m *recordingMailbox) PostMail(b []byte) {
	m.mails = append(m.mails, append([]byte(nil), b...))
}

type witnessFakeHandle struct {
	fakeHandle
	mailbox          *recordingMailbox
	witnessedByAdds  []EntityID
	witnessedByRemoves []EntityID
}

func (f *witnessFakeHandle) AddWitnessedBy(id EntityID)    { f.witnessedByAdds = append(f.witnessedByAdds, id) }
func (f *witnessFakeHandle) RemoveWitnessedBy(id EntityID) { f.witnessedByRemoves = append(f.witnessedByRemoves, id) }
func (f *witnessFakeHandle) Mailbox() Mailbox {
	if f.mailbox == nil {
		return nil
	}
	return f.mailbox
}

func newTestCore(lookup EntityLookup) (*WitnessCore, *tickSourceStub) {
	ticks := &tickSourceStub{}
	cfg := Config{
		CoordinateSystemEnabled: true,
		DefaultAoiRadius:        20,
		DefaultAoiHysteresis:    2,
		GhostDistance:           120,
		AliasIDsEnabled:         true,
		PacketMaxSizeTCP:        1400,
	}
	core := NewWitnessCore(cfg, ticks, zap.NewNop(), lookup, system.NewRunner(), nil)
	return core, ticks
}

type tickSourceStub struct{ n uint64 }

func (t *tickSourceStub) Tick() uint64 { return t.n }

func TestWitnessCoreAttachTwiceFails(t *testing.T) {
	core, _ := newTestCore(newFakeLookup())
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}}

	if err := core.Attach(viewer); err != nil {
		t.Fatalf("first attach should succeed, got %v", err)
	}
	if err := core.Attach(viewer); err == nil {
		t.Fatal("second attach while already attached should fail")
	}
}

func TestWitnessCoreDetachWrongViewerPanics(t *testing.T) {
	core, _ := newTestCore(newFakeLookup())
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}}
	other := &witnessFakeHandle{fakeHandle: fakeHandle{id: 2}}

	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("detach with mismatched viewer should panic")
		}
	}()
	core.Detach(other)
}

func TestWitnessCoreUpdateAfterDetachDoesNotPanic(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}}

	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	core.Detach(viewer)

	// a witness detached from an empty membership set should not panic on
	// a subsequent Update should the caller mistakenly still tick it.
	core.Update(0)
}

func TestWitnessCoreEnterThenLeaveSameTickCollapsesSilently(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	target := &witnessFakeHandle{fakeHandle: fakeHandle{id: 2}}
	lookup.put(target)

	core.onEnterAOI(target)
	core.onLeaveAOI(target)

	if core.membership.Len() != 0 {
		t.Fatalf("entity that entered and left before emission should collapse to nothing, membership len=%d", core.membership.Len())
	}
	if len(target.witnessedByRemoves) != 1 {
		t.Fatalf("target should still have had RemoveWitnessedBy called once even on silent collapse, got %d", len(target.witnessedByRemoves))
	}
}

func TestWitnessCoreLeaveAfterEnterEmittedSetsLeavePending(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	target := &witnessFakeHandle{fakeHandle: fakeHandle{id: 2}}
	lookup.put(target)

	core.onEnterAOI(target)
	ref, ok := core.membership.FindByID(target.ID())
	if !ok {
		t.Fatal("target should be in membership after onEnterAOI")
	}
	ref.clearFlag(EnterPending) // simulate the enter frame having already been emitted

	core.onLeaveAOI(target)

	ref, ok = core.membership.FindByID(target.ID())
	if !ok {
		t.Fatal("an already-announced entity should stay in membership as LEAVE_PENDING, not be removed outright")
	}
	if !ref.isLeavePending() {
		t.Fatal("want LEAVE_PENDING set")
	}
}

func TestWitnessCoreUpdateNoopsWithoutMailbox(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}} // no mailbox
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	// should not panic even though the viewer has no transport
	core.Update(0)
}

func TestWitnessCoreUpdateEmitsEnterFrameForPendingEntity(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)

	ch := &recordingChannel{}
	mb := &recordingMailbox{ch: ch}
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}, mailbox: mb}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	target := &witnessFakeHandle{fakeHandle: fakeHandle{id: 2, pos: Vec3{1, 0, 1}}}
	lookup.put(target)
	core.onEnterAOI(target)

	core.Update(0)

	if len(ch.enqueued) != 1 {
		t.Fatalf("want exactly one enqueued bundle for the tick, got %d", len(ch.enqueued))
	}
	if ch.flushes != 1 {
		t.Fatalf("want channel flushed once per update, got %d", ch.flushes)
	}
	ref, ok := core.membership.FindByID(target.ID())
	if !ok {
		t.Fatal("target should remain in membership after its enter frame is emitted")
	}
	if ref.isEnterPending() {
		t.Fatal("ENTER_PENDING should be cleared after the enter frame is emitted")
	}
}

func TestWitnessCoreUpdateSkipsEmissionWhenBudgetExhausted(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)

	ch := &recordingChannel{queued: core.cfg.PacketMaxSizeTCP + 1}
	mb := &recordingMailbox{ch: ch}
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1}, mailbox: mb}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	target := &witnessFakeHandle{fakeHandle: fakeHandle{id: 2}}
	lookup.put(target)
	core.onEnterAOI(target)

	core.Update(0)

	if len(ch.enqueued) != 0 {
		t.Fatalf("want no new bundle enqueued when the channel is already over budget, got %d", len(ch.enqueued))
	}
	if ch.flushes != 1 {
		t.Fatalf("want a flush attempt even when skipping emission, got %d", ch.flushes)
	}
	ref, ok := core.membership.FindByID(target.ID())
	if !ok || !ref.isEnterPending() {
		t.Fatal("target's ENTER_PENDING state should be untouched so it can be retried next tick")
	}
}

func TestAddBasePosToStreamFirstCallAlwaysEmitsXYZ(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1, pos: Vec3{1, 2, 3}}}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	send := acquireSendBundle()
	defer releaseSendBundle(send)

	core.addBasePosToStream(send)

	if send.Len() == 0 {
		t.Fatal("first base-pos emission should never be suppressed")
	}
	if send.Len() != packedXYZLen+1 {
		t.Fatalf("want an opcode byte plus an XYZ-packed payload (%d bytes), got %d", packedXYZLen+1, send.Len())
	}
	if !core.hasBasePos {
		t.Fatal("hasBasePos should be set after the first emission")
	}
	if core.lastBasePos != viewer.pos {
		t.Fatalf("lastBasePos should track the emitted position, got %v want %v", core.lastBasePos, viewer.pos)
	}
}

func TestAddBasePosToStreamSuppressedBelowThreshold(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1, pos: Vec3{1, 2, 3}}}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	send := acquireSendBundle()
	defer releaseSendBundle(send)
	core.addBasePosToStream(send)
	firstLen := send.Len()

	// position unchanged: second call on the same tick's worth of movement
	// should add nothing more to the stream.
	core.addBasePosToStream(send)

	if send.Len() != firstLen {
		t.Fatalf("unchanged position should not grow the stream, before=%d after=%d", firstLen, send.Len())
	}
}

func TestAddBasePosToStreamUsesXZWhenOnlyHorizontalMotion(t *testing.T) {
	lookup := newFakeLookup()
	core, _ := newTestCore(lookup)
	viewer := &witnessFakeHandle{fakeHandle: fakeHandle{id: 1, pos: Vec3{0, 5, 0}}}
	if err := core.Attach(viewer); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	send := acquireSendBundle()
	defer releaseSendBundle(send)
	core.addBasePosToStream(send) // establishes baseline at y=5
	baseline := send.Len()

	viewer.pos = Vec3{10, 5, 10} // y unchanged, xz moved well past threshold
	core.addBasePosToStream(send)

	if send.Len() == baseline {
		t.Fatal("want a new base-pos frame appended for the xz movement")
	}
	if send.Len()-baseline != packedXZLen+1 {
		t.Fatalf("want an opcode byte plus an XZ-packed payload (%d bytes), got %d", packedXZLen+1, send.Len()-baseline)
	}
}
