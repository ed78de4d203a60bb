package witness

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whalecell/witness/internal/core/system"
	"github.com/whalecell/witness/internal/metrics"
	"github.com/whalecell/witness/internal/world"
)

// Config carries the process-wide inputs a WitnessCore needs, threaded in
// at construction rather than read from globals so the core stays testable
// in isolation (spec §9's "Global state" note).
type Config struct {
	CoordinateSystemEnabled bool
	DefaultAoiRadius        float32
	DefaultAoiHysteresis    float32
	GhostDistance           float32
	AliasIDsEnabled         bool
	PacketMaxSizeTCP        int
}

// TickSource supplies the current server tick, the one other process-wide
// input DeltaEncoder needs (spec §9).
type TickSource interface {
	Tick() uint64
}

// OverrunReporter is notified when a tick's aggregate bundle exceeds
// PACKET_MAX_SIZE_TCP, for cross-cell telemetry (spec §7's warn-and-send
// path). Optional — a nil reporter just means no fleet-wide signal.
type OverrunReporter interface {
	PublishOverrun(entityID uint32, overrunSize int, tick uint64)
}

// negInfSentinel is the z-sentinel that forces the very first update() to
// always emit a base-position update (spec §3: "initialised with z =
// -infinity").
const negInfSentinel = float32(-1e30)

const basePosThreshold = 0.0004

// WitnessCore is the per-viewer AOI replicator: it owns the membership set,
// the trigger binding, and the per-tick emission loop. Grounded on the full
// Witness class in witness.cpp.
type WitnessCore struct {
	cfg    Config
	ticks  TickSource
	log    *zap.Logger
	lookup   EntityLookup
	runner   *system.Runner
	reporter OverrunReporter

	viewer        EntityHandle
	aoiRadius     float32
	aoiHysteresis float32
	trigger       *TriggerAdapter

	lastBasePos Vec3
	hasBasePos  bool
	membership  *AOIMembership
	alias       AliasTable
	delta       DeltaEncoder
	attached    bool
	spaceID     int32

	refresh *refreshSystem
}

// refreshSystem runs a witness's trigger diff in an earlier phase than its
// own emission, so Update() walks a membership set that already reflects
// this tick's movement (spec §5's trigger-refresh yield point). A witness
// can't implement two Phase/Update pairs itself, so it registers this
// small adapter alongside itself.
type refreshSystem struct{ w *WitnessCore }

func (r *refreshSystem) Phase() system.Phase  { return system.PhasePreUpdate }
func (r *refreshSystem) Update(_ time.Duration) { r.w.Refresh() }

// NewWitnessCore constructs a detached witness. Call Attach to bind it to a
// viewer. reporter may be nil.
func NewWitnessCore(cfg Config, ticks TickSource, log *zap.Logger, lookup EntityLookup, runner *system.Runner, reporter OverrunReporter) *WitnessCore {
	return &WitnessCore{
		cfg:        cfg,
		ticks:      ticks,
		log:        log,
		lookup:     lookup,
		runner:     runner,
		reporter:   reporter,
		membership: newAOIMembership(),
		alias:      NewAliasTable(cfg.AliasIDsEnabled),
	}
}

// Phase implements system.System: the per-tick emission runs in the output
// phase, after game logic and visibility updates have settled this tick's
// positions (spec §2's data flow: scheduler -> WitnessCore.update()).
func (w *WitnessCore) Phase() system.Phase { return system.PhaseOutput }

// Update implements system.System by delegating to update() (spec §4.6). dt
// is unused — the AOI protocol is tick-indexed, not wall-clock-indexed.
func (w *WitnessCore) Update(_ time.Duration) {
	w.update()
}

// Attach binds viewer to this witness and registers it with the scheduler.
// Fails if already attached (spec §4.1).
func (w *WitnessCore) Attach(viewer EntityHandle) error {
	if w.attached {
		return fmt.Errorf("witness: attach called while already attached to entity %d", w.viewer.ID())
	}
	w.viewer = viewer
	w.hasBasePos = false
	w.lastBasePos = Vec3{0, 0, negInfSentinel}
	w.attached = true

	if w.cfg.CoordinateSystemEnabled {
		w.aoiRadius = w.cfg.DefaultAoiRadius
		w.aoiHysteresis = w.cfg.DefaultAoiHysteresis
	}

	w.refresh = &refreshSystem{w: w}
	w.runner.Register(w)
	w.runner.Register(w.refresh)
	return nil
}

// Detach unbinds viewer. A mismatched viewer is a programmer error (spec
// §7: "Non-matching viewer in detach() -> fatal assertion").
func (w *WitnessCore) Detach(viewer EntityHandle) {
	if !w.attached || w.viewer == nil || w.viewer.ID() != viewer.ID() {
		panic(fmt.Sprintf("witness: detach called for entity %d but attached to a different or no entity", viewer.ID()))
	}

	w.membership.Each(func(ref *EntityRef) (bool, bool) {
		if h := ref.Handle(); h != nil {
			h.RemoveWitnessedBy(w.viewer.ID())
		}
		return true, false
	})

	if w.trigger != nil {
		w.trigger.Uninstall()
		w.trigger = nil
	}

	w.runner.Deregister(w)
	if w.refresh != nil {
		w.runner.Deregister(w.refresh)
		w.refresh = nil
	}
	w.attached = false
	w.viewer = nil
}

// SetAoiRadius applies a new radius/hysteresis pair, clamped against the
// server-wide ghost distance (spec §4.1).
func (w *WitnessCore) SetAoiRadius(radius, hyst float32) {
	if !w.cfg.CoordinateSystemEnabled {
		return
	}
	const margin = 5.0
	if radius+hyst > w.cfg.GhostDistance-margin {
		radius = w.cfg.GhostDistance - margin
		hyst = margin
	}
	w.aoiRadius = radius
	w.aoiHysteresis = hyst

	if radius > 0 && w.trigger != nil {
		w.trigger.SetRadius(radius, hyst)
	}
}

// OnEnterSpace sends the viewer's own enter-world frame and installs its
// trigger against the space's shared grid (spec §4.1).
func (w *WitnessCore) OnEnterSpace(spaceID int32, grid *world.AOIGrid) {
	w.spaceID = spaceID

	if mailbox := w.viewer.Mailbox(); mailbox != nil {
		fb := AcquireBundle(byte(MsgUpdatePropertys))
		w.alias.WriteSelfID(fb, w.membership, w.viewer.ID())
		w.viewer.WriteProperties(fb, true)
		mailbox.PostMail(fb.RawBytes())
		ReleaseBundle(fb)

		fb = AcquireBundle(byte(MsgEntityEnterWorld))
		w.alias.WriteSelfID(fb, w.membership, w.viewer.ID())
		fb.WriteH(w.viewer.ScriptTypeID())
		mailbox.PostMail(fb.RawBytes())
		ReleaseBundle(fb)
	}

	if w.aoiRadius > 0 && grid != nil {
		w.trigger = NewTriggerAdapter(grid, w.lookup, w)
		w.trigger.Install(w.viewer, spaceID, w.aoiRadius, w.aoiHysteresis)
	}
}

// OnLeaveSpace uninstalls the trigger and sends the viewer's own leave-world
// frame (spec §4.1).
func (w *WitnessCore) OnLeaveSpace() {
	if w.trigger != nil {
		w.trigger.Uninstall()
		w.trigger = nil
	}

	if mailbox := w.viewer.Mailbox(); mailbox != nil {
		fb := AcquireBundle(byte(MsgEntityLeaveWorld))
		w.alias.WriteSelfID(fb, w.membership, w.viewer.ID())
		mailbox.PostMail(fb.RawBytes())
		ReleaseBundle(fb)
	}
}

// Refresh re-centers the trigger for this tick, diffing membership and
// firing onEnterAOI/onLeaveAOI as needed. The scheduler calls this in an
// earlier phase than Update so the membership set Update() walks already
// reflects this tick's movement (spec §5's "trigger system's refresh
// between ticks" yield point).
func (w *WitnessCore) Refresh() {
	if w.trigger != nil {
		w.trigger.Refresh()
	}
}

// onEnterAOI implements the AOIReceiver side of the trigger contract
// (spec §4.2).
func (w *WitnessCore) onEnterAOI(target EntityHandle) {
	ref, found := w.membership.FindByID(target.ID())
	if found {
		if ref.isLeavePending() {
			ref.clearFlag(LeavePending)
			ref.handle = target
			target.AddWitnessedBy(w.viewer.ID())
		}
		return
	}

	ref = newEntityRef(target)
	w.membership.Append(ref)
	target.AddWitnessedBy(w.viewer.ID())
}

// onLeaveAOI implements the AOIReceiver side of the trigger contract
// (spec §4.2), including the I4 collapse: an entity that never got past
// ENTER_PENDING before leaving is removed outright with no client message,
// since the client was never told it existed.
func (w *WitnessCore) onLeaveAOI(target EntityHandle) {
	ref, found := w.membership.FindByID(target.ID())
	if !found {
		return
	}

	if ref.isEnterPending() {
		w.membership.RemoveByID(target.ID())
		target.RemoveWitnessedBy(w.viewer.ID())
		return
	}

	ref.setFlag(LeavePending)
	ref.clearFlag(EnterPending)
	target.RemoveWitnessedBy(w.viewer.ID())
	ref.handle = nil
}

// update is the per-tick emission loop (spec §4.6).
func (w *WitnessCore) update() {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	}()

	if !w.attached || w.viewer == nil {
		return
	}
	mailbox := w.viewer.Mailbox()
	if mailbox == nil {
		return
	}
	channel := mailbox.Channel()
	if channel == nil {
		return
	}

	metrics.MembershipSize.Observe(float64(w.membership.Len()))

	remain := w.cfg.PacketMaxSizeTCP - channel.QueuedBytes()
	if remain <= 0 {
		if err := channel.Flush(); err != nil {
			w.log.Error("witness channel flush failed", zap.Uint32("viewer", uint32(w.viewer.ID())), zap.Error(err))
		}
		return
	}

	send := acquireSendBundle()
	defer releaseSendBundle(send)

	w.alias.WriteSelfID(send, w.membership, w.viewer.ID())
	w.addBasePosToStream(send)

	now := w.ticks.Tick()

	w.membership.Each(func(ref *EntityRef) (remove bool, stop bool) {
		if remain <= 0 {
			return false, true
		}
		metrics.EntitiesProcessed.Inc()

		switch {
		case ref.isEnterPending():
			target, ok := w.lookup.Find(ref.ID())
			if !ok {
				return true, false
			}
			ref.clearFlag(EnterPending)

			fb := AcquireBundle(byte(MsgUpdatePropertys))
			w.alias.WriteEntityID(fb, w.membership, ref.ID())
			target.WriteProperties(fb, false)
			target.WriteClientData(fb, false)
			remain -= send.append(fb)
			ReleaseBundle(fb)

			fb = AcquireBundle(byte(MsgEntityEnterWorld))
			w.alias.WriteEntityID(fb, w.membership, ref.ID())
			fb.WriteH(target.ScriptTypeID())
			remain -= send.append(fb)
			ReleaseBundle(fb)
			return false, false

		case ref.isLeavePending():
			ref.clearFlag(LeavePending)

			fb := AcquireBundle(byte(MsgEntityLeaveWorldOptimized))
			w.alias.WriteEntityID(fb, w.membership, ref.ID())
			remain -= send.append(fb)
			ReleaseBundle(fb)
			return true, false

		default:
			if ref.Handle() == nil {
				return true, false
			}
			fb := AcquireBundle(byte(MsgNull))
			flags := w.delta.Encode(fb, w.viewer.Position(), now, ref.Handle())
			if flags == FlagNull {
				ReleaseBundle(fb)
				return false, false
			}
			fb.SetOpcode(byte(messageFor(flags)))
			w.alias.WriteEntityID(fb, w.membership, ref.ID())
			remain -= send.append(fb)
			ReleaseBundle(fb)
			return false, false
		}
	})

	metrics.BudgetUsedBytes.Observe(float64(send.Len()))
	if send.Len() > w.cfg.PacketMaxSizeTCP {
		metrics.BudgetOverruns.Inc()
		w.log.Warn("witness tick bundle exceeded packet budget",
			zap.Uint32("viewer", uint32(w.viewer.ID())),
			zap.Int("size", send.Len()),
			zap.Int("limit", w.cfg.PacketMaxSizeTCP))
		if w.reporter != nil {
			w.reporter.PublishOverrun(uint32(w.viewer.ID()), send.Len()-w.cfg.PacketMaxSizeTCP, now)
		}
	}

	if send.Len() > 0 {
		channel.Enqueue(send.RawBytes())
	}

	if err := channel.Flush(); err != nil {
		w.log.Error("witness channel flush failed", zap.Uint32("viewer", uint32(w.viewer.ID())), zap.Error(err))
	}
}

// addBasePosToStream implements spec §4.7, with the corrected Y-threshold
// semantics: the comparison is made against the position captured before
// last_base_pos is reassigned (see DESIGN.md Open Question 2), not against
// the already-updated value as the original source does.
func (w *WitnessCore) addBasePosToStream(send *sendBundle) {
	pos := w.viewer.Position()
	prev := w.lastBasePos

	if w.hasBasePos && pos.Sub(prev).Len() < basePosThreshold {
		return
	}

	fb := AcquireBundle(byte(MsgNull))
	if !w.hasBasePos || absf(pos.Y()-prev.Y()) > basePosThreshold {
		fb.SetOpcode(byte(MsgUpdateBasePos))
		fb.WritePackXYZ(pos)
	} else {
		fb.SetOpcode(byte(MsgUpdateBasePosXZ))
		fb.WritePackXZ(pos)
	}
	send.append(fb)
	ReleaseBundle(fb)

	w.lastBasePos = pos
	w.hasBasePos = true
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
