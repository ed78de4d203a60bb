package witness

import (
	"testing"

	"github.com/whalecell/witness/internal/net/packet"
)

type deltaFakeHandle struct {
	fakeHandle
	dir        Direction
	onGround   bool
	volatile   VolatileInfo
	posTick    uint64
	dirTick    uint64
}

func (f *deltaFakeHandle) Direction() Direction      { return f.dir }
func (f *deltaFakeHandle) OnGround() bool            { return f.onGround }
func (f *deltaFakeHandle) VolatileInfo() VolatileInfo { return f.volatile }
func (f *deltaFakeHandle) PosChangedTick() uint64    { return f.posTick }
func (f *deltaFakeHandle) DirChangedTick() uint64    { return f.dirTick }

func TestDeltaEncoderNullWhenNothingFresh(t *testing.T) {
	target := &deltaFakeHandle{
		fakeHandle: fakeHandle{id: 1, pos: Vec3{10, 0, 10}},
		volatile:   VolatileInfo{Position: 1, Yaw: 1},
		posTick:    0,
		dirTick:    0,
	}

	var enc DeltaEncoder
	w := &BundleWriter{Writer: packet.NewWriter()}
	flags := enc.Encode(w, Vec3{0, 0, 0}, stalenessTicks+1, target)

	if flags != FlagNull {
		t.Fatalf("want FlagNull when both pos and dir are stale, got %v", flags)
	}
}

func TestDeltaEncoderGroundedPositionUsesXZ(t *testing.T) {
	target := &deltaFakeHandle{
		fakeHandle: fakeHandle{id: 1, pos: Vec3{10, 0, 10}},
		onGround:   true,
		volatile:   VolatileInfo{Position: 1},
		posTick:    5,
		dirTick:    0,
	}

	var enc DeltaEncoder
	w := &BundleWriter{Writer: packet.NewWriter()}
	flags := enc.Encode(w, Vec3{0, 0, 0}, 5, target)

	if flags != FlagXZ {
		t.Fatalf("want FlagXZ for a grounded position delta, got %v", flags)
	}
	if w.Len() != packedXZLen {
		t.Fatalf("want %d bytes written for XZ delta, got %d", packedXZLen, w.Len())
	}
}

func TestDeltaEncoderAirborneUsesXYZ(t *testing.T) {
	target := &deltaFakeHandle{
		fakeHandle: fakeHandle{id: 1, pos: Vec3{10, 5, 10}},
		onGround:   false,
		volatile:   VolatileInfo{Position: 1},
		posTick:    5,
		dirTick:    0,
	}

	var enc DeltaEncoder
	w := &BundleWriter{Writer: packet.NewWriter()}
	flags := enc.Encode(w, Vec3{0, 0, 0}, 5, target)

	if flags != FlagXYZ {
		t.Fatalf("want FlagXYZ for an airborne position delta, got %v", flags)
	}
	if w.Len() != packedXZLen+packedYLen {
		t.Fatalf("want %d bytes written for XYZ delta, got %d", packedXZLen+packedYLen, w.Len())
	}
}

func TestDeltaEncoderFullOrientationCombinesFlags(t *testing.T) {
	target := &deltaFakeHandle{
		fakeHandle: fakeHandle{id: 1},
		volatile:   VolatileInfo{Yaw: 1, Pitch: 1, Roll: 1},
		dirTick:    5,
	}

	var enc DeltaEncoder
	w := &BundleWriter{Writer: packet.NewWriter()}
	flags := enc.Encode(w, Vec3{0, 0, 0}, 5, target)

	if flags != FlagYawPitchRoll {
		t.Fatalf("want FlagYawPitchRoll when all three orientation fields are volatile, got %v", flags)
	}
	if w.Len() != 3*packedAngLen {
		t.Fatalf("want 3 bytes written for yaw+pitch+roll, got %d", w.Len())
	}

	// every combination DeltaEncoder can produce must resolve through the
	// dense lookup table without panicking
	_ = messageFor(flags)
}

func TestMessageTableCoversAllDeltaEncoderOutputs(t *testing.T) {
	combos := []UpdateFlag{
		FlagNull, FlagXZ, FlagXYZ, FlagYaw, FlagPitch, FlagRoll,
		FlagYawPitch, FlagYawRoll, FlagPitchRoll, FlagYawPitchRoll,
		FlagXZ | FlagYaw, FlagXZ | FlagPitch, FlagXZ | FlagRoll,
		FlagXZ | FlagYawRoll, FlagXZ | FlagYawPitch, FlagXZ | FlagPitchRoll, FlagXZ | FlagYawPitchRoll,
		FlagXYZ | FlagYaw, FlagXYZ | FlagPitch, FlagXYZ | FlagRoll,
		FlagXYZ | FlagYawRoll, FlagXYZ | FlagYawPitch, FlagXYZ | FlagPitchRoll, FlagXYZ | FlagYawPitchRoll,
	}
	if len(combos) != 24 {
		t.Fatalf("test lists %d combinations, want 24", len(combos))
	}
	for _, flags := range combos {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("messageFor(%v) panicked: %v", flags, r)
				}
			}()
			messageFor(flags)
		}()
	}
}

func TestMessageForPanicsOnIllegalFlags(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("want panic for an illegal flag combination outside the 24 legal entries")
		}
	}()
	messageFor(FlagXZ | FlagXYZ)
}
