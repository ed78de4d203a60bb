package witness

// stalenessTicks is how recently a position/direction must have changed for
// it to still be worth replicating as a volatile delta (spec §4.3, §6).
const stalenessTicks = 5

// DeltaEncoder computes the volatile relative-position and orientation
// delta for one (viewer, target) pair and writes it into a forward-bundle,
// grounded line-for-line on witness.cpp::addEntityVolatileDataToStream.
type DeltaEncoder struct{}

// Encode writes target's volatile delta relative to viewer into w and
// returns the UpdateFlag combination written, which the caller uses to pick
// the outer message identity via messageFor.
func (DeltaEncoder) Encode(w *BundleWriter, viewerPos Vec3, now uint64, target EntityHandle) UpdateFlag {
	flags := FlagNull
	vi := target.VolatileInfo()

	if vi.ReplicatesPosition() && now-target.PosChangedTick() < stalenessTicks {
		relative := target.Position().Sub(viewerPos)
		w.WritePackXZ(relative)
		if !target.OnGround() {
			w.WritePackY(relative)
			flags |= FlagXYZ
		} else {
			flags |= FlagXZ
		}
	}

	if now-target.DirChangedTick() < stalenessTicks {
		dir := target.Direction()
		switch {
		case vi.ReplicatesYaw() && vi.ReplicatesPitch() && vi.ReplicatesRoll():
			w.WriteI8(angle2int8(dir.Yaw))
			w.WriteI8(angle2int8(dir.Pitch))
			w.WriteI8(angle2int8(dir.Roll))
			flags |= FlagYawPitchRoll
		case vi.ReplicatesRoll() && vi.ReplicatesPitch():
			w.WriteI8(angle2int8(dir.Pitch))
			w.WriteI8(angle2int8(dir.Roll))
			flags |= FlagPitchRoll
		case vi.ReplicatesYaw() && vi.ReplicatesPitch():
			w.WriteI8(angle2int8(dir.Yaw))
			w.WriteI8(angle2int8(dir.Pitch))
			flags |= FlagYawPitch
		case vi.ReplicatesYaw() && vi.ReplicatesRoll():
			w.WriteI8(angle2int8(dir.Yaw))
			w.WriteI8(angle2int8(dir.Roll))
			flags |= FlagYawRoll
		case vi.ReplicatesYaw():
			w.WriteI8(angle2int8(dir.Yaw))
			flags |= FlagYaw
		case vi.ReplicatesRoll():
			w.WriteI8(angle2int8(dir.Roll))
			flags |= FlagRoll
		case vi.ReplicatesPitch():
			w.WriteI8(angle2int8(dir.Pitch))
			flags |= FlagPitch
		}
	}

	return flags
}
