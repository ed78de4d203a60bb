package witness

// Packed position encoding is explicitly out of scope for this component
// (spec §1: "serialization primitives for packed XYZ and angle quantization"
// are an external collaborator, referenced only by interface). DeltaEncoder
// and addBasePosToStream still need a concrete, deterministic byte length to
// do packet-budget math against, so this file provides a minimal fixed-point
// stand-in rather than reaching into a wire-message catalog this spec
// deliberately excludes (SPEC_FULL.md §4).

// positionScale converts world units to 1/256-unit fixed point, matching
// the precision a client-visible position delta needs without floating
// point's 4 bytes per component.
const positionScale = 256

func packFixed16(v float32) int16 {
	scaled := v * positionScale
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}

func unpackFixed16(v int16) float32 {
	return float32(v) / positionScale
}

// WritePackXZ appends the X and Z components of a position as 1/256-unit
// fixed-point int16s. Used for ground-level relative position deltas and for
// the XZ base-position update.
func (b *BundleWriter) WritePackXZ(v Vec3) {
	b.WriteI16(packFixed16(v.X()))
	b.WriteI16(packFixed16(v.Z()))
}

// WritePackY appends the Y component only, used when XZ has already been
// written and the entity is airborne (spec §4.3).
func (b *BundleWriter) WritePackY(v Vec3) {
	b.WriteI16(packFixed16(v.Y()))
}

// WritePackXYZ appends all three components, used for the absolute
// base-position update (spec §4.7).
func (b *BundleWriter) WritePackXYZ(v Vec3) {
	b.WriteI16(packFixed16(v.X()))
	b.WriteI16(packFixed16(v.Y()))
	b.WriteI16(packFixed16(v.Z()))
}

const (
	packedXZLen  = 4 // 2 x int16
	packedYLen   = 2
	packedXYZLen = 6
	packedAngLen = 1 // 1 x int8
)
