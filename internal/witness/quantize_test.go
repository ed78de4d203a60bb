package witness

import (
	"math"
	"testing"
)

func TestAngle2Int8RoundTripWithinTolerance(t *testing.T) {
	const tolerance = float32(math.Pi / 128) // one quantization step

	cases := []float32{0, 1, -1, math.Pi / 2, -math.Pi / 2, 3, -3}
	for _, angle := range cases {
		q := angle2int8(angle)
		back := int82angle(q)
		diff := back - angle
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Errorf("angle2int8(%v) round-trips to %v, diff %v exceeds tolerance %v", angle, back, diff, tolerance)
		}
	}
}

func TestAngle2Int8ClampsAtExactlyPi(t *testing.T) {
	// angle/pi*128 evaluates to exactly 128 at angle==pi, one past int8's
	// max; this must clamp to 127 rather than overflow.
	if got := angle2int8(math.Pi); got != 127 {
		t.Fatalf("want clamp to 127 at angle==pi, got %d", got)
	}
}

func TestAngle2Int8WrapsOutOfRangeAngles(t *testing.T) {
	// 3*pi wraps to pi via the normalization loop; result must stay in range.
	q := angle2int8(3 * math.Pi)
	if q < -128 || q > 127 {
		t.Fatalf("angle2int8 produced out-of-range byte %d", q)
	}
}

func TestPackFixed16ClampsToInt16Range(t *testing.T) {
	if got := packFixed16(1e6); got != 32767 {
		t.Fatalf("want clamp to 32767 for large positive value, got %d", got)
	}
	if got := packFixed16(-1e6); got != -32768 {
		t.Fatalf("want clamp to -32768 for large negative value, got %d", got)
	}
}

func TestPackFixed16RoundTrip(t *testing.T) {
	v := float32(12.5)
	got := unpackFixed16(packFixed16(v))
	diff := got - v
	if diff < 0 {
		diff = -diff
	}
	if diff > 1.0/positionScale {
		t.Fatalf("packFixed16 round trip error %v exceeds one quantization step", diff)
	}
}
