package sections

import "math"

// Mapping turns a raw metric into a score in [0,1].
type Mapping func(float64) float64

// Linear maps lo..hi onto 0..1, clipped at both ends.
func Linear(lo, hi float64) Mapping {
	return func(x float64) float64 {
		if hi == lo {
			if x >= hi {
				return 1
			}
			return 0
		}
		return unit((x - lo) / (hi - lo))
	}
}

// Inverse maps lo..hi onto 1..0, clipped at both ends.
func Inverse(lo, hi float64) Mapping {
	l := Linear(lo, hi)
	return func(x float64) float64 { return 1 - l(x) }
}

// Point is one anchor of a breakpoint table.
type Point struct {
	X, Y float64
}

// Breakpoints interpolates linearly between anchors sorted by X.
// Inputs outside the table take the nearest end value.
func Breakpoints(points ...Point) Mapping {
	return func(x float64) float64 {
		if len(points) == 0 {
			return 0.5
		}
		if x <= points[0].X {
			return unit(points[0].Y)
		}
		for i := 1; i < len(points); i++ {
			if x <= points[i].X {
				a, b := points[i-1], points[i]
				return unit(a.Y + (x-a.X)*(b.Y-a.Y)/(b.X-a.X))
			}
		}
		return unit(points[len(points)-1].Y)
	}
}

// Flag scores a boolean signal: good when it equals want.
func Flag(want bool) Mapping {
	return func(x float64) float64 {
		if (x >= 0.5) == want {
			return 1
		}
		return 0
	}
}

func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
