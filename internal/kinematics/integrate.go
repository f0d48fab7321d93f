package kinematics

import "math"

// Integrate advances speed v under constant acceleration a for dt seconds,
// holding speed inside [0, vmax]. The distance is exact: when the speed hits a
// bound part way through the step, the step is split at that instant and the
// remainder is spent at the bound.
// Returns (distance travelled, new speed).
func Integrate(v, a, vmax, dt float64) (dist, newV float64) {
	if dt <= 0 {
		return 0, clamp(v, 0, vmax)
	}
	v = clamp(v, 0, vmax)

	switch {
	case a > 0:
		if v >= vmax {
			return vmax * dt, vmax
		}
		tToMax := (vmax - v) / a
		if tToMax <= dt {
			// Reaches vmax mid-step: accelerate, then cruise for the remainder.
			s1 := v*tToMax + 0.5*a*tToMax*tToMax
			return s1 + vmax*(dt-tToMax), vmax
		}
		return v*dt + 0.5*a*dt*dt, v + a*dt

	case a < 0:
		tToStop := v / -a
		if tToStop <= dt {
			// Stops mid-step and stays stopped.
			return BrakingDistance(v, -a), 0
		}
		return math.Max(0, v*dt+0.5*a*dt*dt), v + a*dt

	default:
		return v * dt, v
	}
}

// BrakingDistance returns the distance needed to stop from v at deceleration
// decel (positive). A non-positive decel can never stop.
func BrakingDistance(v, decel float64) float64 {
	if v <= 0 {
		return 0
	}
	if decel <= 0 {
		return math.Inf(1)
	}
	return v * v / (2 * decel)
}

// SpeedCeiling returns min(vmax, sqrt(2·decel·remaining)): the highest speed
// from which braking at decel still stops within remaining metres.
func SpeedCeiling(remaining, vmax, decel float64) float64 {
	if remaining <= 0 || decel <= 0 {
		return 0
	}
	return math.Min(vmax, math.Sqrt(2*decel*remaining))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
