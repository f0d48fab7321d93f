// Package kinematics integrates acceleration-limited motion along a line.
//
// All distances are in metres, speeds in m/s, accelerations in m/s² and times
// in seconds. Speed never leaves the range [0, MaxSpeed]: a train does not
// reverse, so a negative acceleration is braking.
package kinematics

import (
	"fmt"
	"math"
)

// Profile is the traction and braking envelope of a vehicle.
type Profile struct {
	MaxSpeed        float64 `json:"max_speed" yaml:"max_speed"`
	MaxAcceleration float64 `json:"max_acceleration" yaml:"max_acceleration"`
	MaxDeceleration float64 `json:"max_deceleration" yaml:"max_deceleration"` // positive
}

// Validate reports a profile that cannot move or cannot stop.
func (p Profile) Validate() error {
	if p.MaxSpeed <= 0 {
		return fmt.Errorf("max speed must be positive, got %v", p.MaxSpeed)
	}
	if p.MaxAcceleration <= 0 {
		return fmt.Errorf("max acceleration must be positive, got %v", p.MaxAcceleration)
	}
	if p.MaxDeceleration <= 0 {
		return fmt.Errorf("max deceleration must be positive, got %v", p.MaxDeceleration)
	}
	return nil
}

// Clamp limits a commanded acceleration to the profile's envelope.
func (p Profile) Clamp(a float64) float64 {
	return math.Max(-p.MaxDeceleration, math.Min(p.MaxAcceleration, a))
}

// Step applies acceleration a for dt seconds from speed v.
// Returns (distance travelled, new speed).
func (p Profile) Step(v, a, dt float64) (dist, newV float64) {
	return Integrate(v, p.Clamp(a), p.MaxSpeed, dt)
}

// BrakingDistance returns the distance needed to stop from v at full service braking.
func (p Profile) BrakingDistance(v float64) float64 {
	return BrakingDistance(v, p.MaxDeceleration)
}

// SpeedCeiling returns the highest speed from which the vehicle can still
// stop within remaining metres, capped at MaxSpeed.
func (p Profile) SpeedCeiling(remaining float64) float64 {
	return SpeedCeiling(remaining, p.MaxSpeed, p.MaxDeceleration)
}
