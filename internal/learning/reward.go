package learning

// RewardConfig weights the terms of the per-tick reward.
type RewardConfig struct {
	ProgressWeight   float64 `json:"progress_weight" yaml:"progress_weight"`     // per metre closer to the target
	ArrivalBonus     float64 `json:"arrival_bonus" yaml:"arrival_bonus"`         // on reaching the target
	OverspeedPenalty float64 `json:"overspeed_penalty" yaml:"overspeed_penalty"` // when above the braking ceiling
	StallPenalty     float64 `json:"stall_penalty" yaml:"stall_penalty"`         // standing still short of the target
	TickPenalty      float64 `json:"tick_penalty" yaml:"tick_penalty"`           // every tick
}

// DefaultRewardConfig favours arriving quickly without overrunning.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		ProgressWeight:   1,
		ArrivalBonus:     1000,
		OverspeedPenalty: 50,
		StallPenalty:     5,
		TickPenalty:      0.1,
	}
}

// Transition describes one tick from the point of view of the reward.
type Transition struct {
	Before     float64 // metres to target before the tick
	After      float64 // metres to target after the tick
	Arrived    bool
	Speed      float64 // after the tick
	Ceiling    float64 // braking ceiling after the tick
	Stationary bool
}

// Reward scores a transition.
func (c RewardConfig) Reward(t Transition) float64 {
	r := c.ProgressWeight*(t.Before-t.After) - c.TickPenalty
	if t.Arrived {
		return r + c.ArrivalBonus
	}
	if t.Speed > t.Ceiling {
		r -= c.OverspeedPenalty
	}
	if t.Stationary {
		r -= c.StallPenalty
	}
	return r
}
