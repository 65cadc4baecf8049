package rl

// Score holds the named reward sub-scores supplied by the simulator for
// one episode step or episode end. Every component is clamped to [0, 1]
// before weighting.
type Score struct {
	Success   float64 `json:"success"`
	Speed     float64 `json:"speed"`
	Stealth   float64 `json:"stealth"`
	Damage    float64 `json:"damage"`
	Detection float64 `json:"detection"`
}

// RewardWeights configures the canonical reward function. Detection is
// applied as a penalty. The canonical weights sum to 1.0.
type RewardWeights struct {
	Success   float64 `json:"success" yaml:"success"`
	Speed     float64 `json:"speed" yaml:"speed"`
	Stealth   float64 `json:"stealth" yaml:"stealth"`
	Damage    float64 `json:"damage" yaml:"damage"`
	Detection float64 `json:"detection" yaml:"detection"`
}

// DefaultRewardWeights returns the canonical weighting:
// success 0.35, speed 0.15, stealth 0.20, damage 0.20, detection 0.10.
func DefaultRewardWeights() RewardWeights {
	return RewardWeights{
		Success:   0.35,
		Speed:     0.15,
		Stealth:   0.20,
		Damage:    0.20,
		Detection: 0.10,
	}
}

// Reward computes the weighted reward for a score. The result lies in
// [-Detection, Success+Speed+Stealth+Damage] given the clamping.
func (w RewardWeights) Reward(s Score) float64 {
	return w.Success*clamp01(s.Success) +
		w.Speed*clamp01(s.Speed) +
		w.Stealth*clamp01(s.Stealth) +
		w.Damage*clamp01(s.Damage) -
		w.Detection*clamp01(s.Detection)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
