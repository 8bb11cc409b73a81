package match

import "math"

// TargetPair is a configured (A, B) odds pair.
type TargetPair struct {
	A float64
	B float64
}

// floatSlack absorbs binary representation error so that a delta of exactly
// epsilon (e.g. |4.30-4.25|) is accepted.
const floatSlack = 1e-9

// Passes reports whether some pair is within eps of the match on both legs.
func Passes(m Match, pairs []TargetPair, eps float64) bool {
	for _, p := range pairs {
		if within(m.OddsA, p.A, eps) && within(m.OddsB, p.B, eps) {
			return true
		}
	}
	return false
}

func within(v, target, eps float64) bool {
	return math.Abs(v-target) <= eps+floatSlack
}
