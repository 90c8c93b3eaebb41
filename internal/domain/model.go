package domain

import "math"

// MaxLogit bounds the exponent fed to the logistic function. Beyond ±30 the
// probability is indistinguishable from 0 or 1 in float64 and exp starts to
// lose precision.
const MaxLogit = 30.0

// WinProbability returns the Bradley-Terry probability that an item with
// quality qa beats an item with quality qb:
//
//	P(a beats b) = 1 / (1 + exp(-(qa - qb)))
//
// The difference is clamped to [-MaxLogit, MaxLogit] before exponentiation.
// WinProbability(qa, qb) + WinProbability(qb, qa) equals 1 within
// floating-point rounding for all finite inputs.
func WinProbability(qa, qb float64) float64 {
	d := qa - qb
	switch {
	case math.IsNaN(d):
		return 0.5
	case d > MaxLogit:
		d = MaxLogit
	case d < -MaxLogit:
		d = -MaxLogit
	}
	return 1.0 / (1.0 + math.Exp(-d))
}
