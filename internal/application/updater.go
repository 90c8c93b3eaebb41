package application

import (
	"fmt"
	"math"

	"github.com/ahrav/go-acj/internal/domain"
)

// DefaultStep is the learning rate used when none is configured.
const DefaultStep = 1.0

// QualityUpdater applies the Bradley-Terry stochastic gradient step to the
// two items of a resolved comparison. With p = P(A beats B) computed from the
// pre-update scores:
//
//	A wins: qA += step*(1-p), qB -= step*(1-p)
//	B wins: qA -= step*p,     qB += step*p
//
// The winner gains exactly what the loser gives up, scaled by how surprising
// the outcome was under the current model. The updater is deterministic.
type QualityUpdater struct {
	step float64
}

// QualityUpdate describes the effect of one applied comparison.
type QualityUpdate struct {
	Comparison domain.Comparison

	// Expected is the pre-update probability that the observed winner would win.
	Expected float64

	// Delta is the amount transferred from loser to winner.
	Delta float64

	// QualityA and QualityB are the post-update scores.
	QualityA float64
	QualityB float64
}

// NewQualityUpdater creates an updater with the given positive, finite step.
func NewQualityUpdater(step float64) (*QualityUpdater, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step must be positive and finite, got %v",
			domain.ErrInvalidConfiguration, step)
	}
	return &QualityUpdater{step: step}, nil
}

// Step returns the configured learning rate.
func (u *QualityUpdater) Step() float64 { return u.step }

// Apply updates both items of c in reg. It must be called after c has been
// appended to the comparison log.
func (u *QualityUpdater) Apply(reg *domain.Registry, c domain.Comparison) (QualityUpdate, error) {
	qa, err := reg.Quality(c.A)
	if err != nil {
		return QualityUpdate{}, err
	}
	qb, err := reg.Quality(c.B)
	if err != nil {
		return QualityUpdate{}, err
	}

	p := domain.WinProbability(qa, qb)
	upd := QualityUpdate{Comparison: c}
	switch c.Winner {
	case c.A:
		upd.Delta = u.step * (1 - p)
		upd.Expected = p
		qa += upd.Delta
		qb -= upd.Delta
	case c.B:
		upd.Delta = u.step * p
		upd.Expected = 1 - p
		qa -= upd.Delta
		qb += upd.Delta
	default:
		return QualityUpdate{}, domain.NewItemError(c.Winner, "Apply", domain.ErrInvalidWinner)
	}

	if err := reg.SetQuality(c.A, qa); err != nil {
		return QualityUpdate{}, err
	}
	if err := reg.SetQuality(c.B, qb); err != nil {
		return QualityUpdate{}, err
	}
	upd.QualityA, upd.QualityB = qa, qb
	return upd, nil
}
