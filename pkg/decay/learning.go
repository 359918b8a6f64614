// Package decay implements the short-term / long-term learning dynamics of the
// visual memory.
//
// Every cell of the memory holds two scalars. The short-term value is a leaky
// integrator: each reinforcement decays it by a fixed fraction and then adds
// the new evidence. The long-term value chases the short-term value with a
// cubic step, so large gaps close quickly while small gaps are refined slowly.
//
// # ELI12 (Explain Like I'm 12)
//
// Think of a footpath across a lawn:
//
//	👣 Short-term: today's footprints. Many people walk here today? Deep prints.
//	   Nobody walked here for a while? The grass springs back.
//	🛤️  Long-term: the worn path. It only forms after the footprints stay deep
//	   for a long time, and it fades slowly when people stop walking there.
//
// Recall measures how different today's footprints are from the worn path.
// A big difference means "something new is happening here".
package decay

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Params holds the learning constants. The defaults were tuned empirically
// against a physical installation and materially affect convergence; change
// them with care.
type Params struct {
	// LearningThreshold is the minimum reinforcement that mutates a cell.
	LearningThreshold float32

	// ShortTermPermeability is the fraction of short-term state lost on
	// every reinforcement.
	ShortTermPermeability float32

	// LongTermPermeability scales the cubic step of long-term state toward
	// short-term state.
	LongTermPermeability float32

	// ToleranceRate is the gain of the recall tolerance feedback loop.
	ToleranceRate float32

	// ToleranceFloor is the hard lower bound of every recall tolerance.
	ToleranceFloor float32

	// InitialTolerance is the tolerance every LED starts with.
	InitialTolerance float32

	// RecallEpsilon keeps the recall ratio finite when long-term state is zero.
	RecallEpsilon float32

	// LuminanceMax is the largest luminance a sample can report. The
	// luminance term of the reinforcement function is normalized by its square.
	LuminanceMax float32
}

// DefaultParams returns the tuned learning constants.
func DefaultParams() Params {
	return Params{
		LearningThreshold:     0.25,
		ShortTermPermeability: 1e-1,
		LongTermPermeability:  1e-4,
		ToleranceRate:         2e-4,
		ToleranceFloor:        1e-20,
		InitialTolerance:      1.0,
		RecallEpsilon:         1e-4,
		LuminanceMax:          255,
	}
}

// Cell is one unit of associative memory.
type Cell struct {
	ShortTerm float32
	LongTerm  float32
}

// LuminanceTerm is the camera half of the reinforcement function, in [0,1].
func (p Params) LuminanceTerm(luminance uint8) float32 {
	l := float32(luminance)
	return (l * l) / (p.LuminanceMax * p.LuminanceMax)
}

// ColorTerm is the LED half of the reinforcement function: the mean of the
// squared channels after clamping to [0,1].
func ColorTerm(led colorful.Color) float32 {
	c := led.Clamped()
	return float32(c.R*c.R+c.G*c.G+c.B*c.B) / 3
}

// Reinforcement returns how strongly a camera reading and an LED color
// reinforce each other. The result is in [0,1], monotonically increasing in
// both inputs, and separable so MaxReinforcement can bound it cheaply.
func (p Params) Reinforcement(luminance uint8, led colorful.Color) float32 {
	return p.LuminanceTerm(luminance) * ColorTerm(led)
}

// MaxReinforcement is Reinforcement evaluated at a white LED.
func (p Params) MaxReinforcement(luminance uint8) float32 {
	return p.LuminanceTerm(luminance)
}

// CanLearn reports whether any LED color could push a sample at this
// luminance over the learning threshold.
func (p Params) CanLearn(luminance uint8) bool {
	return p.MaxReinforcement(luminance) >= p.LearningThreshold
}

// Reinforce applies one reinforcement to a cell and returns the new state.
// Reinforcements below the learning threshold leave the cell untouched and
// report false.
func (p Params) Reinforce(c Cell, reinforcement float32) (Cell, bool) {
	if reinforcement < p.LearningThreshold {
		return c, false
	}

	c.ShortTerm = (c.ShortTerm - c.ShortTerm*p.ShortTermPermeability) + reinforcement

	r := c.ShortTerm - c.LongTerm
	c.LongTerm += r * r * r * p.LongTermPermeability

	return c, true
}

// RecallContribution is the squared gap between short-term and long-term
// state, relative to the long-term magnitude.
func (p Params) RecallContribution(c Cell) float32 {
	d := c.ShortTerm - c.LongTerm
	return (d * d) / (p.RecallEpsilon + c.LongTerm*c.LongTerm)
}

// NextTolerance moves a tolerance toward the value that keeps normalized
// recall at 1: up when recall is below target, down when above, never below
// the floor.
func (p Params) NextTolerance(tolerance, recall float32) float32 {
	tolerance += (1 - recall) * p.ToleranceRate
	if tolerance < p.ToleranceFloor {
		return p.ToleranceFloor
	}
	return tolerance
}

// SteadyState is the short-term value repeated reinforcement by k converges to.
func (p Params) SteadyState(k float32) float32 {
	return k / p.ShortTermPermeability
}
