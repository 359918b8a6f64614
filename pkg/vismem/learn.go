package vismem

import (
	"time"

	"github.com/orneryd/vismem/pkg/simd"
)

// learn is the learner goroutine: sweep until done closes.
//
// Besides the LED history retry inside sweep, learn pauses for IdleWait after
// a sweep in which no row was learnable, so a dark or idle installation does
// not spin a core. The pause never skips learnable data: a sweep that pairs
// any row with an LED frame is followed immediately by the next one.
func (e *Engine) learn(done <-chan struct{}) {
	defer e.wg.Done()

	e.log.Log("info", "learning started", map[string]any{"run_id": e.runID})

	lastReport := time.Now()
	var sweeps uint64

	for {
		select {
		case <-done:
			e.log.Log("info", "learning stopped", map[string]any{
				"run_id": e.runID,
				"sweeps": e.stats.sweeps.Load(),
			})
			return
		default:
		}

		learned, ok := e.sweep(done)
		if !ok {
			continue // done closed mid-sweep; the select above exits
		}
		sweeps++
		e.stats.sweeps.Add(1)

		if now := time.Now(); now.Sub(lastReport) >= e.cfg.StatsInterval {
			e.reportThroughput(float64(sweeps) / now.Sub(lastReport).Seconds())
			sweeps = 0
			lastReport = now
		}

		if learned == 0 {
			wait(done, e.cfg.IdleWait)
		}
	}
}

// sweep walks every sample position once in storage order, updating cells
// and accumulating recall, then publishes recall if anything accumulated.
//
// It returns the number of rows that were paired with an LED frame, and false
// if done closed while waiting for LED history.
func (e *Engine) sweep(done <-chan struct{}) (int, bool) {
	p := e.cfg.Learning
	table := e.index.Table()
	dense := len(table)
	cells := e.store.Cells()
	acc := e.acc
	tolerance := e.tolerance

	simd.Zero(acc)
	var total float32
	learned := 0

	for s := range e.samples {
		luminance := e.samples[s]

		// Nothing in this row can reach the threshold, whatever the LEDs did.
		if !p.CanLearn(luminance) {
			e.stats.skippedRows.Add(1)
			continue
		}

		frame := e.history.Get(e.cfg.ExpectedDelay)
		if frame == nil {
			// History is not deep enough yet; this row gets another chance
			// on the next sweep.
			e.stats.historyMisses.Add(1)
			if !wait(done, e.cfg.RetryWait) {
				return learned, false
			}
			continue
		}
		learned++

		row := cells[s*dense : (s+1)*dense]
		for d := range row {
			c := row[d]

			r := p.RecallContribution(c) * tolerance[d]
			acc[d] += r
			total += r

			if next, ok := p.Reinforce(c, p.Reinforcement(luminance, frame.Color(table[d]))); ok {
				row[d] = next
			}
		}
	}

	if total != 0 {
		e.publish(total)
	}
	return learned, true
}

// publish is the recall normalizer. It scales the accumulated recall so the
// mean over all LEDs is 1, nudges each tolerance toward keeping it there, and
// writes recall out in sparse order.
func (e *Engine) publish(total float32) {
	p := e.cfg.Learning
	table := e.index.Table()
	acc := e.acc

	simd.ScaleInPlace(acc, float32(len(acc))/total)

	for d, v := range acc {
		e.tolerance[d] = p.NextTolerance(e.tolerance[d], v)
		e.recall[table[d]] = v
	}
	e.stats.publishes.Add(1)
}
