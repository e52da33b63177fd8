package trainer

import "math"

// EarlyStopping watches the validation loss. A round improves iff the loss drops
// below Best - MinDelta; the run stops once Wait reaches Patience.
type EarlyStopping struct {
	Patience int
	MinDelta float64
	Best     float64
	Wait     int
	Stopped  bool
}

// NewEarlyStopping returns a fresh monitor
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{Patience: patience, MinDelta: minDelta, Best: math.Inf(1)}
}

// Update records one validation round and reports whether it improved and
// whether training should stop. A non-finite loss stops at once.
func (e *EarlyStopping) Update(loss float64) (improved, stop bool) {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		e.Wait++
		e.Stopped = true
		return false, true
	}
	if loss < e.Best-e.MinDelta {
		e.Best = loss
		e.Wait = 0
		return true, false
	}
	e.Wait++
	if e.Wait >= e.Patience {
		e.Stopped = true
	}
	return false, e.Stopped
}
