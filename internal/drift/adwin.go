// Package drift detects distribution shifts in a stream of rewards.
package drift

import "math"

// Detector consumes one observation at a time and reports a change.
type Detector interface {
	Update(x float64) bool
}

// Config tunes the adaptive window.
type Config struct {
	Delta       float64 // confidence of the cut test
	Clock       int     // test for a cut every Clock updates
	MaxBuckets  int     // buckets per row before the two oldest merge
	MinWindow   int     // minimum size of either sub-window
	GracePeriod int     // no cut test until the window is larger than this
}

func DefaultConfig() Config {
	return Config{
		Delta:       0.002,
		Clock:       32,
		MaxBuckets:  5,
		MinWindow:   5,
		GracePeriod: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Delta <= 0 || c.Delta >= 1 {
		c.Delta = d.Delta
	}
	if c.Clock <= 0 {
		c.Clock = d.Clock
	}
	if c.MaxBuckets < 2 {
		c.MaxBuckets = d.MaxBuckets
	}
	if c.MinWindow <= 0 {
		c.MinWindow = d.MinWindow
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = d.GracePeriod
	}
	return c
}

// relTolerance absorbs the rounding left in sub-window means after bucket
// totals are summed in different orders.
const relTolerance = 1e-9

type bucket struct {
	total    float64
	variance float64 // sum of squared deviations inside the bucket
	min, max float64
}

// ADWIN is an adaptive sliding window. The window grows while the stream is
// stationary and drops its older part when two sub-windows have means that
// differ by more than a Bernstein-style bound.
//
// Observations are kept in an exponential histogram: rows[i] holds buckets
// of 2^i observations, oldest first, and higher rows are older.
type ADWIN struct {
	cfg  Config
	rows [][]bucket

	width    int
	total    float64
	variance float64

	ticks      int
	detections int
}

func NewADWIN(cfg Config) *ADWIN {
	return &ADWIN{cfg: cfg.withDefaults()}
}

// Update adds x to the window and returns true only on the call where a
// change is detected.
func (a *ADWIN) Update(x float64) bool {
	a.insert(x)
	a.ticks++

	if a.ticks%a.cfg.Clock != 0 || a.width <= a.cfg.GracePeriod {
		return false
	}

	detected := false
	for a.cut() {
		detected = true
	}
	if detected {
		a.detections++
	}
	return detected
}

func (a *ADWIN) insert(x float64) {
	if a.width > 0 {
		w := float64(a.width)
		d := x - a.total/w
		a.variance += w * d * d / (w + 1)
	}
	a.width++
	a.total += x

	if len(a.rows) == 0 {
		a.rows = append(a.rows, nil)
	}
	a.rows[0] = append(a.rows[0], bucket{total: x, min: x, max: x})
	a.compress()
}

func (a *ADWIN) compress() {
	for i := 0; i < len(a.rows); i++ {
		if len(a.rows[i]) <= a.cfg.MaxBuckets {
			return
		}
		b1, b2 := a.rows[i][0], a.rows[i][1]
		n := float64(int(1) << i)
		d := b1.total/n - b2.total/n
		merged := bucket{
			total:    b1.total + b2.total,
			variance: b1.variance + b2.variance + n*n*d*d/(2*n),
			min:      math.Min(b1.min, b2.min),
			max:      math.Max(b1.max, b2.max),
		}
		a.rows[i] = append(a.rows[i][:0], a.rows[i][2:]...)
		if i+1 == len(a.rows) {
			a.rows = append(a.rows, nil)
		}
		a.rows[i+1] = append(a.rows[i+1], merged)
	}
}

func (a *ADWIN) dropOldest() {
	last := len(a.rows) - 1
	b := a.rows[last][0]
	n := float64(int(1) << last)

	a.rows[last] = append(a.rows[last][:0], a.rows[last][1:]...)
	for len(a.rows) > 0 && len(a.rows[len(a.rows)-1]) == 0 {
		a.rows = a.rows[:len(a.rows)-1]
	}

	a.width -= int(n)
	a.total -= b.total
	if a.width == 0 {
		a.total = 0
		a.variance = 0
		return
	}
	w := float64(a.width)
	d := b.total/n - a.total/w
	a.variance -= b.variance + n*w*d*d/(n+w)
	if a.variance < 0 {
		a.variance = 0
	}
}

func (a *ADWIN) windowRange() float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range a.rows {
		for _, b := range row {
			lo = math.Min(lo, b.min)
			hi = math.Max(hi, b.max)
		}
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// cut tests every bucket boundary, oldest first. If any split is
// significant, every bucket older than the newest significant boundary is
// dropped so no pre-change remnant is left to trigger again.
func (a *ADWIN) cut() bool {
	minW := float64(a.cfg.MinWindow)
	w := float64(a.width)
	if w < 2*minW {
		return false
	}

	spread := a.windowRange()
	if spread == 0 {
		return false
	}
	sigma2 := a.variance / w
	deltaPrime := math.Log(2 * math.Log(w) / a.cfg.Delta)

	var (
		n0, u0 float64
		seen   int
		drop   = -1
	)

scan:
	for i := len(a.rows) - 1; i >= 0; i-- {
		size := float64(int(1) << i)
		for _, b := range a.rows[i] {
			n0 += size
			u0 += b.total
			seen++

			n1 := w - n0
			if n1 < minW {
				break scan
			}
			if n0 < minW {
				continue
			}

			mean0, mean1 := u0/n0, (a.total-u0)/n1
			diff := math.Abs(mean0 - mean1)
			if diff <= relTolerance*math.Max(math.Abs(mean0), math.Abs(mean1)) {
				continue
			}
			m := 1/(n0-minW+1) + 1/(n1-minW+1)
			eps := math.Sqrt(2*m*sigma2*deltaPrime) + 2.0/3.0*deltaPrime*m*spread
			if diff > eps {
				drop = seen
			}
		}
	}

	if drop < 0 {
		return false
	}
	for k := 0; k < drop; k++ {
		a.dropOldest()
	}
	return true
}

// Config returns the effective configuration after defaults.
func (a *ADWIN) Config() Config { return a.cfg }

// Width is the number of observations currently in the window.
func (a *ADWIN) Width() int { return a.width }

// Mean of the current window, 0 when empty.
func (a *ADWIN) Mean() float64 {
	if a.width == 0 {
		return 0
	}
	return a.total / float64(a.width)
}

// Variance of the current window per observation.
func (a *ADWIN) Variance() float64 {
	if a.width == 0 {
		return 0
	}
	return a.variance / float64(a.width)
}

// Detections counts the updates that reported a change.
func (a *ADWIN) Detections() int { return a.detections }

func (a *ADWIN) Reset() {
	*a = ADWIN{cfg: a.cfg}
}
