package demogen

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// Rand is a Mulberry32 generator. Two instances built from the same seed and driven
// through the same calls produce identical output on every platform. It is not safe for
// concurrent use and must never be used for secrets.
type Rand struct {
	seed  uint32
	state uint32
}

func NewRand(seed uint32) *Rand {
	return &Rand{seed: seed, state: seed}
}

// SeedFromString maps a job seed to 32 bits: decimal strings that fit are used as is,
// anything else is hashed with FNV-1a.
func SeedFromString(s string) uint32 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n)
	}
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Derive returns an independent generator for a named sub-stream. The child depends only
// on the parent seed and labels, never on how far the parent has advanced.
func (r *Rand) Derive(labels ...string) *Rand {
	return NewRand(SeedFromString(fmt.Sprintf("%d|%s", r.seed, strings.Join(labels, "|"))))
}

// State and Restore expose the raw generator position.
func (r *Rand) State() uint32 { return r.state }

func (r *Rand) Restore(state uint32) { r.state = state }

// Next returns a float in [0, 1).
func (r *Rand) Next() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// Int returns a uniform integer in [min, max].
func (r *Rand) Int(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + int(math.Floor(r.Next()*float64(max-min+1)))
}

// Float returns a uniform float in [min, max).
func (r *Rand) Float(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// Bool returns true with probability p.
func (r *Rand) Bool(p float64) bool {
	return r.Next() < p
}

// LogNormal draws exp(N(ln(mean), sd)) with a Box-Muller normal.
func (r *Rand) LogNormal(mean, stddev float64) float64 {
	u1 := 1 - r.Next()
	u2 := r.Next()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return math.Exp(math.Log(mean) + stddev*z)
}

// Pareto draws by inverse CDF: xm / u^(1/alpha).
func (r *Rand) Pareto(alpha, xm float64) float64 {
	u := 1 - r.Next()
	return xm / math.Pow(u, 1/alpha)
}

// UUID returns an RFC 4122 v4 shaped string. Deterministic fixtures only.
func (r *Rand) UUID() string {
	const hex = "0123456789abcdef"
	const tmpl = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"
	b := []byte(tmpl)
	for i, c := range b {
		switch c {
		case 'x':
			b[i] = hex[r.Int(0, 15)]
		case 'y':
			b[i] = hex[8+r.Int(0, 3)]
		}
	}
	return string(b)
}

// Pick returns a uniform element. It panics on an empty slice.
func Pick[T any](r *Rand, items []T) T {
	if len(items) == 0 {
		panic("demogen: Pick from empty slice")
	}
	return items[r.Int(0, len(items)-1)]
}

// PickWeighted samples by cumulative weight. Weights need not sum to 1; if rounding leaves
// the draw past the last bucket the last item is returned.
func PickWeighted[T any](r *Rand, items []T, weights []float64) T {
	if len(items) == 0 {
		panic("demogen: PickWeighted from empty slice")
	}
	var total float64
	for i := range items {
		if i < len(weights) && weights[i] > 0 {
			total += weights[i]
		}
	}
	if total <= 0 {
		return Pick(r, items)
	}
	target := r.Next() * total
	var acc float64
	for i := range items {
		if i < len(weights) && weights[i] > 0 {
			acc += weights[i]
		}
		if target < acc {
			return items[i]
		}
	}
	return items[len(items)-1]
}

// Shuffle returns a Fisher-Yates shuffled copy; items is not modified.
func Shuffle[T any](r *Rand, items []T) []T {
	out := append([]T(nil), items...)
	for i := len(out) - 1; i > 0; i-- {
		j := r.Int(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Weighted pairs an item with its sampling weight.
type Weighted[T any] struct {
	Item   T
	Weight float64
}

func PickFrom[T any](r *Rand, table []Weighted[T]) T {
	items := make([]T, len(table))
	weights := make([]float64, len(table))
	for i, w := range table {
		items[i] = w.Item
		weights[i] = w.Weight
	}
	return PickWeighted(r, items, weights)
}
