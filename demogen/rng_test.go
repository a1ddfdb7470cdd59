package demogen

import (
	"math"
	"testing"
)

func TestRandSeed1337Sequence(t *testing.T) {
	want := []float64{
		0.1844118325971067,
		0.18998925131745636,
		0.8104719922412187,
		0.6437488221563399,
		0.430774615611881,
	}
	r := NewRand(1337)
	for i, w := range want {
		if got := r.Next(); got != w {
			t.Fatalf("draw %d: got %v, want %v", i, got, w)
		}
	}
}

func TestRandSameSeedSameStream(t *testing.T) {
	a, b := NewRand(1337), NewRand(1337)
	for i := 0; i < 1000; i++ {
		if x, y := a.Int(0, 1_000_000), b.Int(0, 1_000_000); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestRandRestore(t *testing.T) {
	r := NewRand(99)
	r.Next()
	saved := r.State()
	first := []float64{r.Next(), r.Next(), r.Next()}
	r.Restore(saved)
	for i, w := range first {
		if got := r.Next(); got != w {
			t.Fatalf("draw %d after restore: got %v, want %v", i, got, w)
		}
	}
}

func TestDeriveIgnoresParentPosition(t *testing.T) {
	a := NewRand(7)
	b := NewRand(7)
	for i := 0; i < 50; i++ {
		b.Next()
	}
	x := a.Derive("contacts", "2024-03")
	y := b.Derive("contacts", "2024-03")
	if x.Next() != y.Next() {
		t.Fatalf("derived streams depend on parent position")
	}
	z := a.Derive("contacts", "2024-04")
	if NewRand(7).Derive("contacts", "2024-03").Next() == z.Next() {
		t.Fatalf("different labels produced the same stream")
	}
}

func TestSeedFromString(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"42", 42},
		{" 1337 ", 1337},
		{"acme-demo", 3174637865},
	}
	for _, c := range cases {
		if got := SeedFromString(c.in); got != c.want {
			t.Fatalf("SeedFromString(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestRandRanges(t *testing.T) {
	r := NewRand(3)
	for i := 0; i < 10_000; i++ {
		if v := r.Next(); v < 0 || v >= 1 {
			t.Fatalf("Next out of range: %v", v)
		}
		if v := r.Int(-3, 3); v < -3 || v > 3 {
			t.Fatalf("Int out of range: %d", v)
		}
		if v := r.Float(2, 5); v < 2 || v >= 5 {
			t.Fatalf("Float out of range: %v", v)
		}
		if v := r.Pareto(1.6, 80_000); v < 80_000 {
			t.Fatalf("Pareto below xm: %v", v)
		}
		if v := r.LogNormal(6000, 0.6); v <= 0 || math.IsInf(v, 0) {
			t.Fatalf("LogNormal not positive: %v", v)
		}
	}
}

func TestPickWeightedBias(t *testing.T) {
	r := NewRand(2024)
	items := []string{"a", "b", "c"}
	weights := []float64{0.6, 0.3, 0.1}
	const n = 100_000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		counts[PickWeighted(r, items, weights)]++
	}
	for i, it := range items {
		share := float64(counts[it]) / n
		if math.Abs(share-weights[i]) > 0.03 {
			t.Fatalf("%s drawn %.3f of the time, want %.2f ± 0.03", it, share, weights[i])
		}
	}
}

func TestPickWeightedZeroWeightsFallsBackToUniform(t *testing.T) {
	r := NewRand(1)
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[PickWeighted(r, []int{1, 2}, []float64{0, 0})] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("uniform fallback never drew both items: %v", seen)
	}
}

func TestShuffleKeepsInput(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6}
	out := Shuffle(NewRand(5), in)
	if len(out) != len(in) {
		t.Fatalf("len = %d", len(out))
	}
	sum := 0
	for i, v := range out {
		sum += v
		if in[i] != i+1 {
			t.Fatalf("input modified: %v", in)
		}
	}
	if sum != 21 {
		t.Fatalf("shuffle lost elements: %v", out)
	}
}

func TestUUIDShape(t *testing.T) {
	id := NewRand(11).UUID()
	if len(id) != 36 || id[14] != '4' || id[8] != '-' {
		t.Fatalf("unexpected uuid %q", id)
	}
	switch id[19] {
	case '8', '9', 'a', 'b':
	default:
		t.Fatalf("variant nibble %q in %q", id[19], id)
	}
}
