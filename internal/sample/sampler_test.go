package sample

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"odjitter/internal/errs"
	"odjitter/internal/zones"

	"github.com/paulmach/orb"
)

var square = orb.MultiPolygon{{
	{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	{{0.25, 0.25}, {0.75, 0.25}, {0.75, 0.75}, {0.25, 0.75}, {0.25, 0.25}},
}}

func TestRandomInPolygonStaysInside(t *testing.T) {
	s, err := NewRandomInPolygon("sq", square, 0)
	if err != nil {
		t.Fatalf("NewRandomInPolygon error: %v", err)
	}
	if _, finite := s.Capacity(); finite {
		t.Fatalf("polygon sampler reports finite capacity")
	}
	r := rand.New(rand.NewPCG(42, 42))
	for i := range 2000 {
		p, err := s.Sample(r)
		if err != nil {
			t.Fatalf("Sample %d error: %v", i, err)
		}
		if !zones.Contains(square, p) {
			t.Fatalf("sample %d = %v is outside the zone", i, p)
		}
	}
}

func TestRandomInPolygonDegenerate(t *testing.T) {
	cases := map[string]orb.MultiPolygon{
		"empty":     {},
		"collinear": {{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}},
		"single":    {{{{3, 3}}}},
	}
	for name, mp := range cases {
		if _, err := NewRandomInPolygon(name, mp, 0); !errors.Is(err, errs.ErrDegenerateGeometry) {
			t.Errorf("%s: want ErrDegenerateGeometry, got %v", name, err)
		}
	}
}

func TestRandomInPolygonExhausted(t *testing.T) {
	// 洞与外环重合，区内没有任何点
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	s, err := NewRandomInPolygon("void", orb.MultiPolygon{{ring, ring}}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sample(rand.New(rand.NewPCG(1, 1))); !errors.Is(err, errs.ErrSamplingExhausted) {
		t.Fatalf("want ErrSamplingExhausted, got %v", err)
	}
}

func TestWeightedPoolFrequencies(t *testing.T) {
	a, b, never := orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{2, 2}
	s, err := NewWeightedPool("z", []zones.CandidatePoint{
		{Point: a, Weight: 1},
		{Point: b, Weight: 3},
		{Point: never, Weight: 0},
	})
	if err != nil {
		t.Fatalf("NewWeightedPool error: %v", err)
	}
	r := rand.New(rand.NewPCG(7, 7))
	const n = 40000
	hits := map[orb.Point]int{}
	for range n {
		p, err := s.Sample(r)
		if err != nil {
			t.Fatal(err)
		}
		hits[p]++
	}
	if hits[never] != 0 {
		t.Fatalf("zero-weight point drawn %d times", hits[never])
	}
	if hits[a]+hits[b] != n {
		t.Fatalf("drew points outside the pool: %v", hits)
	}
	if f := float64(hits[b]) / n; math.Abs(f-0.75) > 0.02 {
		t.Fatalf("heavy point frequency = %.3f, want ~0.75", f)
	}
}

func TestWeightedPoolCapacityCountsDistinct(t *testing.T) {
	s, err := NewWeightedPool("z", []zones.CandidatePoint{
		{Point: orb.Point{0, 0}, Weight: 1},
		{Point: orb.Point{0, 0}, Weight: 1},
		{Point: orb.Point{1, 0}, Weight: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, finite := s.Capacity()
	if !finite || n != 2 {
		t.Fatalf("Capacity = (%d, %v), want (2, true)", n, finite)
	}
}

func TestWeightedPoolNoCandidates(t *testing.T) {
	for name, cands := range map[string][]zones.CandidatePoint{
		"nil":       nil,
		"all zero":  {{Point: orb.Point{0, 0}, Weight: 0}},
		"negative":  {{Point: orb.Point{0, 0}, Weight: -1}},
		"not a num": {{Point: orb.Point{0, 0}, Weight: math.NaN()}},
	} {
		if _, err := NewWeightedPool(name, cands); !errors.Is(err, errs.ErrNoCandidatePoints) {
			t.Errorf("%s: want ErrNoCandidatePoints, got %v", name, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"": Random, "random": Random, "random_in_polygon": Random, "weighted": Weighted, "Weighted_Pool": Weighted}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("grid"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
