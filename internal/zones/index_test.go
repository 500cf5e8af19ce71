package zones

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	add := func(id string, mp orb.MultiPolygon) {
		if err := reg.Add(id, mp); err != nil {
			t.Fatal(err)
		}
	}
	add("a", orb.MultiPolygon{{{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}}}})
	add("b", orb.MultiPolygon{{{{4, 4}, {10, 4}, {10, 10}, {4, 10}, {4, 4}}}})
	add("tri", orb.MultiPolygon{{{{0, 7}, {3, 10}, {0, 10}, {0, 7}}}})
	add("holed", orb.MultiPolygon{{
		{{6, 0}, {10, 0}, {10, 3}, {6, 3}, {6, 0}},
		{{7, 1}, {9, 1}, {9, 2}, {7, 2}, {7, 1}},
	}})
	add("empty", orb.MultiPolygon{{{{20, 20}, {21, 20}, {21, 21}, {20, 21}, {20, 20}}}})
	return reg
}

func sorted(pts []CandidatePoint) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Point
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func TestBuildIndexMatchesBruteForce(t *testing.T) {
	reg := testRegistry(t)
	r := rand.New(rand.NewPCG(1, 2))
	var pts []CandidatePoint
	for range 2000 {
		pts = append(pts, CandidatePoint{Point: orb.Point{r.Float64() * 11, r.Float64() * 11}, Weight: 1})
	}
	// 边界上的点：不属于任何以该边为边界的分区
	pts = append(pts,
		CandidatePoint{Point: orb.Point{6, 5}, Weight: 1},
		CandidatePoint{Point: orb.Point{0, 0}, Weight: 1},
		CandidatePoint{Point: orb.Point{8, 1}, Weight: 1},
	)

	ix := BuildIndex(pts, reg)
	for _, id := range reg.IDs() {
		mp, _ := reg.Get(id)
		var want []CandidatePoint
		for _, p := range pts {
			if Contains(mp, p.Point) {
				want = append(want, p)
			}
		}
		got, w := sorted(ix[id]), sorted(want)
		if len(got) != len(w) {
			t.Fatalf("zone %s: %d points, brute force %d", id, len(got), len(w))
		}
		for i := range got {
			if got[i] != w[i] {
				t.Fatalf("zone %s: point %d = %v, want %v", id, i, got[i], w[i])
			}
		}
	}
	if n := len(ix["empty"]); n != 0 {
		t.Fatalf("empty zone has %d points", n)
	}
	if e := ix.Empty(); len(e) != 1 || e[0] != "empty" {
		t.Fatalf("Empty = %v", e)
	}
}

func TestBuildIndexOverlapAssignsToEveryZone(t *testing.T) {
	reg := testRegistry(t)
	p := CandidatePoint{Point: orb.Point{5, 5}, Weight: 2}
	ix := BuildIndex([]CandidatePoint{p, {Point: orb.Point{6, 5}, Weight: 1}}, reg)
	c := ix.Counts()
	// (6,5) 在 a 的边上，只属于 b
	if c["a"] != 1 || c["b"] != 2 {
		t.Fatalf("Counts = %v, want a=1 b=2", c)
	}
	if ix["a"][0] != p {
		t.Fatalf("overlap point not kept verbatim: %v", ix["a"])
	}
	found := false
	for _, q := range ix["b"] {
		found = found || q == p
	}
	if !found {
		t.Fatalf("overlap point missing from b: %v", ix["b"])
	}
}

func TestBuildIndexDeterministic(t *testing.T) {
	reg := testRegistry(t)
	r := rand.New(rand.NewPCG(9, 9))
	var pts []CandidatePoint
	for range 500 {
		pts = append(pts, CandidatePoint{Point: orb.Point{r.Float64() * 10, r.Float64() * 10}, Weight: 1})
	}
	first := BuildIndex(pts, reg)
	second := BuildIndex(pts, reg)
	for _, id := range reg.IDs() {
		if len(first[id]) != len(second[id]) {
			t.Fatalf("zone %s: sizes differ", id)
		}
		for i := range first[id] {
			if first[id][i] != second[id][i] {
				t.Fatalf("zone %s: order differs at %d", id, i)
			}
		}
	}
}
