package zones

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
)

func TestPartition3GroupsEqualKeys(t *testing.T) {
	a := make([]CandidatePoint, 1000)
	for i := range a {
		a[i] = CandidatePoint{Point: orb.Point{0.5, float64(i)}}
	}
	lt, gt := partition3(a, 0, len(a)-1, 500, 0)
	if lt != 0 || gt != len(a)-1 {
		t.Fatalf("equal keys split into [%d, %d], want one run [0, %d]", lt, gt, len(a)-1)
	}
}

func TestSelectNthWithRepeatedKeys(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 5))
	a := make([]CandidatePoint, 5000)
	for i := range a {
		a[i] = CandidatePoint{Point: orb.Point{float64(r.IntN(4)), r.Float64()}}
	}
	for _, n := range []int{0, 1, 2500, 4999} {
		selectNth(a, n, 0)
		for i := range a {
			if (i < n && a[i].Point[0] > a[n].Point[0]) || (i > n && a[i].Point[0] < a[n].Point[0]) {
				t.Fatalf("n=%d: element %d (%v) on the wrong side of %v", n, i, a[i].Point[0], a[n].Point[0])
			}
		}
	}
}

func TestBuildIndexSharedCoordinate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Add("z", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}}); err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewPCG(8, 8))
	pts := make([]CandidatePoint, 50000)
	inside := 0
	for i := range pts {
		pts[i] = CandidatePoint{Point: orb.Point{0.5, r.Float64()*2 - 0.5}, Weight: 1}
		if pts[i].Point[1] > 0 && pts[i].Point[1] < 1 {
			inside++
		}
	}
	if got := len(BuildIndex(pts, reg)["z"]); got != inside {
		t.Fatalf("zone has %d points, want %d", got, inside)
	}
}
