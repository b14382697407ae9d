package network

import (
	"errors"
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

func chain(ids ...int) []*ripple1d.NetworkReach {
	out := make([]*ripple1d.NetworkReach, len(ids))
	for i, id := range ids {
		toID := 0
		if i+1 < len(ids) {
			toID = ids[i+1]
		}
		out[i] = &ripple1d.NetworkReach{ID: id, ToID: toID}
	}
	return out
}

func TestWalk(t *testing.T) {
	tree := NewTree(chain(1, 2, 3, 4))
	got, err := Walk(tree, 1, 4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWalkInvalidPath(t *testing.T) {
	tree := NewTree(chain(1, 2, 3))
	_, err := Walk(tree, 1, 99, 0)
	if !errors.Is(err, ripple1d.ErrInvalidNetworkPath) {
		t.Errorf("want ErrInvalidNetworkPath, got %v", err)
	}
}

func TestWalkHopBound(t *testing.T) {
	tree := NewTree(chain(1, 2, 3, 4, 5))
	_, err := Walk(tree, 1, 5, 2)
	if !errors.Is(err, ripple1d.ErrInvalidNetworkPath) {
		t.Errorf("want ErrInvalidNetworkPath from hop bound, got %v", err)
	}
}

func TestAreConnected(t *testing.T) {
	tree := NewTree(chain(1, 2, 3))
	if !AreConnected(tree, 1, 3, 0) {
		t.Error("want 1 connected to 3")
	}
	if AreConnected(tree, 3, 1, 0) {
		t.Error("want 3 not connected to 1 (wrong direction)")
	}
}

func TestConfluence(t *testing.T) {
	reaches := append(chain(1, 10, 100), chain(2, 10, 100)[:2]...)
	tree := NewTree(reaches)
	id, ok := Confluence(tree, 1, 2, 0)
	if !ok || id != 10 {
		t.Errorf("want confluence 10, got %d ok=%v", id, ok)
	}
}

func TestNearestLineToPoint(t *testing.T) {
	near := &ripple1d.NetworkReach{ID: 1, Geometry: geom.LineString{{X: 0, Y: 0}}}
	far := &ripple1d.NetworkReach{ID: 2, Geometry: geom.LineString{{X: 100, Y: 100}}}
	got := NearestLineToPoint([]*ripple1d.NetworkReach{far, near}, [2]float64{0, 0}, 1)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("want nearest reach id 1, got %+v", got)
	}
}
