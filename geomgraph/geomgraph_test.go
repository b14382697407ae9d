package geomgraph

import (
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

func straightXS(rs, leftX, rightX, y float64) *ripple1d.CrossSection {
	return &ripple1d.CrossSection{
		RiverStation: rs,
		CutLine:      geom.LineString{{X: leftX, Y: y}, {X: rightX, Y: y}},
		StationElevation: []ripple1d.StationElevation{
			{Station: 0, Elevation: 10},
			{Station: 50, Elevation: 0},
			{Station: 100, Elevation: 10},
		},
		LeftBank:  20,
		RightBank: 80,
	}
}

func TestThalweg(t *testing.T) {
	xs := straightXS(100, 0, 100, 0)
	station, elev, ok := Thalweg(xs)
	if !ok {
		t.Fatal("want ok")
	}
	if station != 50 || elev != 0 {
		t.Errorf("want station=50 elev=0, got station=%v elev=%v", station, elev)
	}
}

func TestThalwegOutsideBanks(t *testing.T) {
	xs := straightXS(100, 0, 100, 0)
	xs.LeftBank, xs.RightBank = 0, 10
	_, _, ok := Thalweg(xs)
	if !ok {
		t.Fatal("want ok: bank window still contains a point")
	}
}

func TestBankEncompassed(t *testing.T) {
	xs := straightXS(100, 0, 100, 0)
	if !BankEncompassed(xs, 50) {
		t.Error("want 50 encompassed between banks 20,80")
	}
	if BankEncompassed(xs, 10) {
		t.Error("want 10 not encompassed")
	}
}

func TestConcaveHullSingleXS(t *testing.T) {
	xs := straightXS(100, 0, 100, 0)
	hull := ConcaveHull([]*ripple1d.CrossSection{xs})
	if len(hull) != 1 {
		t.Fatalf("want 1 ring, got %d", len(hull))
	}
	if len(hull[0]) != 3 {
		t.Errorf("want closed 2-point ring (3 vertices), got %d", len(hull[0]))
	}
}

func TestConcaveHullMultipleXS(t *testing.T) {
	upstream := straightXS(200, 0, 100, 100)
	downstream := straightXS(100, 0, 100, 0)
	hull := ConcaveHull([]*ripple1d.CrossSection{upstream, downstream})
	if len(hull) != 1 {
		t.Fatalf("want 1 ring, got %d", len(hull))
	}
	// first + left bank + reversed-last + reversed right bank, closed.
	if len(hull[0]) < 4 {
		t.Errorf("want at least 4 vertices, got %d", len(hull[0]))
	}
}

func TestCorrectlyDrawn(t *testing.T) {
	// Reach runs from (0,100) to (0,0): downstream is the smaller y.
	reach := &ripple1d.Reach{
		Geometry: geom.LineString{{X: 0, Y: 100}, {X: 0, Y: 0}},
		Nodes: []ripple1d.ReachNode{
			{Kind: ripple1d.NodeXS, XS: straightXS(200, -50, 50, 100)},
			{Kind: ripple1d.NodeXS, XS: straightXS(100, -50, 50, 0)},
		},
	}
	xs := straightXS(150, -50, 50, 50)
	if !CorrectlyDrawn(xs, reach) {
		t.Error("want xs drawn left-to-right (increasing x) to be correctly drawn for a south-flowing reach")
	}
	reversed := ReverseCrossSection(xs)
	if CorrectlyDrawn(reversed, reach) {
		t.Error("want reversed xs to fail the direction check")
	}
}
