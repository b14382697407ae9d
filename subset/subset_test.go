package subset

import (
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"
)

func xsAt(rs float64) ripple1d.ReachNode {
	return ripple1d.ReachNode{
		Kind: ripple1d.NodeXS,
		XS: &ripple1d.CrossSection{
			RiverStation: rs,
			CutLine:      geom.LineString{{X: -10, Y: rs}, {X: 10, Y: rs}},
			RasData:      "Type RM Length L Ch R =1,X,0,0,0",
		},
	}
}

func buildSingleReachGeometry() *ripple1d.GeometryFile {
	rr := ripple1d.RiverReach{River: "R1", Reach: "Main"}
	reach := &ripple1d.Reach{
		RiverReach: rr,
		Geometry:   geom.LineString{{X: 0, Y: 1000}, {X: 0, Y: 0}},
		Nodes: []ripple1d.ReachNode{
			xsAt(1000), xsAt(500), xsAt(0),
		},
	}
	return &ripple1d.GeometryFile{Reaches: map[ripple1d.RiverReach]*ripple1d.Reach{rr: reach}}
}

func TestSubsetSingleReach(t *testing.T) {
	g := buildSingleReachGeometry()
	rr := ripple1d.RiverReach{River: "R1", Reach: "Main"}
	sub, err := Subset(g, 42, rr, rr, 1000, 0, "EPSG:5070")
	require.NoError(t, err)
	nwmKey := ripple1d.RiverReach{River: "42", Reach: "42"}
	reach, ok := sub.Reach(nwmKey)
	require.True(t, ok, "want reach keyed by NWM id")
	if !reach.StrictlyDecreasing() {
		t.Error("want strictly decreasing stations after renumbering")
	}
	xss := reach.CrossSections()
	require.Len(t, xss, 3)
	if xss[0].RiverStation != 3 {
		t.Errorf("want upstream-most renumbered to 3, got %v", xss[0].RiverStation)
	}
	if xss[len(xss)-1].RiverStation != 1 {
		t.Errorf("want downstream-most renumbered to 1, got %v", xss[len(xss)-1].RiverStation)
	}
}

func TestSubsetTooFewCrossSections(t *testing.T) {
	g := buildSingleReachGeometry()
	rr := ripple1d.RiverReach{River: "R1", Reach: "Main"}
	_, err := Subset(g, 42, rr, rr, 500, 500, "EPSG:5070")
	if err != ripple1d.ErrSingleXSModel {
		t.Errorf("want ErrSingleXSModel, got %v", err)
	}
}
