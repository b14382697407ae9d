package conflate

import (
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/Dewberry/ripple1d/network"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"
)

// straightXS builds a cross-section perpendicular to a north-south reach,
// drawn left (west) to right (east) so CorrectlyDrawn holds for a
// southward-flowing reach.
func straightXS(rs, y float64) *ripple1d.CrossSection {
	return &ripple1d.CrossSection{
		RiverReach:   ripple1d.RiverReach{River: "Test River", Reach: "Test Reach"},
		RiverStation: rs,
		CutLine:      geom.LineString{{X: -50, Y: y}, {X: 50, Y: y}},
		StationElevation: []ripple1d.StationElevation{
			{Station: 0, Elevation: 10},
			{Station: 50, Elevation: 0},
			{Station: 100, Elevation: 10},
		},
		LeftBank:  20,
		RightBank: 80,
		RasData:   "Type RM Length L Ch R =1,0,0,0,0",
	}
}

func buildGeometry() *ripple1d.GeometryFile {
	rr := ripple1d.RiverReach{River: "Test River", Reach: "Test Reach"}
	reach := &ripple1d.Reach{
		RiverReach: rr,
		Geometry:   geom.LineString{{X: 0, Y: 1000}, {X: 0, Y: 0}},
		Nodes: []ripple1d.ReachNode{
			{Kind: ripple1d.NodeXS, XS: straightXS(1000, 1000)},
			{Kind: ripple1d.NodeXS, XS: straightXS(500, 500)},
			{Kind: ripple1d.NodeXS, XS: straightXS(0, 0)},
		},
	}
	return &ripple1d.GeometryFile{
		Reaches: map[ripple1d.RiverReach]*ripple1d.Reach{rr: reach},
	}
}

func buildNetwork() []*ripple1d.NetworkReach {
	return []*ripple1d.NetworkReach{
		{ID: 1, ToID: 0, StreamOrder: 1, Geometry: geom.LineString{{X: 0, Y: 1000}, {X: 0, Y: 0}}},
	}
}

func TestConflateBasic(t *testing.T) {
	g := buildGeometry()
	reaches := buildNetwork()
	tree := network.NewTree(reaches)

	result, err := Conflate(g, tree, reaches, Options{SourceModel: "test"})
	require.NoError(t, err)
	rc, ok := result.Reaches[1]
	require.True(t, ok, "want network reach 1 conflated")
	require.NotNil(t, rc.USXS, "want us_xs populated")
	require.NotNil(t, rc.DSXS, "want ds_xs populated")
	if rc.USXS.XSID <= rc.DSXS.XSID {
		t.Errorf("want us_xs station > ds_xs station, got us=%v ds=%v", rc.USXS.XSID, rc.DSXS.XSID)
	}
}

func TestValidateBadConflation(t *testing.T) {
	rc := &ripple1d.ReachConflation{
		NetworkID: 1,
		USXS:      &ripple1d.XSRef{River: "r", Reach: "a", XSID: 10},
		DSXS:      &ripple1d.XSRef{River: "r", Reach: "a", XSID: 20},
	}
	if err := validate(rc); err == nil {
		t.Error("want BadConflation error when us_xs < ds_xs on same river/reach")
	}
}
