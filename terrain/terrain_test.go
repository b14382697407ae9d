package terrain

import (
	"math"
	"testing"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

func geomLine(x1, y1, x2, y2 float64) geom.LineString {
	return geom.LineString{{X: x1, Y: y1}, {X: x2, Y: y2}}
}

// triangleDEM samples the same V-shaped profile as straightXS's
// station-elevation series (10 at station 0, 0 at station 50, 10 at
// station 100), treating y as station since straightXS's cut-line runs
// from (0,0) to (0,100). bias offsets every sample, for mismatch cases.
type triangleDEM struct{ bias float64 }

func (d triangleDEM) ElevationAt(x, y float64) (float64, error) {
	if y <= 50 {
		return 10 - y/5 + d.bias, nil
	}
	return (y-50)/5 + d.bias, nil
}

func straightXS() *ripple1d.CrossSection {
	return &ripple1d.CrossSection{
		RiverStation: 100,
		CutLine:      geomLine(0, 0, 0, 100),
		StationElevation: []ripple1d.StationElevation{
			{Station: 0, Elevation: 10},
			{Station: 50, Elevation: 0},
			{Station: 100, Elevation: 10},
		},
	}
}

func TestResampleStationsInsertsGapPoints(t *testing.T) {
	se := []ripple1d.StationElevation{{Station: 0, Elevation: 0}, {Station: 100, Elevation: 10}}
	out := ResampleStations(se, 25)
	if len(out) != 5 {
		t.Fatalf("want 5 stations, got %d: %v", len(out), out)
	}
	if out[2].Station != 50 || out[2].Elevation != 5 {
		t.Errorf("want midpoint interpolated to (50,5), got %+v", out[2])
	}
}

func TestSampleDEMMatchesSourceWhenDEMEqualsElevation(t *testing.T) {
	xs := straightXS()
	dem := triangleDEM{bias: 0}
	residuals, err := SampleDEM(xs, xs.StationElevation, dem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range residuals {
		if math.Abs(r.DEM-r.Source) > 1e-9 {
			t.Errorf("want DEM to match source at station %v, got dem=%v src=%v", r.Station, r.DEM, r.Source)
		}
	}
}

func TestFlowAreaOverlapIsOneWhenIdentical(t *testing.T) {
	residuals := []ElevationResidual{
		{Station: 0, Source: 10, DEM: 10},
		{Station: 50, Source: 0, DEM: 0},
		{Station: 100, Source: 10, DEM: 10},
	}
	got := flowAreaOverlap(residuals, 5)
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("want flow_area_overlap == 1 for identical profiles, got %v", got)
	}
}

func TestFlowAreaOverlapBounded(t *testing.T) {
	residuals := []ElevationResidual{
		{Station: 0, Source: 10, DEM: 12},
		{Station: 50, Source: 0, DEM: 3},
		{Station: 100, Source: 10, DEM: 12},
	}
	got := flowAreaOverlap(residuals, 8)
	if got < 0 || got > 1 {
		t.Errorf("want flow_area_overlap in [0,1], got %v", got)
	}
}

func TestSpectralAngleSelfIsOne(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	if got := spectralAngle(x, x); math.Abs(got-1) > 1e-9 {
		t.Errorf("want spectral_angle(x,x) == 1, got %v", got)
	}
}

func TestSpectralAngleOppositeIsZero(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	neg := []float64{-1, -2, -3, -4}
	if got := spectralAngle(x, neg); math.Abs(got) > 1e-9 {
		t.Errorf("want spectral_angle(x,-x) == 0, got %v", got)
	}
}

func TestInundationOverlapMonotone(t *testing.T) {
	residuals := []ElevationResidual{
		{Station: 0, Source: 10, DEM: 11},
		{Station: 50, Source: 0, DEM: 1},
		{Station: 100, Source: 10, DEM: 11},
	}
	prev := -1.0
	for wse := 0.0; wse <= 11; wse++ {
		got := inundationOverlap(residuals, wse)
		if got < prev-1e-9 {
			t.Errorf("want inundation_overlap monotone non-decreasing, dropped at wse=%v: %v < %v", wse, got, prev)
		}
		prev = got
	}
}

func TestWSEGridRampsStep(t *testing.T) {
	grid := WSEGrid(0, 10, Options{WSEStepInitial: 1, WSEStepRepeat: 2, WSERamp: 2})
	want := []float64{1, 2, 4, 6, 10}
	if len(grid) != len(want) {
		t.Fatalf("got %v, want %v", grid, want)
	}
	for i := range want {
		if math.Abs(grid[i]-want[i]) > 1e-9 {
			t.Errorf("got %v, want %v", grid, want)
		}
	}
}

func TestRoundUsesPrecisionTable(t *testing.T) {
	if got := Round("inundation_overlap", 0.123456); got != 0.123 {
		t.Errorf("want 0.123, got %v", got)
	}
	if got := Round("thalweg_elevation_difference", 1.2349); got != 1.23 {
		t.Errorf("want 1.23, got %v", got)
	}
}

func TestScoreCrossSectionWholeSection(t *testing.T) {
	xs := straightXS()
	dem := triangleDEM{bias: 0}
	agreement, err := ScoreCrossSection(xs, dem, Options{
		TerrainAgreementResolution: 25,
		WSEStepInitial:             2,
		WSEStepRepeat:              2,
		WSERamp:                    2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(agreement.WholeSection.RSquared-1) > 1e-9 {
		t.Errorf("want R^2 == 1 for identical DEM, got %v", agreement.WholeSection.RSquared)
	}
	if agreement.WholeSection.ThalwegElevationDifference != 0 {
		t.Errorf("want zero thalweg difference, got %v", agreement.WholeSection.ThalwegElevationDifference)
	}
}

// countingDEM counts calls to ElevationAt, so TestCachedDEMSource can
// verify repeated queries for the same point are served from cache.
type countingDEM struct{ calls int }

func (d *countingDEM) ElevationAt(x, y float64) (float64, error) {
	d.calls++
	return x + y, nil
}

func TestCachedDEMSourceDeduplicatesRepeatedPoints(t *testing.T) {
	dem := &countingDEM{}
	cached := NewCachedDEMSource(dem, 16)

	for i := 0; i < 5; i++ {
		z, err := cached.ElevationAt(10, 20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if z != 30 {
			t.Errorf("want 30, got %v", z)
		}
	}
	if dem.calls != 1 {
		t.Errorf("want underlying source queried once for a repeated point, got %d calls", dem.calls)
	}

	if _, err := cached.ElevationAt(1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dem.calls != 2 {
		t.Errorf("want a distinct point to reach the underlying source, got %d calls", dem.calls)
	}
}
