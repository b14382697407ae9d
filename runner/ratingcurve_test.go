package runner

import (
	"fmt"
	"math"
	"testing"

	"github.com/Dewberry/ripple1d"
)

type fakeResults struct {
	wse  map[string]float64
	flow map[string]float64
}

func key(profile, xs string) string { return profile + "|" + xs }

func (r fakeResults) WaterSurface(profile, xs string) (float64, error) {
	v, ok := r.wse[key(profile, xs)]
	if !ok {
		return 0, fmt.Errorf("no wse for %s/%s", profile, xs)
	}
	return v, nil
}

func (r fakeResults) Flow(profile, xs string) (float64, error) {
	v, ok := r.flow[key(profile, xs)]
	if !ok {
		return 0, fmt.Errorf("no flow for %s/%s", profile, xs)
	}
	return v, nil
}

func TestExtractRatingCurve(t *testing.T) {
	results := fakeResults{
		wse:  map[string]float64{key("f1", "us"): 105.3, key("f1", "ds"): 100.2},
		flow: map[string]float64{key("f1", "us"): 250},
	}
	rows, err := ExtractRatingCurve(results, []string{"f1"}, "us", "ds", 100, 95, 42, ripple1d.BCNormalDepth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.ReachID != 42 || row.BoundaryCondition != ripple1d.BCNormalDepth {
		t.Errorf("want reach 42 / nd, got %+v", row)
	}
	if math.Abs(row.USDepth-5.3) > 1e-9 {
		t.Errorf("want us depth 5.3, got %v", row.USDepth)
	}
	if math.Abs(row.DSDepth-5.2) > 1e-9 {
		t.Errorf("want ds depth 5.2, got %v", row.DSDepth)
	}
}

type fakeReprojector struct{ calls int }

func (f *fakeReprojector) Reproject(src, dst, epsg string, res float64) error {
	f.calls++
	return nil
}

func TestPostProcessDepthGridsTracksMissing(t *testing.T) {
	dir := ripple1d.SubModelDir{Root: "submodels/42", ID: "42"}
	repro := &fakeReprojector{}
	results := []DepthGridResult{
		{Depth: 3, Flow: 250, SourcePath: "raw/3_250.tif"},
		{Depth: 4, Flow: 300, SourcePath: ""},
	}
	processed, missing, err := PostProcessDepthGrids(repro, dir, results, "EPSG:5070", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(processed) != 1 || repro.calls != 1 {
		t.Errorf("want 1 processed grid, got %d (calls=%d)", len(processed), repro.calls)
	}
	if len(missing) != 1 || missing[0].Flow != 300 {
		t.Errorf("want 1 missing grid for flow 300, got %+v", missing)
	}
}
