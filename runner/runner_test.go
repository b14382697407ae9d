package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dewberry/ripple1d"
)

func TestNextSuffix(t *testing.T) {
	got, err := NextSuffix([]ripple1d.FileRef{"p01", "p02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "03" {
		t.Errorf("want 03, got %s", got)
	}
}

func TestNormalDepthInitial(t *testing.T) {
	ff, err := NormalDepthInitial("R", "Main", 100, 50, 500, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ff.NumProfiles != 4 {
		t.Fatalf("want 4 profiles, got %d", ff.NumProfiles)
	}
	flows := ff.ReachFlows[0].Flows
	if flows[0] != 50 || flows[len(flows)-1] != 500 {
		t.Errorf("want flows spanning [50,500], got %v", flows)
	}
	for _, b := range ff.Boundaries {
		if b.DnType != ripple1d.BoundaryNormalDepth || b.DnSlope != defaultSlope {
			t.Errorf("want normal-depth boundary at default slope, got %+v", b)
		}
	}
}

func TestNormalDepthInitialFloorsLowFlow(t *testing.T) {
	ff, err := NormalDepthInitial("R", "Main", 100, 0, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ff.ReachFlows[0].Flows[0] != 1 {
		t.Errorf("want low flow floored to 1, got %v", ff.ReachFlows[0].Flows[0])
	}
}

func TestNormalDepthIncremental(t *testing.T) {
	curve := []RatingCurvePoint{
		{Flow: 100, Depth: 1.2},
		{Flow: 200, Depth: 2.4},
		{Flow: 300, Depth: 3.6},
	}
	ff, err := NormalDepthIncremental("R", "Main", 100, curve, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	depths := ff.ReachFlows[0].Flows
	if len(depths) == 0 {
		t.Fatal("want at least one profile")
	}
	if ff.NumProfiles != len(depths) {
		t.Errorf("want NumProfiles to match flow count, got %d vs %d", ff.NumProfiles, len(depths))
	}
}

func TestKnownWSESuppressesInfeasibleProfiles(t *testing.T) {
	ndFlows := []RatingCurvePoint{{Flow: 100, Depth: 5}}
	ff, err := KnownWSE("R", "Main", 100, 0, ndFlows, 0, 10, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range ff.Boundaries {
		if b.DnKnownWS <= 5 {
			t.Errorf("want only WSE > normal-depth depth (5) kept, got %v", b.DnKnownWS)
		}
	}
}

func TestClassifyComputeMsgs(t *testing.T) {
	cases := []struct {
		text string
		want error
	}{
		{"WARNING: error generating mesh for 2D area", ripple1d.ErrRASComputeMeshError},
		{"geometry writer failed", ripple1d.ErrRASGeometryError},
		{"error executing: storeallmaps", ripple1d.ErrRASStoreAllMapsError},
		{"ERROR: unable to compute", ripple1d.ErrRASComputeError},
		{"computed normally, no issues", nil},
	}
	for _, c := range cases {
		got := classifyComputeMsgs(c.text)
		if !errors.Is(got, c.want) && !(got == nil && c.want == nil) {
			t.Errorf("classifyComputeMsgs(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

type fakeCom struct {
	completeAfter int
	calls         int
}

func (f *fakeCom) OpenProject(string) error      { return nil }
func (f *fakeCom) SetPlan(string) error           { return nil }
func (f *fakeCom) ComputeCurrentPlan() error      { return nil }
func (f *fakeCom) QuitRAS() error                 { return nil }
func (f *fakeCom) ComputeComplete() (bool, error) {
	f.calls++
	return f.calls >= f.completeAfter, nil
}

func TestRASControllerComputePolls(t *testing.T) {
	com := &fakeCom{completeAfter: 2}
	rc := &RASController{
		Version:   "631",
		ComBinder: func(string) (RASComObject, error) { return com, nil },
	}
	err := rc.Compute(context.Background(), "proj.prj", "p01", 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if com.calls < 2 {
		t.Errorf("want at least 2 poll calls, got %d", com.calls)
	}
}

func TestRASControllerNoBinder(t *testing.T) {
	rc := &RASController{Version: "631"}
	if err := rc.Compute(context.Background(), "proj.prj", "p01", time.Second); err == nil {
		t.Error("want error when no COM binder is configured")
	}
}
