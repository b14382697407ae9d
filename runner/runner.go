// Package runner writes plan/flow files for a sub-model run and invokes
// the external HEC-RAS simulator, per spec.md §4.7.
package runner

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Dewberry/ripple1d"
	"github.com/cenkalti/backoff"
)

// defaultSlope is the normal-depth downstream boundary's default slope,
// per spec.md §4.7.
const defaultSlope = 0.001

// NextSuffix finds the next unused two-digit extension among existing
// refs, per spec.md §4.7's `.p01…p99`/`.f01…f99` auto-increment rule.
func NextSuffix(existing []ripple1d.FileRef) (string, error) {
	used := map[int]bool{}
	for _, r := range existing {
		n := string(r)
		if len(n) >= 1 {
			n = n[1:]
		}
		if v, err := strconv.Atoi(n); err == nil {
			used[v] = true
		}
	}
	for i := 1; i <= 99; i++ {
		if !used[i] {
			return fmt.Sprintf("%02d", i), nil
		}
	}
	return "", fmt.Errorf("runner: no unused plan/flow suffix in [01,99]")
}

// linspace returns n values evenly spaced from lo to hi inclusive.
func linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{hi}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

// NormalDepthInitial builds the flow/plan pair for spec.md §4.7's
// `normal_depth_initial` operation: n discharges linearly spaced from
// max(lowFlow,1) to highFlow, with a normal-depth downstream boundary at
// defaultSlope.
func NormalDepthInitial(river, reach string, riverStation float64, lowFlow, highFlow float64, nProfiles int) (*ripple1d.FlowFile, error) {
	if nProfiles < 1 {
		return nil, fmt.Errorf("runner: n_profiles must be >= 1, got %d", nProfiles)
	}
	lo := math.Max(lowFlow, 1)
	flows := linspace(lo, highFlow, nProfiles)

	names := make([]string, nProfiles)
	boundaries := make([]ripple1d.Boundary, nProfiles)
	for i := range flows {
		names[i] = fmt.Sprintf("f_%v", flows[i])
		boundaries[i] = ripple1d.Boundary{
			River:      river,
			Reach:      reach,
			ProfileNum: i + 1,
			DnType:     ripple1d.BoundaryNormalDepth,
			DnSlope:    defaultSlope,
		}
	}

	return &ripple1d.FlowFile{
		Title:       "normal depth initial",
		NumProfiles: nProfiles,
		ProfileNames: names,
		ReachFlows: []ripple1d.ReachFlow{
			{River: river, Reach: reach, RiverStation: riverStation, Flows: flows},
		},
		Boundaries: boundaries,
	}, nil
}

// RatingCurvePoint is one row read back from a prior run's rating curve,
// used by NormalDepthIncremental to interpolate flows at target depths.
type RatingCurvePoint struct {
	Flow  float64
	Depth float64
}

// NormalDepthIncremental builds the flow/plan pair for spec.md §4.7's
// `normal_depth_incremental` operation: depths incremented by depthInc ft
// from the floor rounded down to the nearest depthInc up to the max
// observed depth, with flows interpolated from priorCurve.
func NormalDepthIncremental(river, reach string, riverStation float64, priorCurve []RatingCurvePoint, depthInc float64) (*ripple1d.FlowFile, error) {
	if depthInc <= 0 {
		return nil, fmt.Errorf("runner: depth_inc must be > 0")
	}
	if len(priorCurve) < 2 {
		return nil, fmt.Errorf("runner: normal_depth_incremental needs at least 2 rating-curve points")
	}
	sorted := append([]RatingCurvePoint(nil), priorCurve...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Depth < sorted[j].Depth })

	minDepth := math.Floor(sorted[0].Depth/depthInc) * depthInc
	maxDepth := sorted[len(sorted)-1].Depth

	var depths []float64
	for d := minDepth; d <= maxDepth; d += depthInc {
		depths = append(depths, d)
	}

	flows := make([]float64, len(depths))
	for i, d := range depths {
		flows[i] = interpolateFlow(sorted, d)
	}

	names := make([]string, len(depths))
	boundaries := make([]ripple1d.Boundary, len(depths))
	for i := range depths {
		names[i] = fmt.Sprintf("f_%v-d_%v", flows[i], depths[i])
		boundaries[i] = ripple1d.Boundary{
			River:      river,
			Reach:      reach,
			ProfileNum: i + 1,
			DnType:     ripple1d.BoundaryNormalDepth,
			DnSlope:    defaultSlope,
		}
	}

	return &ripple1d.FlowFile{
		Title:       "normal depth incremental",
		NumProfiles: len(depths),
		ProfileNames: names,
		ReachFlows: []ripple1d.ReachFlow{
			{River: river, Reach: reach, RiverStation: riverStation, Flows: flows},
		},
		Boundaries: boundaries,
	}, nil
}

// interpolateFlow linearly interpolates the flow at depth d from a
// depth-sorted rating curve, clamping to the curve's endpoints.
func interpolateFlow(sorted []RatingCurvePoint, d float64) float64 {
	if d <= sorted[0].Depth {
		return sorted[0].Flow
	}
	last := sorted[len(sorted)-1]
	if d >= last.Depth {
		return last.Flow
	}
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if d >= a.Depth && d <= b.Depth {
			if b.Depth == a.Depth {
				return a.Flow
			}
			frac := (d - a.Depth) / (b.Depth - a.Depth)
			return a.Flow + frac*(b.Flow-a.Flow)
		}
	}
	return last.Flow
}

// KnownWSE builds the flow/plan pair for spec.md §4.7's `known_wse`
// operation: a grid of downstream WSE values crossed with the
// incremental-normal-depth flows, keeping only combinations where the
// target depth exceeds the depth the normal-depth run produced at that
// flow.
func KnownWSE(river, reach string, riverStation, dsThalweg float64, ndFlows []RatingCurvePoint, minEl, maxEl, depthInc float64) (*ripple1d.FlowFile, error) {
	if depthInc <= 0 {
		return nil, fmt.Errorf("runner: depth_inc must be > 0")
	}
	wseStart := math.Floor(minEl/depthInc) * depthInc

	var names []string
	var flows []float64
	var boundaries []ripple1d.Boundary
	profileNum := 0

	for _, fp := range ndFlows {
		for wse := wseStart; wse <= maxEl; wse += depthInc {
			targetDepth := wse - dsThalweg
			if targetDepth <= fp.Depth {
				continue
			}
			profileNum++
			flows = append(flows, fp.Flow)
			names = append(names, fmt.Sprintf("f_%v-z_%s", fp.Flow, dotToUnderscore(wse)))
			boundaries = append(boundaries, ripple1d.Boundary{
				River:      river,
				Reach:      reach,
				ProfileNum: profileNum,
				DnType:     ripple1d.BoundaryKnownWSE,
				DnKnownWS:  wse,
			})
		}
	}

	return &ripple1d.FlowFile{
		Title:       "known wse",
		NumProfiles: profileNum,
		ProfileNames: names,
		ReachFlows: []ripple1d.ReachFlow{
			{River: river, Reach: reach, RiverStation: riverStation, Flows: flows},
		},
		Boundaries: boundaries,
	}, nil
}

func dotToUnderscore(v float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", "_")
}

// Simulator invokes the external HEC-RAS engine against a project/plan.
type Simulator interface {
	// Compute runs plan to completion or returns an error
	// classified per spec.md §4.7.
	Compute(ctx context.Context, projectPath string, plan ripple1d.FileRef, timeout time.Duration) error
}

// RASController is the Windows COM-bound simulator, per spec.md §4.7's
// invocation contract: bind `RAS{ver}.HECRASCONTROLLER`, open the
// project, call Compute_CurrentPlan, poll Compute_Complete at 200ms.
//
// COM binding is platform-specific and lives behind this interface; ComBinder
// is nil on non-Windows builds, which always return an error from Compute.
type RASController struct {
	Version   string
	ComBinder func(progID string) (RASComObject, error)
}

// RASComObject is the subset of the HECRASCONTROLLER COM interface this
// engine drives.
type RASComObject interface {
	OpenProject(path string) error
	SetPlan(plan string) error
	ComputeCurrentPlan() error
	ComputeComplete() (bool, error)
	QuitRAS() error
}

const pollInterval = 200 * time.Millisecond

func (r *RASController) Compute(ctx context.Context, projectPath string, plan ripple1d.FileRef, timeout time.Duration) error {
	if r.ComBinder == nil {
		return fmt.Errorf("runner: no COM binder configured for this platform")
	}
	com, err := r.ComBinder(fmt.Sprintf("RAS%s.HECRASCONTROLLER", r.Version))
	if err != nil {
		return fmt.Errorf("runner: bind HECRASCONTROLLER: %w", err)
	}
	defer com.QuitRAS()

	if err := com.OpenProject(projectPath); err != nil {
		return fmt.Errorf("runner: open project: %w", err)
	}
	if err := com.SetPlan(string(plan)); err != nil {
		return fmt.Errorf("runner: set plan: %w", err)
	}
	if err := com.ComputeCurrentPlan(); err != nil {
		return fmt.Errorf("runner: compute current plan: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewConstantBackOff(pollInterval)
	err = backoff.RetryNotify(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ripple1d.ErrRASComputeTimeout)
		}
		done, err := com.ComputeComplete()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("runner: poll compute: %w", err))
		}
		if !done {
			return fmt.Errorf("runner: still computing")
		}
		return nil
	}, b, func(error, time.Duration) {})
	if ctx.Err() != nil {
		return ripple1d.ErrRASComputeTimeout
	}
	return err
}

// classifyComputeMsgs scans a plan's computeMsgs.txt contents and returns
// the first matching sentinel error from spec.md §4.7, or nil if none of
// the known failure markers appear.
func classifyComputeMsgs(text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "error generating mesh"):
		return ripple1d.ErrRASComputeMeshError
	case strings.Contains(lower, "geometry writer failed"), strings.Contains(lower, "error processing geometry"):
		return ripple1d.ErrRASGeometryError
	case strings.Contains(lower, "error executing: storeallmaps"):
		return ripple1d.ErrRASStoreAllMapsError
	case strings.Contains(lower, "error:"):
		return ripple1d.ErrRASComputeError
	}
	return nil
}

// ClassifyComputeMsgsFile reads path and classifies its contents, per
// spec.md §4.7.
func ClassifyComputeMsgsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("runner: read computeMsgs: %w", err)
	}
	return classifyComputeMsgs(string(data))
}

// ComputeTimeout wraps a timed-out Simulator.Compute call in
// ripple1d.ErrRASComputeTimeout, per spec.md §4.7.
func ComputeTimeout(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ripple1d.ErrRASComputeTimeout, err)
}
