// Package conflate implements the conflation algorithm from spec.md §4.4:
// mapping National Water Model network reaches onto HEC-RAS source-model
// cross-section spans, detecting eclipsed reaches, fixing up junctions
// and computing per-reach agreement metrics.
package conflate

import (
	"fmt"
	"math"
	"sort"

	"github.com/Dewberry/ripple1d"
	"github.com/Dewberry/ripple1d/geomgraph"
	"github.com/Dewberry/ripple1d/network"
	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/stat"
)

// bufferDistance is the envelope buffer, in model units, used to select
// candidate cross-sections local to the network (spec.md §4.4 step 1).
const bufferDistance = 1000.0

// advanceStep and maxAdvance implement the "advance the start point along
// the centerline by 5%... until 95%" retry loop of spec.md §4.4 step 4.
const advanceStep = 0.05
const maxAdvance = 0.95

// Options configures a Conflate run.
type Options struct {
	NetworkFile    string
	SourceModel    string
	SourceGeometry string
	EngineVersion  string
}

// Conflate maps every network reach of tree that overlaps g's rivers to a
// ripple1d.ReachConflation, per spec.md §4.4.
func Conflate(g *ripple1d.GeometryFile, tree *network.Tree, candidates []*ripple1d.NetworkReach, opts Options) (*ripple1d.ConflationResult, error) {
	result := &ripple1d.ConflationResult{
		Metadata: ripple1d.ConflationMetadata{
			NetworkFile:    opts.NetworkFile,
			SourceModel:    opts.SourceModel,
			SourceGeometry: opts.SourceGeometry,
			EngineVersion:  opts.EngineVersion,
		},
		Reaches: map[int]*ripple1d.ReachConflation{},
	}

	for rr, reach := range g.Reaches {
		if err := conflateReach(g, rr, reach, tree, candidates, result); err != nil {
			return nil, fmt.Errorf("conflate: river-reach %s/%s: %w", rr.River, rr.Reach, err)
		}
	}

	markEclipsedReaches(tree, result)
	fixUpJunctions(g, tree, result)
	dropDegenerate(result)

	for _, rc := range result.NonEclipsed() {
		if err := validate(rc); err != nil {
			rc.Err = err.Error()
			continue
		}
		computeMetrics(tree, candidates, result, rc)
	}
	return result, nil
}

// conflateReach conflates a single source-model river/reach, designating
// us_xs/ds_xs for each network reach it overlaps, per spec.md §4.4 steps
// 1-4.
func conflateReach(g *ripple1d.GeometryFile, rr ripple1d.RiverReach, reach *ripple1d.Reach, tree *network.Tree, candidates []*ripple1d.NetworkReach, result *ripple1d.ConflationResult) error {
	xss := correctlyDrawnXS(reach)
	if len(xss) == 0 {
		return nil
	}
	centerline := clipCenterlineToXS(reach.Geometry, xss)
	if len(centerline) < 2 {
		return nil
	}

	startPt := centerline[0]
	endPt := centerline[len(centerline)-1]

	usCandidates := network.NearestLineToPoint(candidates, [2]float64{startPt.X, startPt.Y}, 1)
	dsCandidates := network.NearestLineToPoint(candidates, [2]float64{endPt.X, endPt.Y}, 5)
	if len(usCandidates) == 0 || len(dsCandidates) == 0 {
		return nil
	}

	chain, err := findChainWithRetry(tree, centerline, candidates, dsCandidates)
	if err != nil {
		return nil // no conflation for this river-reach; not a hard failure
	}

	mostUpstream := isMostUpstreamOrder1(candidates, tree, chain[0])

	for _, id := range chain {
		nr, ok := tree.Reach(id)
		if !ok {
			continue
		}
		intersecting := intersectingXS(xss, nr)
		if len(intersecting) == 0 {
			continue
		}
		usXS, dsXS := designateEndpoints(intersecting, nr)
		if mostUpstream && nr.StreamOrder == 1 && id == chain[0] {
			usXS = promoteUpstreamOneMore(xss, usXS)
		}

		rc := &ripple1d.ReachConflation{
			NetworkID:   id,
			NetworkToID: nr.ToID,
			HighFlow:    nr.F100Year,
			LowFlow:     nr.HighFlowThreshold,
			GageURL:     nr.Gage,
			USXS:        toRef(usXS),
			DSXS:        toRef(dsXS),
		}
		rc.Metrics = offsetMetrics(intersecting, nr, reach.Geometry, usXS, dsXS)
		if existing, ok := result.Reaches[id]; !ok || betterCoverage(rc, existing) {
			result.Reaches[id] = rc
		}
	}
	return nil
}

func correctlyDrawnXS(reach *ripple1d.Reach) []*ripple1d.CrossSection {
	var out []*ripple1d.CrossSection
	for _, xs := range reach.CrossSections() {
		if geomgraph.CorrectlyDrawn(xs, reach) {
			out = append(out, xs)
		}
	}
	return out
}

// clipCenterlineToXS clips ls to the span bracketed by the first and last
// cross-section cut-lines, per spec.md §4.4 step 2. xss is ordered by
// decreasing river station, so the most-downstream section brackets the
// tail and the most-upstream brackets the head.
func clipCenterlineToXS(ls geom.LineString, xss []*ripple1d.CrossSection) geom.LineString {
	if len(ls) < 2 || len(xss) == 0 {
		return ls
	}
	headIdx := nearestVertex(ls, midpoint(xss[0].CutLine))
	tailIdx := nearestVertex(ls, midpoint(xss[len(xss)-1].CutLine))
	if headIdx > tailIdx {
		headIdx, tailIdx = tailIdx, headIdx
	}
	if tailIdx <= headIdx {
		return ls
	}
	return ls[headIdx : tailIdx+1]
}

func midpoint(ls geom.LineString) geom.Point {
	if len(ls) == 0 {
		return geom.Point{}
	}
	return ls[len(ls)/2]
}

func nearestVertex(ls geom.LineString, p geom.Point) int {
	best, bestD := 0, math.Inf(1)
	for i, v := range ls {
		dx, dy := v.X-p.X, v.Y-p.Y
		d := dx*dx + dy*dy
		if d < bestD {
			bestD, best = d, i
		}
	}
	return best
}

// findChainWithRetry implements spec.md §4.4 step 4: try the walker from
// the nearest upstream match; if no valid chain results, advance the
// start point along the centerline by advanceStep of its length and
// retry, up to maxAdvance exhausted; the downstream side tries each of
// its top-5 nearest candidates in turn.
func findChainWithRetry(tree *network.Tree, centerline geom.LineString, candidates []*ripple1d.NetworkReach, dsCandidates []*ripple1d.NetworkReach) ([]int, error) {
	var lastErr error
	length := centerline.Length()
	for frac := 0.0; frac <= maxAdvance+1e-9; frac += advanceStep {
		startPt := pointAtDistance(centerline, frac*length)
		us := network.NearestLineToPoint(candidates, [2]float64{startPt.X, startPt.Y}, 1)
		if len(us) == 0 {
			continue
		}
		for _, ds := range dsCandidates {
			chain, err := network.Walk(tree, us[0].ID, ds.ID, 0)
			if err == nil {
				return chain, nil
			}
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = ripple1d.ErrInvalidNetworkPath
	}
	return nil, lastErr
}

func pointAtDistance(ls geom.LineString, target float64) geom.Point {
	if len(ls) == 0 {
		return geom.Point{}
	}
	var acc float64
	for i := 1; i < len(ls); i++ {
		dx, dy := ls[i].X-ls[i-1].X, ls[i].Y-ls[i-1].Y
		seg := math.Sqrt(dx*dx + dy*dy)
		if acc+seg >= target || i == len(ls)-1 {
			if seg == 0 {
				return ls[i]
			}
			t := (target - acc) / seg
			return geom.Point{X: ls[i-1].X + t*dx, Y: ls[i-1].Y + t*dy}
		}
		acc += seg
	}
	return ls[len(ls)-1]
}

func intersectingXS(xss []*ripple1d.CrossSection, nr *ripple1d.NetworkReach) []*ripple1d.CrossSection {
	var out []*ripple1d.CrossSection
	for _, xs := range xss {
		if cutLineIntersectsBuffer(xs, nr, bufferDistance) {
			out = append(out, xs)
		}
	}
	return out
}

func cutLineIntersectsBuffer(xs *ripple1d.CrossSection, nr *ripple1d.NetworkReach, buffer float64) bool {
	for _, cp := range xs.CutLine {
		for _, np := range nr.Geometry {
			dx, dy := cp.X-np.X, cp.Y-np.Y
			if dx*dx+dy*dy <= buffer*buffer {
				return true
			}
		}
	}
	return false
}

// designateEndpoints picks us_xs as the intersecting section with the
// highest river station and ds_xs as the downstream end of the longest
// connected run along nr, per spec.md §4.4.
func designateEndpoints(xss []*ripple1d.CrossSection, nr *ripple1d.NetworkReach) (us, ds *ripple1d.CrossSection) {
	sorted := append([]*ripple1d.CrossSection{}, xss...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RiverStation > sorted[j].RiverStation })
	us = sorted[0]

	run := longestConnectedRun(sorted)
	ds = run[len(run)-1]
	return us, ds
}

// longestConnectedRun splits xss (already sorted descending by station)
// into contiguous runs with no station gap wider than maxGap and returns
// the run with the greatest total station span (first station minus
// last); on equal spans the earlier, upstream run is kept. Per spec.md
// §4.4's "longest connected run... prefer greatest total coverage" rule.
func longestConnectedRun(xss []*ripple1d.CrossSection) []*ripple1d.CrossSection {
	if len(xss) == 0 {
		return nil
	}
	const maxGap = bufferDistance

	var best, current []*ripple1d.CrossSection
	current = append(current, xss[0])
	best = current
	for i := 1; i < len(xss); i++ {
		if xss[i-1].RiverStation-xss[i].RiverStation > maxGap {
			if span(current) > span(best) {
				best = current
			}
			current = nil
		}
		current = append(current, xss[i])
	}
	if span(current) > span(best) {
		best = current
	}
	return best
}

func span(xss []*ripple1d.CrossSection) float64 {
	if len(xss) == 0 {
		return 0
	}
	return xss[0].RiverStation - xss[len(xss)-1].RiverStation
}

func isMostUpstreamOrder1(candidates []*ripple1d.NetworkReach, tree *network.Tree, id int) bool {
	nr, ok := tree.Reach(id)
	if !ok || nr.StreamOrder != 1 {
		return false
	}
	for _, c := range candidates {
		if c.ToID == id {
			return false
		}
	}
	return true
}

// promoteUpstreamOneMore advances us_xs one section further upstream
// (higher river station) than the designated one, when such a section
// exists in xss, per spec.md §4.4.
func promoteUpstreamOneMore(xss []*ripple1d.CrossSection, us *ripple1d.CrossSection) *ripple1d.CrossSection {
	sorted := append([]*ripple1d.CrossSection{}, xss...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RiverStation > sorted[j].RiverStation })
	for i, xs := range sorted {
		if xs == us && i > 0 {
			return sorted[i-1]
		}
	}
	return us
}

func toRef(xs *ripple1d.CrossSection) *ripple1d.XSRef {
	if xs == nil {
		return nil
	}
	minE, maxE := math.Inf(1), math.Inf(-1)
	for _, p := range xs.StationElevation {
		if p.Elevation < minE {
			minE = p.Elevation
		}
		if p.Elevation > maxE {
			maxE = p.Elevation
		}
	}
	return &ripple1d.XSRef{
		River:        xs.River,
		Reach:        xs.Reach,
		XSID:         xs.RiverStation,
		MinElevation: minE,
		MaxElevation: maxE,
	}
}

// betterCoverage reports whether candidate has a wider us_xs/ds_xs span
// than the existing conflation, used when two source river-reaches both
// claim the same network reach.
func betterCoverage(candidate, existing *ripple1d.ReachConflation) bool {
	if candidate.USXS == nil || candidate.DSXS == nil {
		return false
	}
	if existing.USXS == nil || existing.DSXS == nil {
		return true
	}
	return (candidate.USXS.XSID - candidate.DSXS.XSID) > (existing.USXS.XSID - existing.DSXS.XSID)
}

// markEclipsedReaches implements spec.md §4.4's eclipsed-reach detection:
// for each pair of conflated reaches where ds_xs(a) == us_xs(b), every
// intermediate network reach on the walker's path between them is
// eclipsed.
func markEclipsedReaches(tree *network.Tree, result *ripple1d.ConflationResult) {
	ids := sortedIDs(result)
	for _, a := range ids {
		rcA := result.Reaches[a]
		if rcA.DSXS == nil {
			continue
		}
		for _, b := range ids {
			if a == b {
				continue
			}
			rcB := result.Reaches[b]
			if rcB.USXS == nil || !sameXS(rcA.DSXS, rcB.USXS) {
				continue
			}
			chain, err := network.Walk(tree, a, b, 0)
			if err != nil || len(chain) < 3 {
				continue
			}
			for _, mid := range chain[1 : len(chain)-1] {
				rc, ok := result.Reaches[mid]
				if !ok {
					nr, found := tree.Reach(mid)
					if !found {
						continue
					}
					rc = &ripple1d.ReachConflation{NetworkID: mid, NetworkToID: nr.ToID}
					result.Reaches[mid] = rc
				}
				rc.Eclipsed = true
				rc.USXS, rc.DSXS = nil, nil
			}
		}
	}
}

func sameXS(a, b *ripple1d.XSRef) bool {
	return a.River == b.River && a.Reach == b.Reach && a.XSID == b.XSID
}

// fixUpJunctions implements spec.md §4.4's junction fix-up: if two
// conflated tribs share a downstream network reach and a confluence
// exists in the source geometry, rewrite the parent's us_xs and both
// tribs' ds_xs to the cross-section at the confluence.
func fixUpJunctions(g *ripple1d.GeometryFile, tree *network.Tree, result *ripple1d.ConflationResult) {
	byParent := map[int][]int{}
	for id, rc := range result.Reaches {
		if rc.Eclipsed {
			continue
		}
		byParent[rc.NetworkToID] = append(byParent[rc.NetworkToID], id)
	}
	for parentID, tribIDs := range byParent {
		if len(tribIDs) < 2 {
			continue
		}
		parentRC, ok := result.Reaches[parentID]
		if !ok {
			continue
		}
		var confluenceXS *ripple1d.XSRef
		for _, j := range g.Junctions {
			if len(j.Upstream) >= 2 && len(j.Downstream) >= 1 {
				if r, ok := g.Reach(j.Downstream[0].RiverReach); ok {
					xss := r.CrossSections()
					sort.Slice(xss, func(i, k int) bool { return xss[i].RiverStation > xss[k].RiverStation })
					if len(xss) > 0 {
						confluenceXS = toRef(xss[0])
					}
				}
				break
			}
		}
		if confluenceXS == nil {
			continue
		}
		parentRC.USXS = confluenceXS
		for _, tid := range tribIDs {
			result.Reaches[tid].DSXS = confluenceXS
		}
	}
}

// dropDegenerate implements spec.md §4.4's clean-up: drop any
// non-eclipsed entry where us_xs == ds_xs.
func dropDegenerate(result *ripple1d.ConflationResult) {
	for id, rc := range result.Reaches {
		if rc.Eclipsed {
			continue
		}
		if rc.USXS != nil && rc.DSXS != nil && sameXS(rc.USXS, rc.DSXS) {
			delete(result.Reaches, id)
		}
	}
}

// validate implements spec.md §4.4's inverted-stationing check.
func validate(rc *ripple1d.ReachConflation) error {
	if rc.USXS == nil || rc.DSXS == nil {
		return nil
	}
	if rc.USXS.River == rc.DSXS.River && rc.USXS.Reach == rc.DSXS.Reach && rc.USXS.XSID < rc.DSXS.XSID {
		return fmt.Errorf("network reach %d: us_xs %.2f < ds_xs %.2f on %s/%s: %w",
			rc.NetworkID, rc.USXS.XSID, rc.DSXS.XSID, rc.USXS.River, rc.USXS.Reach, ripple1d.ErrBadConflation)
	}
	return nil
}

func sortedIDs(result *ripple1d.ConflationResult) []int {
	ids := make([]int, 0, len(result.Reaches))
	for id := range result.Reaches {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// offsetMetrics computes the centerline_offset/thalweg_offset descriptive
// stats and coverage fraction for one conflated network reach, per
// spec.md §4.4.
func offsetMetrics(xss []*ripple1d.CrossSection, nr *ripple1d.NetworkReach, centerline geom.LineString, usXS, dsXS *ripple1d.CrossSection) *ripple1d.ReachConflationMetrics {
	var centerlineOffsets, thalwegOffsets []float64
	for _, xs := range xss {
		mid := midpoint(xs.CutLine)
		netPt := nearestPointOnLine(nr.Geometry, mid)
		centerlineOffsets = append(centerlineOffsets, dist(netPt, nearestPointOnLine(centerline, mid)))
		if sta, _, ok := geomgraph.Thalweg(xs); ok {
			se := xs.StationElevation
			frac := 0.5
			if width := se[len(se)-1].Station - se[0].Station; width != 0 {
				frac = (sta - se[0].Station) / width
			}
			thalwegPt := pointAtDistance(xs.CutLine, frac*xs.CutLine.Length())
			thalwegOffsets = append(thalwegOffsets, dist(netPt, thalwegPt))
		}
	}

	m := &ripple1d.ReachConflationMetrics{
		CenterlineOffset:  descriptiveStats(centerlineOffsets),
		ThalwegOffset:     descriptiveStats(thalwegOffsets),
		OverlappedReaches: map[int]float64{},
	}
	networkLen := nr.Geometry.Length()
	if networkLen > 0 && usXS != nil && dsXS != nil {
		m.CoverageStart = projectedStation(nr.Geometry, midpoint(usXS.CutLine)) / networkLen
		m.CoverageEnd = math.Min(1, projectedStation(nr.Geometry, midpoint(dsXS.CutLine))/networkLen)
	}
	return m
}

func nearestPointOnLine(ls geom.LineString, p geom.Point) geom.Point {
	if len(ls) == 0 {
		return p
	}
	i := nearestVertex(ls, p)
	return ls[i]
}

func projectedStation(ls geom.LineString, p geom.Point) float64 {
	i := nearestVertex(ls, p)
	var acc float64
	for j := 0; j < i; j++ {
		dx, dy := ls[j+1].X-ls[j].X, ls[j+1].Y-ls[j].Y
		acc += math.Sqrt(dx*dx + dy*dy)
	}
	return acc
}

func dist(a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// computeMetrics fills in the lengths/overlap/eclipsed fields of a
// ReachConflation's metrics block, computed after eclipsed-reach
// detection and junction fix-up have settled the final reach set, per
// spec.md §4.4.
func computeMetrics(tree *network.Tree, candidates []*ripple1d.NetworkReach, result *ripple1d.ConflationResult, rc *ripple1d.ReachConflation) {
	nr, ok := tree.Reach(rc.NetworkID)
	if !ok {
		return
	}
	m := rc.Metrics
	if m == nil {
		m = &ripple1d.ReachConflationMetrics{OverlappedReaches: map[int]float64{}}
	}
	networkLen := nr.Geometry.Length()
	m.LengthNetwork = networkLen
	if rc.USXS != nil && rc.DSXS != nil {
		m.LengthRAS = math.Abs(rc.USXS.XSID - rc.DSXS.XSID)
		if networkLen > 0 {
			m.NetworkToRASRatio = m.LengthRAS / networkLen
		}
	}

	for _, c := range candidates {
		if c.ID == rc.NetworkID {
			continue
		}
		if overlap := overlapLength(nr, c); overlap > 0 {
			m.OverlappedReaches[c.ID] = overlap
		}
	}
	for id, erc := range result.Reaches {
		if erc.Eclipsed && erc.NetworkToID == rc.NetworkID {
			m.EclipsedReaches = append(m.EclipsedReaches, id)
		}
	}
	sort.Ints(m.EclipsedReaches)

	rc.Metrics = m
}

func overlapLength(a, b *ripple1d.NetworkReach) float64 {
	ba, bb := a.Geometry.Bounds(), b.Geometry.Bounds()
	if ba == nil || bb == nil || !ba.Overlaps(bb) {
		return 0
	}
	return math.Min(a.Geometry.Length(), b.Geometry.Length())
}

// descriptiveStats computes the summary statistics from spec.md §4.4's
// metrics block over a sample of per-cross-section offsets.
func descriptiveStats(x []float64) ripple1d.DescriptiveStats {
	if len(x) == 0 {
		return ripple1d.DescriptiveStats{}
	}
	sorted := append([]float64{}, x...)
	sort.Float64s(sorted)
	mean := stat.Mean(x, nil)
	sd := stat.StdDev(x, nil)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return ripple1d.DescriptiveStats{
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		StdDev: sd,
		N:      len(x),
	}
}
