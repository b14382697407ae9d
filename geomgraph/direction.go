package geomgraph

import (
	"math"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

// CorrectlyDrawn implements the direction check from spec.md §4.2: walking
// the cross-section's cut-line from its first vertex to its last, offset
// one unit to the geometric right of that direction. A correctly drawn
// section (left bank to right bank, looking downstream) lands that offset
// point at a lower river station on the reach than the section itself.
func CorrectlyDrawn(xs *ripple1d.CrossSection, reach *ripple1d.Reach) bool {
	if len(xs.CutLine) < 2 || len(reach.Geometry) < 2 {
		return true
	}
	d := direction(xs.CutLine[0], xs.CutLine[len(xs.CutLine)-1])
	right := rightOf(d)
	mid := pointAtFraction(xs.CutLine, 0.5)
	offset := geom.Point{X: mid.X + right.X, Y: mid.Y + right.Y}

	return nearestRiverStation(reach, offset) < xs.RiverStation
}

func direction(a, b geom.Point) geom.Point {
	dx, dy := b.X-a.X, b.Y-a.Y
	n := math.Sqrt(dx*dx + dy*dy)
	if n == 0 {
		return geom.Point{X: 1, Y: 0}
	}
	return geom.Point{X: dx / n, Y: dy / n}
}

func distance(a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// rightOf returns the unit vector 90° clockwise from dir (i.e. to the
// right of someone facing along dir), scaled to one unit.
func rightOf(dir geom.Point) geom.Point {
	return geom.Point{X: dir.Y, Y: -dir.X}
}

func nearestSegment(ls geom.LineString, p geom.Point) int {
	best, bestD := 0, math.Inf(1)
	for i := 0; i < len(ls)-1; i++ {
		d := pointToSegmentDistance(p, ls[i], ls[i+1])
		if d < bestD {
			bestD, best = d, i
		}
	}
	return best
}

func pointToSegmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	proj := geom.Point{X: a.X + t*dx, Y: a.Y + t*dy}
	return distance(p, proj)
}

// nearestRiverStation approximates the river station at the point on
// reach.Geometry nearest to p, by linear interpolation between the
// cross-sections bracketing that point's along-line fraction.
func nearestRiverStation(reach *ripple1d.Reach, p geom.Point) float64 {
	xss := reach.CrossSections()
	if len(xss) == 0 {
		return 0
	}
	if len(xss) == 1 {
		return xss[0].RiverStation
	}
	frac := fractionAlong(reach.Geometry, p)
	// xss is ordered by decreasing river station; index 0 is upstream.
	pos := frac * float64(len(xss)-1)
	lo := int(math.Floor(pos))
	if lo < 0 {
		lo = 0
	}
	if lo >= len(xss)-1 {
		return xss[len(xss)-1].RiverStation
	}
	t := pos - float64(lo)
	return xss[lo].RiverStation + t*(xss[lo+1].RiverStation-xss[lo].RiverStation)
}

func fractionAlong(ls geom.LineString, p geom.Point) float64 {
	if len(ls) < 2 {
		return 0
	}
	total := ls.Length()
	if total == 0 {
		return 0
	}
	i := nearestSegment(ls, p)
	var acc float64
	for j := 0; j < i; j++ {
		acc += segLength(ls[j], ls[j+1])
	}
	a, b := ls[i], ls[i+1]
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	var t float64
	if l2 > 0 {
		t = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
	}
	acc += t * segLength(a, b)
	return acc / total
}

// ReverseCrossSection returns a copy of xs with its cut-line vertex order
// reversed and its bank stations swapped accordingly, correcting a
// section that fails CorrectlyDrawn (spec.md §4.2).
func ReverseCrossSection(xs *ripple1d.CrossSection) *ripple1d.CrossSection {
	out := *xs
	rev := make(geom.LineString, len(xs.CutLine))
	for i, p := range xs.CutLine {
		rev[len(xs.CutLine)-1-i] = p
	}
	out.CutLine = rev

	maxSta := 0.0
	for _, se := range xs.StationElevation {
		if se.Station > maxSta {
			maxSta = se.Station
		}
	}
	revSE := make([]ripple1d.StationElevation, len(xs.StationElevation))
	for i, se := range xs.StationElevation {
		revSE[len(xs.StationElevation)-1-i] = ripple1d.StationElevation{
			Station:   maxSta - se.Station,
			Elevation: se.Elevation,
		}
	}
	out.StationElevation = revSE
	out.LeftBank, out.RightBank = maxSta-xs.RightBank, maxSta-xs.LeftBank
	return &out
}
