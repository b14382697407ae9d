// Package geomgraph implements the derived geometric operations over a
// ripple1d.GeometryFile: concave-hull construction, cross-section
// direction correction, bank encompassment and thalweg computation
// (spec.md §4.2).
package geomgraph

import (
	"math"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

// ConcaveHull builds the polygon described in spec.md §4.2: the first
// cross-section's vertices, then the left bank endpoints in station
// order, then the last cross-section reversed, then the right bank
// endpoints reversed. xss must already be sorted by decreasing river
// station (the order Reach.CrossSections returns).
func ConcaveHull(xss []*ripple1d.CrossSection) geom.Polygon {
	if len(xss) == 0 {
		return nil
	}
	if len(xss) == 1 {
		return geom.Polygon{closedRing(xss[0].CutLine)}
	}

	first := xss[0].CutLine
	last := xss[len(xss)-1].CutLine

	var leftBank, rightBank []geom.Point
	for _, xs := range xss {
		l, r, ok := bankPoints(xs)
		if !ok {
			continue
		}
		leftBank = append(leftBank, l)
		rightBank = append(rightBank, r)
	}

	var ring []geom.Point
	ring = append(ring, []geom.Point(first)...)
	ring = append(ring, leftBank...)
	ring = append(ring, reversed(last)...)
	ring = append(ring, reversedPoints(rightBank)...)
	if len(ring) > 0 && !ring[0].Equals(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return geom.Polygon{ring}
}

// CombineHulls merges the closing hulls of reaches meeting at a junction,
// per spec.md §4.2's "for a set spanning a junction" rule.
func CombineHulls(hulls ...geom.Polygon) geom.Polygon {
	var merged geom.Polygon
	for _, h := range hulls {
		merged = append(merged, h...)
	}
	return merged
}

func closedRing(ls geom.LineString) []geom.Point {
	pts := append([]geom.Point{}, []geom.Point(ls)...)
	if len(pts) > 0 && !pts[0].Equals(pts[len(pts)-1]) {
		pts = append(pts, pts[0])
	}
	return pts
}

func reversed(ls geom.LineString) []geom.Point {
	out := make([]geom.Point, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}

func reversedPoints(pts []geom.Point) []geom.Point {
	out := make([]geom.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// bankPoints interpolates the left and right bank station points along a
// cross-section's cut-line, returning ok=false if the bank stations are
// not bracketed by the station-elevation series.
func bankPoints(xs *ripple1d.CrossSection) (left, right geom.Point, ok bool) {
	if len(xs.StationElevation) == 0 || len(xs.CutLine) < 2 {
		return geom.Point{}, geom.Point{}, false
	}
	left, okL := pointAtStation(xs, xs.LeftBank)
	right, okR := pointAtStation(xs, xs.RightBank)
	return left, right, okL && okR
}

// pointAtStation maps a station value along the station-elevation series
// onto the equivalent point along the cut-line, assuming both are
// parameterized proportionally to cumulative length.
func pointAtStation(xs *ripple1d.CrossSection, station float64) (geom.Point, bool) {
	se := xs.StationElevation
	if len(se) == 0 {
		return geom.Point{}, false
	}
	minSta, maxSta := se[0].Station, se[len(se)-1].Station
	if maxSta == minSta {
		return geom.Point{}, false
	}
	frac := (station - minSta) / (maxSta - minSta)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return pointAtFraction(xs.CutLine, frac), true
}

func pointAtFraction(ls geom.LineString, frac float64) geom.Point {
	if len(ls) == 0 {
		return geom.Point{}
	}
	if len(ls) == 1 {
		return ls[0]
	}
	total := ls.Length()
	target := total * frac
	var acc float64
	for i := 1; i < len(ls); i++ {
		seg := segLength(ls[i-1], ls[i])
		if acc+seg >= target || i == len(ls)-1 {
			if seg == 0 {
				return ls[i]
			}
			t := (target - acc) / seg
			return geom.Point{
				X: ls[i-1].X + t*(ls[i].X-ls[i-1].X),
				Y: ls[i-1].Y + t*(ls[i].Y-ls[i-1].Y),
			}
		}
		acc += seg
	}
	return ls[len(ls)-1]
}

func segLength(a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// BankEncompassed reports whether centerlineStation, the caller-supplied
// station along xs's cut-line where the channel centerline crosses it,
// falls between the left and right bank stations (inclusive), per spec.md
// §4.2.
func BankEncompassed(xs *ripple1d.CrossSection, centerlineStation float64) bool {
	lo, hi := xs.LeftBank, xs.RightBank
	if lo > hi {
		lo, hi = hi, lo
	}
	return centerlineStation >= lo && centerlineStation <= hi
}

// Thalweg returns the minimum elevation in the station-elevation series
// between the bank stations, and its station, per spec.md §4.2. ok is
// false if the cross-section has no station-elevation data.
func Thalweg(xs *ripple1d.CrossSection) (station, elevation float64, ok bool) {
	lo, hi := xs.LeftBank, xs.RightBank
	if lo > hi {
		lo, hi = hi, lo
	}
	elevation = math.Inf(1)
	for _, p := range xs.StationElevation {
		if p.Station < lo || p.Station > hi {
			continue
		}
		ok = true
		if p.Elevation < elevation {
			elevation = p.Elevation
			station = p.Station
		}
	}
	return station, elevation, ok
}
