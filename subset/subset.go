// Package subset builds a reach-scoped sub-model GeometryFile from a
// source GeometryFile and a ripple1d.ReachConflation, per spec.md §4.5.
package subset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Dewberry/ripple1d"
	"github.com/Dewberry/ripple1d/geomgraph"
	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
)

// maxJunctionHops bounds the reach-chain walk, mirroring the network
// walker's default hop bound (spec.md §4.5 step 1).
const maxJunctionHops = 100

// Subset builds the sub-model GeometryFile for one network reach,
// identified by its NWM id, spanning from usRR/usXS to dsRR/dsXS in g's
// junction graph, per spec.md §4.5.
func Subset(g *ripple1d.GeometryFile, nwmID int, usRR, dsRR ripple1d.RiverReach, usXSID, dsXSID float64, crs string) (*ripple1d.GeometryFile, error) {
	chain, err := reachChain(g, usRR, dsRR)
	if err != nil {
		return nil, err
	}

	reaches := make([]*ripple1d.Reach, len(chain))
	for i, rr := range chain {
		reach, ok := g.Reach(rr)
		if !ok {
			return nil, fmt.Errorf("subset: reach %s/%s not found in source geometry", rr.River, rr.Reach)
		}
		reaches[i] = reach
	}

	// Each source reach's stationing is local to itself; chaining from
	// us_river_reach to ds_river_reach must keep the combined sequence
	// strictly decreasing downstream, so every reach is shifted up by the
	// total span of everything downstream of it: the running maximum
	// accumulates back-to-front (spec.md §4.5 step 1).
	shifts := make([]float64, len(chain))
	runningMax := 0.0
	for i := len(chain) - 1; i >= 0; i-- {
		shifts[i] = runningMax
		if len(reaches[i].Nodes) == 0 {
			continue
		}
		span := reaches[i].Nodes[0].RiverStation() - reaches[i].Nodes[len(reaches[i].Nodes)-1].RiverStation()
		jl := 0.0
		if i > 0 {
			jl = junctionLength(g, chain[i-1], chain[i])
		}
		runningMax = shifts[i] + span + jl
	}

	var shiftedNodes []shiftedNode
	var centerline []geom.Point
	for i, rr := range chain {
		reach := reaches[i]
		for _, n := range reach.Nodes {
			shiftedNodes = append(shiftedNodes, shiftedNode{node: n, shift: shifts[i], srcReach: rr})
		}
		centerline = appendCenterline(centerline, reach.Geometry)
	}

	trimmed := trim(shiftedNodes, usXSID+shiftOf(shiftedNodes, chain[0]), dsXSID+shiftOf(shiftedNodes, chain[len(chain)-1]))
	if countXS(trimmed) < 2 {
		return nil, ripple1d.ErrSingleXSModel
	}

	renumbered := renumber(trimmed)
	centerline = clipCenterline(centerline, renumbered)

	nwmKey := ripple1d.RiverReach{River: strconv.Itoa(nwmID), Reach: strconv.Itoa(nwmID)}
	renamed := rename(renumbered, nwmKey)

	sub := &ripple1d.GeometryFile{
		CRS: crs,
		Reaches: map[ripple1d.RiverReach]*ripple1d.Reach{
			nwmKey: {
				RiverReach: nwmKey,
				Geometry:   geom.LineString(centerline),
				Nodes:      renamed,
			},
		},
		ReachOrder: []ripple1d.RiverReach{nwmKey},
	}
	return sub, nil
}

type shiftedNode struct {
	node     ripple1d.ReachNode
	shift    float64
	srcReach ripple1d.RiverReach
}

func (s shiftedNode) station() float64 { return s.node.RiverStation() + s.shift }

// reachChain walks g's junction graph from usRR to dsRR, per spec.md §4.5
// step 1.
func reachChain(g *ripple1d.GeometryFile, usRR, dsRR ripple1d.RiverReach) ([]ripple1d.RiverReach, error) {
	chain := []ripple1d.RiverReach{usRR}
	current := usRR
	for hop := 0; hop < maxJunctionHops; hop++ {
		if current == dsRR {
			return chain, nil
		}
		j, ok := g.DownstreamJunction(current)
		if !ok || len(j.Downstream) == 0 {
			return nil, fmt.Errorf("subset: no junction downstream of %s/%s", current.River, current.Reach)
		}
		current = j.Downstream[0].RiverReach
		chain = append(chain, current)
	}
	if current == dsRR {
		return chain, nil
	}
	return nil, fmt.Errorf("subset: reach chain from %s/%s did not terminate at %s/%s within %d hops",
		usRR.River, usRR.Reach, dsRR.River, dsRR.Reach, maxJunctionHops)
}

func junctionLength(g *ripple1d.GeometryFile, from, to ripple1d.RiverReach) float64 {
	j, ok := g.DownstreamJunction(from)
	if !ok {
		return 0
	}
	for _, t := range j.Upstream {
		if t.RiverReach == from {
			return t.Length
		}
	}
	return 0
}

func shiftOf(nodes []shiftedNode, rr ripple1d.RiverReach) float64 {
	for _, n := range nodes {
		if n.srcReach == rr {
			return n.shift
		}
	}
	return 0
}

func appendCenterline(centerline []geom.Point, reachGeom geom.LineString) []geom.Point {
	return append(centerline, []geom.Point(reachGeom)...)
}

// trim drops cross-sections upstream of usStation on the first reach and
// downstream of dsStation on the last reach (inclusive), per spec.md §4.5
// step 2.
func trim(nodes []shiftedNode, usStation, dsStation float64) []shiftedNode {
	var out []shiftedNode
	for _, n := range nodes {
		st := n.station()
		if st > usStation || st < dsStation {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].station() > out[j].station() })
	return out
}

func countXS(nodes []shiftedNode) int {
	n := 0
	for _, s := range nodes {
		if s.node.Kind == ripple1d.NodeXS {
			n++
		}
	}
	return n
}

// renumber assigns river stations [N..1] to cross-sections
// downstream-to-upstream, and floor(next_xs_station)+0.5 to structures,
// rewriting each entity's RasData header, per spec.md §4.5 step 5. Type 6
// (lateral) structures are dropped.
func renumber(nodes []shiftedNode) []ripple1d.ReachNode {
	xsCount := countXS(nodes)
	out := make([]ripple1d.ReachNode, 0, len(nodes))

	xsIdx := xsCount
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		switch n.node.Kind {
		case ripple1d.NodeXS:
			newStation := float64(xsIdx)
			xs := *n.node.XS
			xs.RiverStation = newStation
			xs.RasData = rewriteHeader(xs.RasData, newStation, xs.Interpolated, xs.LeftReachLength, xs.ChannelReachLength, xs.RightReachLength)
			out = append(out, ripple1d.ReachNode{Kind: ripple1d.NodeXS, XS: &xs})
			xsIdx--
		case ripple1d.NodeStructure:
			if n.node.Structure.Type == ripple1d.StructureLateral {
				logrus.Warnf("subset: dropping lateral structure at river station %v", n.node.Structure.RiverStation)
				continue // lateral structures dropped with a warning, per spec.md §4.5 step 4
			}
			nextStation := float64(xsIdx)
			newStation := math.Floor(nextStation) + 0.5
			st := *n.node.Structure
			st.RiverStation = newStation
			st.RasData = rewriteHeader(st.RasData, newStation, false, st.DistanceToUpstreamXS, st.Width, 0)
			out = append(out, ripple1d.ReachNode{Kind: ripple1d.NodeStructure, Structure: &st})
		}
	}
	return out
}

// rewriteHeader rewrites the first line of a RasData block to reflect a
// new river station, per spec.md §9's rewrite-only-the-header rule.
func rewriteHeader(original string, newRS float64, interpolated bool, ll, lc, lr float64) string {
	nl := "\n"
	if strings.Contains(original, "\r\n") {
		nl = "\r\n"
	}
	i := strings.Index(original, nl)
	first := original
	rest := ""
	if i >= 0 {
		first = original[:i]
		rest = original[i:]
	}
	eq := strings.IndexByte(first, '=')
	if eq < 0 {
		return original
	}
	key, value := first[:eq], first[eq+1:]
	fields := strings.Split(value, ",")
	if len(fields) < 5 {
		return original
	}
	rsStr := strconv.FormatFloat(newRS, 'f', -1, 64)
	if interpolated {
		rsStr += "*"
	}
	fields[1] = rsStr
	fields[2] = strconv.FormatFloat(ll, 'f', -1, 64)
	fields[3] = strconv.FormatFloat(lc, 'f', -1, 64)
	fields[4] = strconv.FormatFloat(lr, 'f', -1, 64)
	return key + "=" + strings.Join(fields, ",") + rest
}

// rename sets every node's river/reach to nwmKey, per spec.md §4.5 step 6.
func rename(nodes []ripple1d.ReachNode, nwmKey ripple1d.RiverReach) []ripple1d.ReachNode {
	out := make([]ripple1d.ReachNode, len(nodes))
	for i, n := range nodes {
		switch n.Kind {
		case ripple1d.NodeXS:
			xs := *n.XS
			xs.RiverReach = nwmKey
			out[i] = ripple1d.ReachNode{Kind: ripple1d.NodeXS, XS: &xs}
		case ripple1d.NodeStructure:
			st := *n.Structure
			st.RiverReach = nwmKey
			out[i] = ripple1d.ReachNode{Kind: ripple1d.NodeStructure, Structure: &st}
		}
	}
	return out
}

// clipCenterline clips centerline's head and tail at the first and last
// cross-section of the renumbered node list, per spec.md §4.5 step 3.
func clipCenterline(centerline []geom.Point, nodes []ripple1d.ReachNode) []geom.Point {
	var xss []*ripple1d.CrossSection
	for _, n := range nodes {
		if n.Kind == ripple1d.NodeXS {
			xss = append(xss, n.XS)
		}
	}
	if len(xss) < 2 || len(centerline) < 2 {
		return centerline
	}
	headIdx := nearestVertex(centerline, midpoint(xss[0].CutLine))
	tailIdx := nearestVertex(centerline, midpoint(xss[len(xss)-1].CutLine))
	if headIdx > tailIdx {
		headIdx, tailIdx = tailIdx, headIdx
	}
	if tailIdx <= headIdx {
		return centerline
	}
	return centerline[headIdx : tailIdx+1]
}

func midpoint(ls geom.LineString) geom.Point {
	if len(ls) == 0 {
		return geom.Point{}
	}
	return ls[len(ls)/2]
}

func nearestVertex(pts []geom.Point, p geom.Point) int {
	best, bestD := 0, math.Inf(1)
	for i, v := range pts {
		dx, dy := v.X-p.X, v.Y-p.Y
		d := dx*dx + dy*dy
		if d < bestD {
			bestD, best = d, i
		}
	}
	return best
}

// Hull returns sourceHull unchanged when its outer ring contains the
// midpoints of both usXS's and dsXS's cut-lines; otherwise it builds a
// fresh concave hull from subsetXS. The source hull is not split at the
// cut-lines, so a hull that is kept still covers the whole source model.
func Hull(sourceHull geom.Polygon, usXS, dsXS *ripple1d.CrossSection, subsetXS []*ripple1d.CrossSection) geom.Polygon {
	if containsBoth(sourceHull, usXS, dsXS) {
		return sourceHull
	}
	return geomgraph.ConcaveHull(subsetXS)
}

func containsBoth(hull geom.Polygon, usXS, dsXS *ripple1d.CrossSection) bool {
	if len(hull) == 0 {
		return false
	}
	return pointInRing(hull[0], midpoint(usXS.CutLine)) && pointInRing(hull[0], midpoint(dsXS.CutLine))
}

// pointInRing is a standard ray-casting point-in-polygon test.
func pointInRing(ring []geom.Point, p geom.Point) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
