package ripple1d

import "github.com/ctessum/geom"

// RiverReach is the `(river, reach)` key used throughout spec.md §3.
type RiverReach struct {
	River string
	Reach string
}

// NodeKind distinguishes the two kinds of ReachNode.
type NodeKind int

const (
	NodeXS NodeKind = iota
	NodeStructure
)

// StructureType is the HEC-RAS structure type code from spec.md §3.
type StructureType int

const (
	StructureCulvert     StructureType = 2
	StructureBridge      StructureType = 3
	StructureMultiOpen   StructureType = 4
	StructureInline      StructureType = 5
	StructureLateral     StructureType = 6
)

// StationElevation is one point of a cross-section's station-elevation
// series.
type StationElevation struct {
	Station   float64
	Elevation float64
}

// ManningSubdivision is one entry of a `#Mann=` block: a subdivision of the
// cross-section's wetted width with a constant roughness coefficient.
type ManningSubdivision struct {
	Station float64
	N       float64
}

// CrossSection is a HEC-RAS cross-section node: a cut-line with a
// station-elevation profile, per spec.md §3.
type CrossSection struct {
	RiverReach
	RiverStation float64 // larger = further upstream
	Interpolated bool    // trailing '*' on the river station

	CutLine geom.LineString // x,y vertices of the cut-line polyline

	StationElevation []StationElevation
	LeftBank         float64
	RightBank        float64

	LeftReachLength    float64
	ChannelReachLength float64
	RightReachLength   float64

	Mannings []ManningSubdivision

	// RasData preserves the node's original source text block verbatim,
	// for byte-identical round-trip per spec.md §4.1.
	RasData string
}

// RiverStationKey returns the node's ordering key for a ReachNode.
func (x *CrossSection) RiverStationKey() float64 { return x.RiverStation }

// Structure is a HEC-RAS hydraulic structure: culvert, bridge,
// multi-opening, inline or lateral.
type Structure struct {
	RiverReach
	RiverStation float64
	Type         StructureType

	// DistanceToUpstreamXS is the offset from the structure to the next
	// upstream cross-section.
	DistanceToUpstreamXS float64
	Width                float64

	RasData string
}

// RiverStationKey returns the node's ordering key for a ReachNode.
func (s *Structure) RiverStationKey() float64 { return s.RiverStation }

// ReachNode is the tagged variant `{XS(CrossSection), Structure(Structure)}`
// from spec.md §9: cross-sections and structures share a reach-node slot,
// ordered along the reach by a single river-station accessor.
type ReachNode struct {
	Kind      NodeKind
	XS        *CrossSection
	Structure *Structure
}

// RiverStation returns the node's ordering key regardless of its kind.
func (n ReachNode) RiverStation() float64 {
	if n.Kind == NodeXS {
		return n.XS.RiverStationKey()
	}
	return n.Structure.RiverStationKey()
}

func xsNode(xs *CrossSection) ReachNode { return ReachNode{Kind: NodeXS, XS: xs} }
func structureNode(s *Structure) ReachNode {
	return ReachNode{Kind: NodeStructure, Structure: s}
}

// Reach is a named segment of a named River, owning an ordered sequence of
// ReachNodes sorted by strictly decreasing river station (spec.md §3, §4.2).
type Reach struct {
	RiverReach
	Geometry geom.LineString // centerline, upstream to downstream (geomgraph/direction.go reads index 0 as the upstream end)
	Nodes    []ReachNode      // sorted by decreasing RiverStation()
}

// CrossSections returns the reach's cross-sections in station order.
func (r *Reach) CrossSections() []*CrossSection {
	var out []*CrossSection
	for _, n := range r.Nodes {
		if n.Kind == NodeXS {
			out = append(out, n.XS)
		}
	}
	return out
}

// Structures returns the reach's structures in station order.
func (r *Reach) Structures() []*Structure {
	var out []*Structure
	for _, n := range r.Nodes {
		if n.Kind == NodeStructure {
			out = append(out, n.Structure)
		}
	}
	return out
}

// StrictlyDecreasing reports whether the reach's nodes satisfy the river
// station invariant from spec.md §3 and §8.
func (r *Reach) StrictlyDecreasing() bool {
	for i := 1; i < len(r.Nodes); i++ {
		if r.Nodes[i].RiverStation() >= r.Nodes[i-1].RiverStation() {
			return false
		}
	}
	return true
}

// JunctionTrib is one upstream or downstream leg of a Junction.
type JunctionTrib struct {
	RiverReach
	Length float64 // junction length along this trib
}

// Junction is a merge/split point linking one or more upstream
// `(river,reach)` to one or more downstream `(river,reach)`.
type Junction struct {
	Name       string
	Upstream   []JunctionTrib
	Downstream []JunctionTrib
}

// GeometryFile is the parsed form of a HEC-RAS geometry file (.gNN): a set
// of rivers (name -> ordered reaches) plus the junctions linking them.
type GeometryFile struct {
	Path           string
	Title          string
	ProgramVersion string
	CRS            string // WKT or authority code, resolved at parse time

	Reaches map[RiverReach]*Reach
	// ReachOrder preserves the `River Reach=` block order as it appears in
	// the source file (real HEC-RAS files order blocks topologically, not
	// alphabetically), so WriteGeometry can reproduce it on an unmodified
	// round-trip per spec.md §4.1/§8.
	ReachOrder []RiverReach
	Junctions  []*Junction
}

// Reach looks up a reach by its (river, reach) key.
func (g *GeometryFile) Reach(rr RiverReach) (*Reach, bool) {
	r, ok := g.Reaches[rr]
	return r, ok
}

// DownstreamJunction returns the junction, if any, whose upstream tribs
// include rr.
func (g *GeometryFile) DownstreamJunction(rr RiverReach) (*Junction, bool) {
	for _, j := range g.Junctions {
		for _, t := range j.Upstream {
			if t.RiverReach == rr {
				return j, true
			}
		}
	}
	return nil, false
}

// UpstreamJunction returns the junction, if any, whose downstream outlets
// include rr.
func (g *GeometryFile) UpstreamJunction(rr RiverReach) (*Junction, bool) {
	for _, j := range g.Junctions {
		for _, t := range j.Downstream {
			if t.RiverReach == rr {
				return j, true
			}
		}
	}
	return nil, false
}
