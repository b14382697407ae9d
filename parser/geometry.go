package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
)

const (
	kGeomTitle    = "Geom Title"
	kProgVersion  = "Program Version"
	kRiverReach   = "River Reach"
	kNodeHeader   = "Type RM Length L Ch R "
	kCutLine      = "XS GIS Cut Line"
	kStaElev      = "#Sta/Elev"
	kMann         = "#Mann"
	kBankSta      = "Bank Sta"
	kJunctName    = "Junct Name"
	kUpRiverReach = "Up River,Reach"
	kDnRiverReach = "Dn River,Reach"
	kJuncLA       = "Junc L&A"
)

// ParseGeometry reads a HEC-RAS geometry file (.gNN) into a GeometryFile,
// per spec.md §4.1 and §6.
func ParseGeometry(path, crs string) (*ripple1d.GeometryFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening %s: %w", path, err)
	}
	defer f.Close()
	ls, err := lines(f)
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}
	return parseGeometryLines(path, ls, crs)
}

func parseGeometryLines(path string, ls []string, crs string) (*ripple1d.GeometryFile, error) {
	g := &ripple1d.GeometryFile{
		Path:    path,
		CRS:     crs,
		Reaches: map[ripple1d.RiverReach]*ripple1d.Reach{},
	}
	if v, ok := findKV(ls, kGeomTitle); ok {
		g.Title = v
	}
	if v, ok := findKV(ls, kProgVersion); ok {
		g.ProgramVersion = v
	}

	var currentRR ripple1d.RiverReach
	haveCurrent := false

	i := 0
	for i < len(ls) {
		key, value, ok := splitKV(ls[i])
		if !ok {
			i++
			continue
		}
		switch key {
		case kRiverReach:
			river, reach, err := splitRiverReach(path, value)
			if err != nil {
				return nil, err
			}
			currentRR = ripple1d.RiverReach{River: river, Reach: reach}
			haveCurrent = true
			if _, exists := g.Reaches[currentRR]; !exists {
				g.Reaches[currentRR] = &ripple1d.Reach{RiverReach: currentRR}
				g.ReachOrder = append(g.ReachOrder, currentRR)
			}
			i++
		case kNodeHeader:
			if !haveCurrent {
				return nil, parseErr(path, "node header before any River Reach= line")
			}
			end := nextBlockBoundary(ls, i+1)
			block := ls[i:end]
			node, err := parseNode(path, currentRR, block)
			if err != nil {
				return nil, err
			}
			r := g.Reaches[currentRR]
			r.Nodes = append(r.Nodes, node)
			i = end
		case kJunctName:
			end := nextBlockBoundary(ls, i+1)
			block := ls[i:end]
			j, err := parseJunction(path, block)
			if err != nil {
				return nil, err
			}
			g.Junctions = append(g.Junctions, j)
			i = end
		default:
			i++
		}
	}
	return g, nil
}

func splitRiverReach(file, value string) (river, reach string, err error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", parseErr(file, "River Reach= value %q is not river,reach", value)
	}
	return strings.TrimRight(parts[0], " "), strings.TrimRight(parts[1], " "), nil
}

// nextBlockBoundary returns the index, at or after start, of the next line
// beginning a new node, river/reach, or junction block (or len(ls) if none
// remain). Node blocks run until the next such marker.
func nextBlockBoundary(ls []string, start int) int {
	for i := start; i < len(ls); i++ {
		key, _, ok := splitKV(ls[i])
		if !ok {
			continue
		}
		switch key {
		case kNodeHeader, kRiverReach, kJunctName:
			return i
		}
	}
	return len(ls)
}

func parseNode(file string, rr ripple1d.RiverReach, block []string) (ripple1d.ReachNode, error) {
	_, headerValue, _ := splitKV(block[0])
	t, rs, interp, ll, lc, lr, err := headerSplit(file, headerValue)
	if err != nil {
		return ripple1d.ReachNode{}, err
	}
	raw := strings.Join(block, newline)

	if t == 1 {
		xs := &ripple1d.CrossSection{
			RiverReach:         rr,
			RiverStation:       rs,
			Interpolated:       interp,
			LeftReachLength:    ll,
			ChannelReachLength: lc,
			RightReachLength:   lr,
			RasData:            raw,
		}
		if err := fillCrossSection(file, xs, block); err != nil {
			return ripple1d.ReachNode{}, err
		}
		return ripple1d.ReachNode{Kind: ripple1d.NodeXS, XS: xs}, nil
	}

	st := &ripple1d.Structure{
		RiverReach:           rr,
		RiverStation:         rs,
		Type:                 ripple1d.StructureType(t),
		RasData:              raw,
		DistanceToUpstreamXS: ll,
		Width:                lc,
	}
	return ripple1d.ReachNode{Kind: ripple1d.NodeStructure, Structure: st}, nil
}

func fillCrossSection(file string, xs *ripple1d.CrossSection, block []string) error {
	for i := 0; i < len(block); i++ {
		key, value, ok := splitKV(block[i])
		if !ok {
			continue
		}
		switch key {
		case kCutLine:
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return parseErr(file, "parsing XS GIS Cut Line count %q: %v", value, err)
			}
			pts, _, err := decodeCoordBlock(file, block[i+1:], n)
			if err != nil {
				return err
			}
			ls := make(geom.LineString, n)
			for j, p := range pts {
				ls[j] = geom.Point{X: p[0], Y: p[1]}
			}
			xs.CutLine = ls
		case kStaElev:
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return parseErr(file, "parsing #Sta/Elev count %q: %v", value, err)
			}
			se, _, err := decodeStaElevBlock(file, block[i+1:], n)
			if err != nil {
				return err
			}
			xs.StationElevation = se
		case kMann:
			n, _, err := parseManningHeader(file, value)
			if err != nil {
				return err
			}
			mn, _, err := decodeManningBlock(file, block[i+1:], n)
			if err != nil {
				return err
			}
			xs.Mannings = mn
		case kBankSta:
			parts := strings.SplitN(value, ",", 2)
			if len(parts) == 2 {
				l, err1 := parseFixedFloat(parts[0])
				r, err2 := parseFixedFloat(parts[1])
				if err1 != nil || err2 != nil {
					return parseErr(file, "parsing Bank Sta= %q", value)
				}
				xs.LeftBank, xs.RightBank = l, r
			}
		}
	}
	return nil
}

func parseJunction(file string, block []string) (*ripple1d.Junction, error) {
	_, name, _ := splitKV(block[0])
	j := &ripple1d.Junction{Name: strings.TrimSpace(name)}
	var lengths []float64
	for _, l := range block[1:] {
		key, value, ok := splitKV(l)
		if !ok {
			continue
		}
		switch key {
		case kUpRiverReach:
			river, reach, err := splitRiverReach(file, value)
			if err != nil {
				return nil, err
			}
			j.Upstream = append(j.Upstream, ripple1d.JunctionTrib{RiverReach: ripple1d.RiverReach{River: river, Reach: reach}})
		case kDnRiverReach:
			river, reach, err := splitRiverReach(file, value)
			if err != nil {
				return nil, err
			}
			j.Downstream = append(j.Downstream, ripple1d.JunctionTrib{RiverReach: ripple1d.RiverReach{River: river, Reach: reach}})
		case kJuncLA:
			parts := strings.SplitN(value, ",", 2)
			if len(parts) > 0 {
				if v, err := parseFixedFloat(parts[0]); err == nil {
					lengths = append(lengths, v)
				}
			}
		}
	}
	for i := range j.Upstream {
		if i < len(lengths) {
			j.Upstream[i].Length = lengths[i]
		}
	}
	return j, nil
}

// WriteGeometry emits g as a HEC-RAS geometry file. Every node's RasData is
// written verbatim (spec.md §9's "rewrite only the first line" rule), so
// re-parsing an unmodified GeometryFile and writing it back reproduces the
// source bytes exactly.
func WriteGeometry(path string, g *ripple1d.GeometryFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parser: creating %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString(kGeomTitle + "=" + g.Title + newline)
	if g.ProgramVersion != "" {
		b.WriteString(kProgVersion + "=" + g.ProgramVersion + newline)
	}

	for _, rr := range reachOrder(g) {
		r, ok := g.Reaches[rr]
		if !ok {
			continue
		}
		b.WriteString(kRiverReach + "=" + rr.River + "," + rr.Reach + newline)
		for _, n := range r.Nodes {
			if n.Kind == ripple1d.NodeXS {
				b.WriteString(n.XS.RasData)
			} else {
				b.WriteString(n.Structure.RasData)
			}
			b.WriteString(newline)
		}
	}
	for _, j := range g.Junctions {
		b.WriteString(kJunctName + "=" + j.Name + newline)
		for _, t := range j.Upstream {
			b.WriteString(kUpRiverReach + "=" + t.River + "," + t.Reach + newline)
		}
		for _, t := range j.Downstream {
			b.WriteString(kDnRiverReach + "=" + t.River + "," + t.Reach + newline)
		}
		for _, t := range j.Upstream {
			b.WriteString(kJuncLA + "=" + trimFloat(t.Length) + ",0" + newline)
		}
	}

	_, err = f.WriteString(b.String())
	return err
}

// reachOrder returns the river/reach keys to write, in g.ReachOrder's
// sequence (the source file's original block order, per spec.md §4.1/§8's
// round-trip invariant) followed by any reaches absent from ReachOrder
// (e.g. built programmatically rather than parsed), sorted by name so
// WriteGeometry's output is still deterministic for those.
func reachOrder(g *ripple1d.GeometryFile) []ripple1d.RiverReach {
	seen := make(map[ripple1d.RiverReach]bool, len(g.ReachOrder))
	out := make([]ripple1d.RiverReach, 0, len(g.Reaches))
	for _, rr := range g.ReachOrder {
		if _, ok := g.Reaches[rr]; !ok || seen[rr] {
			continue
		}
		seen[rr] = true
		out = append(out, rr)
	}

	var rest []ripple1d.RiverReach
	for k := range g.Reaches {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && less(rest[j], rest[j-1]); j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	return append(out, rest...)
}

func less(a, b ripple1d.RiverReach) bool {
	if a.River != b.River {
		return a.River < b.River
	}
	return a.Reach < b.Reach
}
