package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Dewberry/ripple1d"
)

const (
	kFlowTitle    = "Flow Title"
	kNumProfiles  = "Number of Profiles"
	kProfileNames = "Profile Names"
	kRiverRchRM   = "River Rch & RM"
	kBoundary     = "Boundary for River Rch & Prof#"
)

// ParseFlow reads a HEC-RAS steady-flow file (.fNN) into a FlowFile, per
// spec.md §6.
func ParseFlow(path string) (*ripple1d.FlowFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening %s: %w", path, err)
	}
	ls, err := lines(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}

	ff := &ripple1d.FlowFile{Path: path, RasData: string(raw)}
	if v, ok := findKV(ls, kFlowTitle); ok {
		ff.Title = v
	}
	nv, err := requireKV(path, ls, kNumProfiles)
	if err != nil {
		return nil, err
	}
	ff.NumProfiles, err = strconv.Atoi(strings.TrimSpace(nv))
	if err != nil {
		return nil, parseErr(path, "parsing %s=%q: %v", kNumProfiles, nv, err)
	}
	if pv, ok := findKV(ls, kProfileNames); ok {
		ff.ProfileNames = strings.Split(pv, ",")
	}

	i := 0
	for i < len(ls) {
		key, value, ok := splitKV(ls[i])
		if !ok {
			i++
			continue
		}
		switch key {
		case kRiverRchRM:
			river, reach, rs, err := splitRiverRchRM(path, value)
			if err != nil {
				return nil, err
			}
			nLines := ceilDiv(ff.NumProfiles, 10)
			if i+1+nLines > len(ls) {
				return nil, parseErr(path, "%s=%s declares %d profiles (%d lines) but file ends early", kRiverRchRM, value, ff.NumProfiles, nLines)
			}
			flows, err := decodeFlowFields(path, ls[i+1:i+1+nLines], ff.NumProfiles)
			if err != nil {
				return nil, err
			}
			ff.ReachFlows = append(ff.ReachFlows, ripple1d.ReachFlow{River: river, Reach: reach, RiverStation: rs, Flows: flows})
			i += 1 + nLines
		case kBoundary:
			bnd, err := parseBoundary(path, value, ls, i)
			if err != nil {
				return nil, err
			}
			ff.Boundaries = append(ff.Boundaries, bnd)
			i++
		default:
			i++
		}
	}
	return ff, nil
}

func splitRiverRchRM(file, value string) (river, reach string, rs float64, err error) {
	parts := strings.SplitN(value, ",", 3)
	if len(parts) != 3 {
		return "", "", 0, parseErr(file, "%s=%q is not river,reach,rs", kRiverRchRM, value)
	}
	rs, err = parseFixedFloat(parts[2])
	if err != nil {
		return "", "", 0, parseErr(file, "parsing river station %q: %v", parts[2], err)
	}
	return parts[0], parts[1], rs, nil
}

func decodeFlowFields(file string, body []string, n int) ([]float64, error) {
	var flat []float64
	for _, line := range body {
		for _, f := range fixedFields(line, 8) {
			v, err := parseFixedFloat(f)
			if err != nil {
				return nil, parseErr(file, "decoding flow value %q: %v", f, err)
			}
			flat = append(flat, v)
		}
	}
	if len(flat) < n {
		return nil, parseErr(file, "declared %d profile flows but only %d decoded", n, len(flat))
	}
	return flat[:n], nil
}

// parseBoundary decodes a `Boundary for River Rch & Prof#=` block. The key
// itself carries river, reach and profile number; `Up Type`, `Dn Type` and
// the matching `Dn Known WS=`/`Dn Slope=` line follow on subsequent lines
// (spec.md §6).
func parseBoundary(file, value string, ls []string, headerIdx int) (ripple1d.Boundary, error) {
	parts := strings.SplitN(value, ",", 3)
	if len(parts) != 3 {
		return ripple1d.Boundary{}, parseErr(file, "%s=%q is not river,reach,prof#", kBoundary, value)
	}
	profNum, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return ripple1d.Boundary{}, parseErr(file, "parsing profile number %q: %v", parts[2], err)
	}
	b := ripple1d.Boundary{River: parts[0], Reach: parts[1], ProfileNum: profNum}

	end := headerIdx + 1
	for ; end < len(ls); end++ {
		if _, _, ok := splitKV(ls[end]); ok {
			k, _, _ := splitKV(ls[end])
			if k == kBoundary || k == kRiverRchRM {
				break
			}
		}
	}
	for _, l := range ls[headerIdx+1 : end] {
		k, v, ok := splitKV(l)
		if !ok {
			continue
		}
		switch k {
		case "Up Type":
			b.UpType, _ = strconv.Atoi(strings.TrimSpace(v))
		case "Dn Type":
			t, _ := strconv.Atoi(strings.TrimSpace(v))
			switch t {
			case 1:
				b.DnType = ripple1d.BoundaryNormalDepth
			case 3:
				b.DnType = ripple1d.BoundaryKnownWSE
			}
		case "Dn Known WS":
			b.DnKnownWS, _ = parseFixedFloat(v)
		case "Dn Slope":
			b.DnSlope, _ = parseFixedFloat(v)
		}
	}
	return b, nil
}

// WriteFlow emits ff as a HEC-RAS steady-flow file. When ff.RasData is set
// (a flow file parsed from disk and not otherwise modified), the verbatim
// source is re-emitted as-is: the Run Orchestrator only ever synthesizes
// brand-new flow files (runner.NormalDepthInitial and friends) rather than
// patching a parsed one in place, so there is no field to repatch, and
// reconstructing from the parsed/reformatted fields would lose the
// source's original numeric formatting and block interleaving, breaking
// the round-trip property (spec.md §4.1, §8). Synthesized FlowFiles (no
// RasData) fall back to the field-driven layout below.
func WriteFlow(path string, ff *ripple1d.FlowFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parser: creating %s: %w", path, err)
	}
	defer f.Close()

	if ff.RasData != "" {
		_, err = f.WriteString(ff.RasData)
		return err
	}

	var b strings.Builder
	b.WriteString(kFlowTitle + "=" + ff.Title + newline)
	b.WriteString(fmt.Sprintf("%s= %d"+newline, kNumProfiles, ff.NumProfiles))
	b.WriteString(kProfileNames + "=" + strings.Join(ff.ProfileNames, ",") + newline)

	for _, rf := range ff.ReachFlows {
		b.WriteString(fmt.Sprintf("%s=%s,%s,%s"+newline, kRiverRchRM, rf.River, rf.Reach, trimFloat(rf.RiverStation)))
		writeFixedFloats(&b, rf.Flows, 8, 10)
	}
	for _, bnd := range ff.Boundaries {
		b.WriteString(fmt.Sprintf("%s=%s,%s,%d"+newline, kBoundary, bnd.River, bnd.Reach, bnd.ProfileNum))
		b.WriteString(fmt.Sprintf("Up Type=%d"+newline, bnd.UpType))
		switch bnd.DnType {
		case ripple1d.BoundaryNormalDepth:
			b.WriteString("Dn Type=1" + newline)
			b.WriteString("Dn Slope=" + trimFloat(bnd.DnSlope) + newline)
		case ripple1d.BoundaryKnownWSE:
			b.WriteString("Dn Type=3" + newline)
			b.WriteString("Dn Known WS=" + trimFloat(bnd.DnKnownWS) + newline)
		}
	}
	_, err = f.WriteString(b.String())
	return err
}

func writeFixedFloats(b *strings.Builder, vals []float64, width, perLine int) {
	for i, v := range vals {
		s := trimFloat(v)
		for len(s) < width {
			s = " " + s
		}
		b.WriteString(s)
		if (i+1)%perLine == 0 || i == len(vals)-1 {
			b.WriteString(newline)
		}
	}
	if len(vals) == 0 {
		b.WriteString(newline)
	}
}
