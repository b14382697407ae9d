package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/Dewberry/ripple1d"
)

const (
	kPlanTitle  = "Plan Title"
	kShortID    = "Short Identifier"
	kGeomFileP  = "Geom File"
	kFlowFileP  = "Flow File"
)

// ParsePlan reads a HEC-RAS plan file (.pNN) into a PlanFile, per spec.md §6.
// Plan files carry little structured state beyond the geometry/flow pairing
// the Run Orchestrator needs to launch a simulation; the rest of the file is
// preserved verbatim in RasData for round-trip (spec.md §9).
func ParsePlan(path string) (*ripple1d.PlanFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening %s: %w", path, err)
	}
	ls, err := lines(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}

	p := &ripple1d.PlanFile{Path: path, RasData: string(raw)}
	if v, ok := findKV(ls, kPlanTitle); ok {
		p.Title = v
	}
	if v, ok := findKV(ls, kProgVersion); ok {
		p.ProgramVersion = v
	}
	if v, ok := findKV(ls, kShortID); ok {
		p.ShortID = strings.TrimSpace(v)
	}
	if v, ok := findKV(ls, kGeomFileP); ok {
		p.GeometryRef = ripple1d.FileRef(strings.TrimSpace(v))
	}
	if v, ok := findKV(ls, kFlowFileP); ok {
		p.FlowRef = ripple1d.FileRef(strings.TrimSpace(v))
	}
	return p, nil
}

// WritePlan emits p as a HEC-RAS plan file. When p.RasData is set (the
// common case: a plan parsed from disk and only its Geom/Flow refs
// rewritten), the verbatim source is patched rather than regenerated, so
// fields this package does not model survive untouched.
func WritePlan(path string, p *ripple1d.PlanFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parser: creating %s: %w", path, err)
	}
	defer f.Close()

	if p.RasData != "" {
		_, err = f.WriteString(patchPlanRefs(p.RasData, p.GeometryRef, p.FlowRef))
		return err
	}

	var b strings.Builder
	b.WriteString(kPlanTitle + "=" + p.Title + newline)
	if p.ProgramVersion != "" {
		b.WriteString(kProgVersion + "=" + p.ProgramVersion + newline)
	}
	if p.ShortID != "" {
		b.WriteString(kShortID + "=" + p.ShortID + newline)
	}
	b.WriteString(kGeomFileP + "=" + string(p.GeometryRef) + newline)
	b.WriteString(kFlowFileP + "=" + string(p.FlowRef) + newline)
	_, err = f.WriteString(b.String())
	return err
}

// patchPlanRefs rewrites only the Geom File=/Flow File= lines of a verbatim
// plan body, leaving every other line untouched.
func patchPlanRefs(raw string, geomRef, flowRef ripple1d.FileRef) string {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		trimmed := strings.TrimRight(l, "\r")
		key, _, ok := splitKV(trimmed)
		if !ok {
			continue
		}
		suffix := ""
		if strings.HasSuffix(l, "\r") {
			suffix = "\r"
		}
		switch key {
		case kGeomFileP:
			lines[i] = kGeomFileP + "=" + string(geomRef) + suffix
		case kFlowFileP:
			lines[i] = kFlowFileP + "=" + string(flowRef) + suffix
		}
	}
	return strings.Join(lines, "\n")
}
