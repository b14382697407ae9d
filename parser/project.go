package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/Dewberry/ripple1d"
)

const (
	kProjTitle   = "Proj Title"
	kCurrentPlan = "Current Plan"
	kPlanFile    = "Plan File"
	kGeomFile    = "Geom File"
	kFlowFile    = "Flow File"
	kSIUnits     = "SI Units"
)

// ParseProject reads a HEC-RAS project file (.prj) into a SourceModel, per
// spec.md §6: first line `Proj Title=…`, followed by zero-or-more
// `Plan File=`, `Geom File=`, `Flow File=` lines and one `Current Plan=` in
// whatever order the source file happens to carry them (real projects put
// `Current Plan=` second, right after the title). The raw text is kept in
// RasData so WriteProject can patch it rather than reflow it.
func ParseProject(path string) (*ripple1d.SourceModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening %s: %w", path, err)
	}
	ls, err := lines(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}
	if len(ls) == 0 {
		return nil, parseErr(path, "empty project file")
	}

	m := &ripple1d.SourceModel{Path: path, RasData: string(raw)}
	key, value, ok := splitKV(ls[0])
	if !ok || key != kProjTitle {
		return nil, parseErr(path, "first line must be %q, got %q", kProjTitle, ls[0])
	}
	m.Title = value

	m.Units = ripple1d.English
	for _, l := range ls[1:] {
		key, value, ok := splitKV(l)
		if !ok {
			continue
		}
		switch key {
		case kCurrentPlan:
			m.CurrentPlan = ripple1d.FileRef(strings.TrimSpace(value))
		case kPlanFile:
			m.Plans = append(m.Plans, ripple1d.FileRef(strings.TrimSpace(value)))
		case kGeomFile:
			m.Geometries = append(m.Geometries, ripple1d.FileRef(strings.TrimSpace(value)))
		case kFlowFile:
			m.Flows = append(m.Flows, ripple1d.FileRef(strings.TrimSpace(value)))
		case kSIUnits:
			m.Units = ripple1d.Metric
		}
	}
	if m.CurrentPlan == "" {
		return nil, parseErr(path, "missing required key %q", kCurrentPlan)
	}
	return m, nil
}

// WriteProject emits m as a HEC-RAS project file. When m.RasData is set
// (the common case: a project parsed from disk), the verbatim source is
// patched in place rather than reflowed, the way WritePlan handles PlanFile
// — this preserves the source's line order (e.g. `Current Plan=` as the
// second line) and any fields this package does not model, and reproduces
// an unmodified project's bytes exactly (spec.md §4.1, §8). Only the
// `Current Plan=` line is rewritten, since that is the one field the Run
// Orchestrator repoints; Plan/Geom/Flow file lists and SI Units are
// structural and are not expected to change on an existing project.
func WriteProject(path string, m *ripple1d.SourceModel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parser: creating %s: %w", path, err)
	}
	defer f.Close()

	if m.RasData != "" {
		_, err = f.WriteString(patchProjectCurrentPlan(m.RasData, m.CurrentPlan))
		return err
	}

	var b strings.Builder
	b.WriteString(kProjTitle + "=" + m.Title + newline)
	for _, p := range m.Plans {
		b.WriteString(kPlanFile + "=" + string(p) + newline)
	}
	for _, g := range m.Geometries {
		b.WriteString(kGeomFile + "=" + string(g) + newline)
	}
	for _, fl := range m.Flows {
		b.WriteString(kFlowFile + "=" + string(fl) + newline)
	}
	b.WriteString(kCurrentPlan + "=" + string(m.CurrentPlan) + newline)
	if m.Units == ripple1d.Metric {
		b.WriteString(kSIUnits + "=" + newline)
	}
	_, err = f.WriteString(b.String())
	return err
}

// patchProjectCurrentPlan rewrites only the Current Plan= line of a
// verbatim project body, leaving every other line (and its order) intact.
func patchProjectCurrentPlan(raw string, currentPlan ripple1d.FileRef) string {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		trimmed := strings.TrimRight(l, "\r")
		key, _, ok := splitKV(trimmed)
		if !ok || key != kCurrentPlan {
			continue
		}
		suffix := ""
		if strings.HasSuffix(l, "\r") {
			suffix = "\r"
		}
		lines[i] = kCurrentPlan + "=" + string(currentPlan) + suffix
	}
	return strings.Join(lines, "\n")
}
