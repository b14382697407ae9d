package ripple1d

// UnitSystem is a HEC-RAS project's declared unit system.
type UnitSystem int

const (
	English UnitSystem = iota
	Metric
)

func (u UnitSystem) String() string {
	if u == Metric {
		return "Metric"
	}
	return "English"
}

// FileRef is a reference to one of a project's plan/geometry/flow files,
// e.g. "p01", "g02", "f01".
type FileRef string

// SourceModel is the parsed form of a HEC-RAS project file (.prj). It is
// read-only after construction: every mutating operation in this module
// (Subsetter, renumbering) produces a new SourceModel/GeometryFile rather
// than editing one in place, matching spec.md §3's ownership rule that the
// Parser produces value objects, never shared-mutable handles.
type SourceModel struct {
	Path        string
	Title       string
	Units       UnitSystem
	Version     string
	Plans       []FileRef
	Geometries  []FileRef
	Flows       []FileRef
	CurrentPlan FileRef
	RasData     string // verbatim source, for round-trip
}

// PlanPath resolves a plan reference to its file path.
func (m *SourceModel) PlanPath(ref FileRef) string {
	return extensionPath(m.Path, "p", ref)
}

// GeometryPath resolves a geometry reference to its file path.
func (m *SourceModel) GeometryPath(ref FileRef) string {
	return extensionPath(m.Path, "g", ref)
}

// FlowPath resolves a steady-flow reference to its file path.
func (m *SourceModel) FlowPath(ref FileRef) string {
	return extensionPath(m.Path, "f", ref)
}

func extensionPath(projectPath, kind string, ref FileRef) string {
	base := trimExt(projectPath)
	n := string(ref)
	if len(n) >= 1 && n[0] == kind[0] {
		n = n[1:]
	}
	return base + "." + kind + n
}

func trimExt(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[:i]
		}
	}
	return p
}

// PlanFile is the parsed form of a HEC-RAS steady-flow plan file (.pNN):
// the geometry/flow pairing and boundary-condition summary used to launch
// one simulator run.
type PlanFile struct {
	Path           string
	Title          string
	ProgramVersion string
	GeometryRef    FileRef
	FlowRef        FileRef
	ShortID        string
	RasData        string // verbatim source, for round-trip
}

// FlowFile is the parsed form of a HEC-RAS steady-flow file (.fNN).
type FlowFile struct {
	Path           string
	Title          string
	NumProfiles    int
	ProfileNames   []string
	ReachFlows     []ReachFlow
	Boundaries     []Boundary
	RasData        string // verbatim source, for round-trip
}

// ReachFlow is one `River Rch & RM=` block: the flows, one per profile, at
// a single river station.
type ReachFlow struct {
	River        string
	Reach        string
	RiverStation float64
	Flows        []float64 // len == NumProfiles
}

// BoundaryType enumerates the HEC-RAS downstream boundary condition kinds
// this engine emits.
type BoundaryType int

const (
	BoundaryNormalDepth BoundaryType = iota + 1
	BoundaryKnownWSE
)

// Boundary is one `Boundary for River Rch & Prof#=` block.
type Boundary struct {
	River      string
	Reach      string
	ProfileNum int
	UpType     int
	DnType     BoundaryType
	DnKnownWS  float64 // valid when DnType == BoundaryKnownWSE
	DnSlope    float64 // valid when DnType == BoundaryNormalDepth
}
