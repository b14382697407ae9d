package ripple1d

// RippleSidecar is the `.ripple.json` sidecar written alongside every
// SubModel: conflation parameters plus run bookkeeping, per spec.md §3.
type RippleSidecar struct {
	CRS      string  `json:"crs"`
	HighFlow float64 `json:"high_flow"`
	LowFlow  float64 `json:"low_flow"`

	SourceModelPaths []string `json:"source_model_paths"`
	EngineVersion    string   `json:"engine_version"`

	NetworkID   int    `json:"network_id"`
	NetworkToID int    `json:"network_to_id"`
	GageURL     string `json:"gage_url,omitempty"`
}

// BoundaryCondition enumerates the rating-curve table's boundary_condition
// column values from spec.md §3.
type BoundaryCondition string

const (
	BCNormalDepth BoundaryCondition = "nd"
	BCKnownWSE    BoundaryCondition = "kwse"
)

// RatingCurveRow is one row of a sub-model's FIM-library rating curve, per
// spec.md §3. It is unique on (ReachID, USFlow, DSWSE, BoundaryCondition).
type RatingCurveRow struct {
	ReachID    int
	USFlow     float64
	USDepth    float64
	USWSE      float64
	DSDepth    float64
	DSWSE      float64
	BoundaryCondition BoundaryCondition
}

// SubModelDir describes the on-disk layout of one sub-model directory, per
// spec.md §6's persisted-state layout under submodels/<nwm_id>/.
type SubModelDir struct {
	Root string // submodels/<nwm_id>

	ID string
}

func (d SubModelDir) Project() string        { return d.Root + "/" + d.ID + ".prj" }
func (d SubModelDir) Geopackage() string     { return d.Root + "/" + d.ID + ".gpkg" }
func (d SubModelDir) Sidecar() string        { return d.Root + "/" + d.ID + ".ripple.json" }
func (d SubModelDir) ConflationJSON() string { return d.Root + "/" + d.ID + ".conflation.json" }
func (d SubModelDir) TerrainDir() string     { return d.Root + "/Terrain" }
func (d SubModelDir) RatingCurveDB() string  { return d.Root + "/" + d.ID + ".db" }
func (d SubModelDir) DepthGrid(depthBucket, flowBucket string) string {
	return d.Root + "/" + depthBucket + "/" + flowBucket + ".tif"
}
