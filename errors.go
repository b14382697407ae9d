package ripple1d

import "errors"

// Sentinel error kinds from spec.md §7. Packages that raise one of these
// wrap it with fmt.Errorf("...: %w", ErrXxx) so callers can test with
// errors.Is while still getting a descriptive message.
var (
	// ErrParse is returned by the model parser when a referenced sub-block
	// length does not match its declared count, or a required KEY is
	// absent.
	ErrParse = errors.New("ripple1d: parse error")

	// ErrProjectionNotFound is returned when a geometry file's CRS cannot
	// be determined from its project metadata or sidecar.
	ErrProjectionNotFound = errors.New("ripple1d: projection not found")

	// ErrNoDefaultEPSG is returned when a unit system implies no default
	// EPSG code and none was supplied.
	ErrNoDefaultEPSG = errors.New("ripple1d: no default EPSG for unit system")

	// ErrBadConflation flags inverted stationing between us_xs and ds_xs,
	// usually caused by a bad source CRS (spec.md §4.4 Validation).
	ErrBadConflation = errors.New("ripple1d: bad conflation")

	// ErrInvalidNetworkPath is returned by the network walker when a chain
	// does not terminate at the requested downstream id within the hop
	// budget.
	ErrInvalidNetworkPath = errors.New("ripple1d: invalid network path")

	// ErrSingleXSModel is returned by the subsetter when a sub-model would
	// contain fewer than two cross-sections.
	ErrSingleXSModel = errors.New("ripple1d: sub-model has fewer than 2 cross-sections")

	// ErrRasTerrainFailure wraps a non-zero exit from the external terrain
	// tool, with its captured stdout/stderr in the message.
	ErrRasTerrainFailure = errors.New("ripple1d: terrain tool failed")

	// ErrRASComputeTimeout is returned when a simulator invocation exceeds
	// its wall-clock timeout.
	ErrRASComputeTimeout = errors.New("ripple1d: RAS compute timed out")

	// ErrRASComputeMeshError, ErrRASGeometryError, ErrRASComputeError and
	// ErrRASStoreAllMapsError are classified from the plan's
	// computeMsgs.txt per spec.md §4.7.
	ErrRASComputeMeshError   = errors.New("ripple1d: RAS mesh generation error")
	ErrRASGeometryError      = errors.New("ripple1d: RAS geometry error")
	ErrRASComputeError       = errors.New("ripple1d: RAS compute error")
	ErrRASStoreAllMapsError  = errors.New("ripple1d: RAS StoreAllMaps error")
	ErrDepthGridNotFound     = errors.New("ripple1d: depth grid not found")
)
