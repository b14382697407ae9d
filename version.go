// Package ripple1d implements a reach-scoped hydraulic-model factory: it
// conflates a source HEC-RAS one-dimensional river model against a National
// Water Model hydrofabric, subsets reach-scoped sub-models out of it, drives
// an external simulation engine over those sub-models, and assembles the
// resulting rating curves and flood-inundation-map (FIM) libraries.
//
// The subpackages under this module split along the pipeline's
// subsystems: parser (model I/O), geomgraph (geometry operations),
// network (stream-graph walking), conflate (cross-section-to-reach
// assignment), subset (sub-model extraction), terrain (DEM clipping and
// agreement metrics), runner (simulation orchestration) and jobserver (the
// HTTP task queue surface).
package ripple1d

// Version is the engine version recorded in every sub-model's sidecar
// metadata, so that artifacts can be traced back to the code that produced
// them.
const Version = "0.1.0"
