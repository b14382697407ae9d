package ripple1d

import "github.com/ctessum/geom"

// NetworkReach is one reach of the external stream-network description (the
// National Water Model hydrofabric), per spec.md §3.
type NetworkReach struct {
	ID     int
	ToID   int // 0 or absent = terminal
	Geometry geom.LineString // equal-area CRS

	HighFlowThreshold float64
	F100Year          float64

	Gage        string // optional gage identifier
	StreamOrder int
}

// Terminal reports whether the reach has no downstream connection.
func (r *NetworkReach) Terminal() bool { return r.ToID == 0 }
