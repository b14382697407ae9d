package ripple1d

// XSRef identifies a single source-model cross-section chosen as a
// conflation endpoint.
type XSRef struct {
	River        string
	Reach        string
	XSID         float64 // source-model river station
	MinElevation float64
	MaxElevation float64
}

// ReachConflationMetrics is the `metrics` block from spec.md §4.4, computed
// per non-eclipsed reach.
type ReachConflationMetrics struct {
	CenterlineOffset DescriptiveStats
	ThalwegOffset    DescriptiveStats

	LengthRAS            float64
	LengthNetwork        float64
	NetworkToRASRatio    float64

	CoverageStart float64
	CoverageEnd   float64

	OverlappedReaches map[int]float64 // network id -> overlap length
	EclipsedReaches   []int
}

// DescriptiveStats holds the summary statistics this engine reports for
// per-cross-section offset distributions.
type DescriptiveStats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
	N      int
}

// ReachConflation is the per-network-reach entry of a ConflationResult.
type ReachConflation struct {
	NetworkID int
	Eclipsed  bool

	USXS *XSRef // nil when Eclipsed
	DSXS *XSRef // nil when Eclipsed

	NetworkToID int
	LowFlow     float64
	HighFlow    float64
	GageURL     string

	Metrics *ReachConflationMetrics // nil until computed

	// Err, when non-empty, records a per-reach failure (BadConflation,
	// InvalidNetworkPath, ...) that did not abort the overall job, per
	// spec.md §7's partial-success policy.
	Err string
}

// ConflationMetadata is the ConflationResult's global metadata block.
type ConflationMetadata struct {
	NetworkFile    string
	SourceModel    string
	SourceGeometry string
	EngineVersion  string
}

// ConflationResult maps every network reach overlapping the source model to
// its ReachConflation, per spec.md §3.
type ConflationResult struct {
	Metadata ConflationMetadata
	Reaches  map[int]*ReachConflation
}

// NonEclipsed returns the conflated reaches that are not eclipsed, sorted
// by network id for deterministic iteration.
func (c *ConflationResult) NonEclipsed() []*ReachConflation {
	out := make([]*ReachConflation, 0, len(c.Reaches))
	for _, rc := range c.Reaches {
		if !rc.Eclipsed {
			out = append(out, rc)
		}
	}
	sortReachConflations(out)
	return out
}

func sortReachConflations(rcs []*ReachConflation) {
	for i := 1; i < len(rcs); i++ {
		for j := i; j > 0 && rcs[j].NetworkID < rcs[j-1].NetworkID; j-- {
			rcs[j], rcs[j-1] = rcs[j-1], rcs[j]
		}
	}
}
