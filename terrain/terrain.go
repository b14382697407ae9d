// Package terrain builds and scores a sub-model's DEM clip against its
// hydraulic geometry, per spec.md §4.6.
//
// Raster/GDAL I/O is out of scope (spec.md §1): a DEMSource abstracts
// sampling a virtual raster, and a TerrainTool abstracts invoking the
// external terrain binary that produces the final HDF terrain.
package terrain

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"sort"

	"github.com/Dewberry/ripple1d"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/requestcache"
	"gonum.org/v1/gonum/stat"
)

// hullBuffer is the fixed 1000 ft hull buffer from spec.md §4.6 step 1.
const hullBuffer = 1000.0

// DEMSource samples elevation from the source virtual raster. Raster I/O
// itself is an external collaborator (spec.md §1); this is the seam.
type DEMSource interface {
	// ElevationAt returns the DEM elevation at a point in the source
	// raster's CRS.
	ElevationAt(x, y float64) (float64, error)
}

// CachedDEMSource wraps a DEMSource with an in-memory, deduplicating
// cache keyed by sample point. A subsetted sub-model's cut-lines often
// share stations with its parent model's, and ScoreCrossSection is run
// repeatedly across QA passes of the same reach, so identical (x, y)
// queries against the underlying raster are common; this avoids paying
// for the raster I/O behind DEMSource more than once per point.
type CachedDEMSource struct {
	cache *requestcache.Cache
}

// NewCachedDEMSource wraps dem, keeping up to maxEntries distinct
// elevation samples in memory.
func NewCachedDEMSource(dem DEMSource, maxEntries int) *CachedDEMSource {
	processor := func(_ context.Context, payload interface{}) (interface{}, error) {
		xy := payload.([2]float64)
		return dem.ElevationAt(xy[0], xy[1])
	}
	return &CachedDEMSource{
		cache: requestcache.NewCache(processor, 1, requestcache.Deduplicate(), requestcache.Memory(maxEntries)),
	}
}

// ElevationAt implements DEMSource, serving repeated (x, y) queries from
// the cache instead of re-invoking the wrapped source.
func (c *CachedDEMSource) ElevationAt(x, y float64) (float64, error) {
	key := fmt.Sprintf("%.6f,%.6f", x, y)
	req := c.cache.NewRequest(context.Background(), [2]float64{x, y}, key)
	v, err := req.Result()
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Options configures a terrain build.
type Options struct {
	Units      string // "feet" or "meters", passed to the terrain tool
	Stitch     bool
	TargetCRS  string // WKT or authority code
	Resolution float64 // 0 disables resampling

	TerrainAgreementResolution float64 // max station gap in §4.6 step 4

	// WSEStepInitial/WSEStepRepeat/WSERamp drive the WSE grid sweep:
	// e0 repeated r times, then ramp*e0 repeated r times, and so on.
	WSEStepInitial float64
	WSEStepRepeat  int
	WSERamp        float64
}

// BufferHull buffers hull by hullBuffer feet in an equal-area CRS, then
// reprojects back to sourceCRS, per spec.md §4.6 step 1.
func BufferHull(hull geom.Polygon, sourceCRS string) (geom.Polygon, error) {
	equalArea, err := proj.Parse("+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +units=ft +datum=NAD83")
	if err != nil {
		return nil, fmt.Errorf("terrain: equal-area projection: %w", err)
	}
	src, err := proj.Parse(sourceCRS)
	if err != nil {
		return nil, fmt.Errorf("terrain: source CRS %q: %w", sourceCRS, err)
	}
	toEqualArea, err := src.NewTransform(equalArea)
	if err != nil {
		return nil, fmt.Errorf("terrain: build transformer: %w", err)
	}
	fromEqualArea, err := equalArea.NewTransform(src)
	if err != nil {
		return nil, fmt.Errorf("terrain: build reverse transformer: %w", err)
	}

	projected := make(geom.Polygon, len(hull))
	for i, ring := range hull {
		pr := make([]geom.Point, len(ring))
		for j, p := range ring {
			x, y, err := toEqualArea(p.X, p.Y)
			if err != nil {
				return nil, fmt.Errorf("terrain: reproject hull vertex: %w", err)
			}
			pr[j] = geom.Point{X: x, Y: y}
		}
		projected[i] = pr
	}

	buffered := bufferRing(projected[0], hullBuffer)

	out := make(geom.Polygon, 1)
	ring := make([]geom.Point, len(buffered))
	for i, p := range buffered {
		x, y, err := fromEqualArea(p.X, p.Y)
		if err != nil {
			return nil, fmt.Errorf("terrain: reproject buffered vertex: %w", err)
		}
		ring[i] = geom.Point{X: x, Y: y}
	}
	out[0] = ring
	return out, nil
}

// bufferRing moves each vertex of ring dist outward along the line from
// the mean of the ring's vertices through that vertex. This is a coarse
// polygon buffer, adequate for a
// DEM clip envelope which only needs to be conservatively large.
func bufferRing(ring []geom.Point, dist float64) []geom.Point {
	n := len(ring)
	if n < 3 {
		return ring
	}
	cx, cy := 0.0, 0.0
	for _, p := range ring {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(n)
	cy /= float64(n)

	out := make([]geom.Point, n)
	for i, p := range ring {
		dx, dy := p.X-cx, p.Y-cy
		d := math.Hypot(dx, dy)
		if d == 0 {
			out[i] = p
			continue
		}
		out[i] = geom.Point{X: p.X + dx/d*dist, Y: p.Y + dy/d*dist}
	}
	return out
}

// TerrainTool invokes the external terrain binary that stitches a DEM clip
// into a HEC-RAS terrain HDF, per spec.md §4.6 step 3.
type TerrainTool interface {
	Build(ctx context.Context, args TerrainArgs) error
}

// TerrainArgs is the argument set passed to the external terrain binary.
type TerrainArgs struct {
	BinaryPath string
	Units      string
	Stitch     bool
	PRJ        string // target CRS WKT
	Out        string // output HDF path
	Sources    []string
}

// ExecTerrainTool runs the external terrain binary as a subprocess,
// capturing stdout/stderr per spec.md §4.6 step 3.
type ExecTerrainTool struct{}

func (ExecTerrainTool) Build(ctx context.Context, a TerrainArgs) error {
	args := []string{
		fmt.Sprintf("units=%s", a.Units),
		fmt.Sprintf("stitch=%v", a.Stitch),
		fmt.Sprintf("prj=%s", a.PRJ),
		fmt.Sprintf("out=%s", a.Out),
	}
	args = append(args, a.Sources...)

	cmd := exec.CommandContext(ctx, a.BinaryPath, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: stdout=%q stderr=%q: %v", ripple1d.ErrRasTerrainFailure, out.String(), errBuf.String(), err)
	}
	return nil
}

// ElevationResidual is one station's DEM-vs-source-survey offset, used to
// build the descriptive-stats residual summary at a given WSE.
type ElevationResidual struct {
	Station float64
	Source  float64
	DEM     float64
}

// ResampleStations inserts intermediate stations so no gap in xs's
// station-elevation series exceeds maxGap, per spec.md §4.6 step 4. Values
// at inserted stations are linearly interpolated.
func ResampleStations(se []ripple1d.StationElevation, maxGap float64) []ripple1d.StationElevation {
	if len(se) < 2 || maxGap <= 0 {
		return se
	}
	out := []ripple1d.StationElevation{se[0]}
	for i := 1; i < len(se); i++ {
		a, b := se[i-1], se[i]
		gap := b.Station - a.Station
		if gap <= maxGap {
			out = append(out, b)
			continue
		}
		n := int(math.Ceil(gap / maxGap))
		for k := 1; k < n; k++ {
			frac := float64(k) / float64(n)
			out = append(out, ripple1d.StationElevation{
				Station:   a.Station + frac*gap,
				Elevation: a.Elevation + frac*(b.Elevation-a.Elevation),
			})
		}
		out = append(out, b)
	}
	return out
}

// SampleDEM samples dem along xs's cut-line at each resampled station,
// interpolating the cut-line position by station fraction, per spec.md
// §4.6 step 4.
func SampleDEM(xs *ripple1d.CrossSection, resampled []ripple1d.StationElevation, dem DEMSource) ([]ElevationResidual, error) {
	if len(xs.CutLine) < 2 || len(resampled) == 0 {
		return nil, nil
	}
	minSta, maxSta := resampled[0].Station, resampled[len(resampled)-1].Station
	span := maxSta - minSta
	if span == 0 {
		span = 1
	}

	out := make([]ElevationResidual, len(resampled))
	for i, se := range resampled {
		frac := (se.Station - minSta) / span
		p := pointAtFraction(xs.CutLine, frac)
		z, err := dem.ElevationAt(p.X, p.Y)
		if err != nil {
			return nil, fmt.Errorf("terrain: sample DEM at station %v: %w", se.Station, err)
		}
		out[i] = ElevationResidual{Station: se.Station, Source: se.Elevation, DEM: z}
	}
	return out, nil
}

func pointAtFraction(ls geom.LineString, frac float64) geom.Point {
	if frac <= 0 {
		return ls[0]
	}
	if frac >= 1 {
		return ls[len(ls)-1]
	}
	total := 0.0
	for i := 1; i < len(ls); i++ {
		total += segLen(ls[i-1], ls[i])
	}
	target := frac * total
	walked := 0.0
	for i := 1; i < len(ls); i++ {
		seg := segLen(ls[i-1], ls[i])
		if walked+seg >= target {
			t := 0.0
			if seg > 0 {
				t = (target - walked) / seg
			}
			return geom.Point{
				X: ls[i-1].X + t*(ls[i].X-ls[i-1].X),
				Y: ls[i-1].Y + t*(ls[i].Y-ls[i-1].Y),
			}
		}
		walked += seg
	}
	return ls[len(ls)-1]
}

func segLen(a, b geom.Point) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

// WSEGrid builds the water-surface-elevation sweep from spec.md §4.6 step
// 4: e0 repeated r times, then ramp*e0 repeated r times, and so on, until
// the lower of the two cross-section endpoints' elevations is reached.
func WSEGrid(low, high float64, opts Options) []float64 {
	if opts.WSEStepInitial <= 0 || opts.WSEStepRepeat <= 0 || opts.WSERamp <= 0 {
		return nil
	}
	var grid []float64
	wse := low
	step := opts.WSEStepInitial
	for wse < high {
		for i := 0; i < opts.WSEStepRepeat && wse < high; i++ {
			wse += step
			if wse > high {
				wse = high
			}
			grid = append(grid, wse)
		}
		step *= opts.WSERamp
	}
	return grid
}

// PerElevationMetrics is one WSE's set of agreement metrics, per spec.md
// §4.6 step 4.
type PerElevationMetrics struct {
	WSE                       float64
	InundationOverlap         float64
	FlowAreaOverlap           float64
	TopWidthAgreement         float64
	FlowAreaAgreement         float64
	HydraulicRadiusAgreement  float64
	ResidualStats             ripple1d.DescriptiveStats
}

// trapezoidalFlowArea integrates max(wse-z, 0) over the station series.
func trapezoidalFlowArea(residuals []ElevationResidual, wse float64, useSource bool) float64 {
	area := 0.0
	for i := 1; i < len(residuals); i++ {
		a, b := residuals[i-1], residuals[i]
		za, zb := a.DEM, b.DEM
		if useSource {
			za, zb = a.Source, b.Source
		}
		da := math.Max(wse-za, 0)
		db := math.Max(wse-zb, 0)
		area += (da + db) / 2 * (b.Station - a.Station)
	}
	return area
}

// flowAreaOverlap implements spec.md §4.6's
// `flow_area_overlap(wse) = Σmin(A_src,A_dem) / Σmax(A_src,A_dem)`.
func flowAreaOverlap(residuals []ElevationResidual, wse float64) float64 {
	aSrc := trapezoidalFlowArea(residuals, wse, true)
	aDem := trapezoidalFlowArea(residuals, wse, false)
	mn, mx := math.Min(aSrc, aDem), math.Max(aSrc, aDem)
	if mx == 0 {
		return 1
	}
	return mn / mx
}

// smape implements spec.md §4.6's `smape(a,b) = |a-b|/(|a|+|b|)`.
func smape(a, b float64) float64 {
	denom := math.Abs(a) + math.Abs(b)
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

func agreement(a, b float64) float64 { return 1 - smape(a, b) }

func wettedWidth(residuals []ElevationResidual, wse float64, useSource bool) float64 {
	width := 0.0
	for i := 1; i < len(residuals); i++ {
		a, b := residuals[i-1], residuals[i]
		za, zb := a.DEM, b.DEM
		if useSource {
			za, zb = a.Source, b.Source
		}
		if za < wse || zb < wse {
			width += b.Station - a.Station
		}
	}
	return width
}

func wettedPerimeter(residuals []ElevationResidual, wse float64, useSource bool) float64 {
	p := 0.0
	for i := 1; i < len(residuals); i++ {
		a, b := residuals[i-1], residuals[i]
		za, zb := a.DEM, b.DEM
		if useSource {
			za, zb = a.Source, b.Source
		}
		da, db := math.Max(wse-za, 0), math.Max(wse-zb, 0)
		if da == 0 && db == 0 {
			continue
		}
		dx := b.Station - a.Station
		dz := zb - za
		p += math.Hypot(dx, dz)
	}
	return p
}

func inundationOverlap(residuals []ElevationResidual, wse float64) float64 {
	overlap, union := 0.0, 0.0
	for i := 1; i < len(residuals); i++ {
		a, b := residuals[i-1], residuals[i]
		dx := b.Station - a.Station
		srcWet := math.Max(wse-a.Source, 0) > 0 || math.Max(wse-b.Source, 0) > 0
		demWet := math.Max(wse-a.DEM, 0) > 0 || math.Max(wse-b.DEM, 0) > 0
		if srcWet && demWet {
			overlap += dx
		}
		if srcWet || demWet {
			union += dx
		}
	}
	if union == 0 {
		return 0
	}
	return overlap / union
}

// PerElevation computes the §4.6 step 4 per-WSE metric set at one
// water-surface elevation.
func PerElevation(residuals []ElevationResidual, wse float64) PerElevationMetrics {
	srcWidth, demWidth := wettedWidth(residuals, wse, true), wettedWidth(residuals, wse, false)
	srcArea, demArea := trapezoidalFlowArea(residuals, wse, true), trapezoidalFlowArea(residuals, wse, false)
	srcPerim, demPerim := wettedPerimeter(residuals, wse, true), wettedPerimeter(residuals, wse, false)

	srcR, demR := 0.0, 0.0
	if srcPerim > 0 {
		srcR = srcArea / srcPerim
	}
	if demPerim > 0 {
		demR = demArea / demPerim
	}

	var deltas []float64
	for _, r := range residuals {
		if r.Source <= wse || r.DEM <= wse {
			deltas = append(deltas, r.DEM-r.Source)
		}
	}

	return PerElevationMetrics{
		WSE:                      wse,
		InundationOverlap:        inundationOverlap(residuals, wse),
		FlowAreaOverlap:          flowAreaOverlap(residuals, wse),
		TopWidthAgreement:        agreement(srcWidth, demWidth),
		FlowAreaAgreement:        agreement(srcArea, demArea),
		HydraulicRadiusAgreement: agreement(srcR, demR),
		ResidualStats:            descriptiveStats(deltas),
	}
}

// WholeSectionMetrics are the §4.6 step 4 cross-section-level summary
// metrics, computed once over the full resampled residual series.
type WholeSectionMetrics struct {
	RSquared                  float64
	SpectralAngle             float64
	SpectralCorrelation       float64
	PearsonCorrelation        float64
	MaxCrossCorrelation       float64
	ThalwegElevationDifference float64
}

// spectralAngle implements spec.md §4.6's spectral angle definition,
// normalized over the full [0,pi] range so antiparallel vectors score 0
// per the §8 law.
func spectralAngle(x, y []float64) float64 {
	var dot, nx, ny float64
	for i := range x {
		dot += x[i] * y[i]
		nx += x[i] * x[i]
		ny += y[i] * y[i]
	}
	nx, ny = math.Sqrt(nx), math.Sqrt(ny)
	if nx == 0 || ny == 0 {
		return 0
	}
	cos := dot / (nx * ny)
	cos = math.Max(-1, math.Min(1, cos))
	// Identical vectors score 1, antiparallel vectors score 0.
	return 1 - math.Acos(cos)/math.Pi
}

func rSquared(src, dem []float64) float64 {
	meanSrc := stat.Mean(src, nil)
	var ssRes, ssTot float64
	for i := range src {
		ssRes += (src[i] - dem[i]) * (src[i] - dem[i])
		ssTot += (src[i] - meanSrc) * (src[i] - meanSrc)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func maxCrossCorrelation(src, dem []float64) float64 {
	n := len(src)
	if n == 0 {
		return 0
	}
	best := -math.MaxFloat64
	for lag := -(n - 1); lag <= n-1; lag++ {
		var sum float64
		count := 0
		for i := 0; i < n; i++ {
			j := i + lag
			if j < 0 || j >= n {
				continue
			}
			sum += src[i] * dem[j]
			count++
		}
		if count == 0 {
			continue
		}
		corr := sum / float64(count)
		if corr > best {
			best = corr
		}
	}
	return best
}

// WholeSection computes the §4.6 step 4 whole-section metrics from a
// resampled residual series and each endpoint's thalweg elevation.
func WholeSection(residuals []ElevationResidual, srcThalweg, demThalweg float64) WholeSectionMetrics {
	src := make([]float64, len(residuals))
	dem := make([]float64, len(residuals))
	for i, r := range residuals {
		src[i] = r.Source
		dem[i] = r.DEM
	}

	// Spectral correlation runs on the station-to-station gradient rather
	// than the raw elevations, so it scores profile shape independent of a
	// constant vertical offset; Pearson correlation runs on the elevations
	// themselves.
	srcGrad, demGrad := gradient(src), gradient(dem)

	return WholeSectionMetrics{
		RSquared:                   rSquared(src, dem),
		SpectralAngle:              spectralAngle(src, dem),
		SpectralCorrelation:        stat.Correlation(srcGrad, demGrad, nil),
		PearsonCorrelation:         stat.Correlation(src, dem, nil),
		MaxCrossCorrelation:        maxCrossCorrelation(src, dem),
		ThalwegElevationDifference: demThalweg - srcThalweg,
	}
}

func gradient(x []float64) []float64 {
	if len(x) < 2 {
		return x
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

func descriptiveStats(x []float64) ripple1d.DescriptiveStats {
	if len(x) == 0 {
		return ripple1d.DescriptiveStats{}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	min, max := sorted[0], sorted[len(sorted)-1]
	return ripple1d.DescriptiveStats{
		Mean:   stat.Mean(x, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    min,
		Max:    max,
		StdDev: stat.StdDev(x, nil),
		N:      len(x),
	}
}

// CrossSectionAgreement is the full §4.6 step 4 result for one
// cross-section: per-elevation metrics across the WSE grid plus the
// whole-section summary.
type CrossSectionAgreement struct {
	XS             *ripple1d.CrossSection
	PerElevation   []PerElevationMetrics
	WholeSection   WholeSectionMetrics
}

// ScoreCrossSection computes the terrain-agreement metrics for one
// cross-section against dem, per spec.md §4.6 step 4.
func ScoreCrossSection(xs *ripple1d.CrossSection, dem DEMSource, opts Options) (*CrossSectionAgreement, error) {
	resampled := ResampleStations(xs.StationElevation, opts.TerrainAgreementResolution)
	residuals, err := SampleDEM(xs, resampled, dem)
	if err != nil {
		return nil, err
	}
	if len(residuals) == 0 {
		return &CrossSectionAgreement{XS: xs}, nil
	}

	srcThalweg, demThalweg := residuals[0].Source, residuals[0].DEM
	for _, r := range residuals {
		if r.Source < srcThalweg {
			srcThalweg = r.Source
		}
		if r.DEM < demThalweg {
			demThalweg = r.DEM
		}
	}

	low := math.Max(srcThalweg, demThalweg)
	high := math.Min(residuals[0].Source, residuals[len(residuals)-1].Source)

	grid := WSEGrid(low, high, opts)
	perElev := make([]PerElevationMetrics, len(grid))
	for i, wse := range grid {
		perElev[i] = PerElevation(residuals, wse)
	}

	return &CrossSectionAgreement{
		XS:           xs,
		PerElevation: perElev,
		WholeSection: WholeSection(residuals, srcThalweg, demThalweg),
	}, nil
}

// ReachAgreement aggregates per-reach averages of each cross-section's
// whole-section metrics, per spec.md §4.6 step 4's "aggregate per-reach
// averages" rule.
func ReachAgreement(sections []*CrossSectionAgreement) WholeSectionMetrics {
	if len(sections) == 0 {
		return WholeSectionMetrics{}
	}
	var agg WholeSectionMetrics
	for _, s := range sections {
		agg.RSquared += s.WholeSection.RSquared
		agg.SpectralAngle += s.WholeSection.SpectralAngle
		agg.SpectralCorrelation += s.WholeSection.SpectralCorrelation
		agg.PearsonCorrelation += s.WholeSection.PearsonCorrelation
		agg.MaxCrossCorrelation += s.WholeSection.MaxCrossCorrelation
		agg.ThalwegElevationDifference += s.WholeSection.ThalwegElevationDifference
	}
	n := float64(len(sections))
	agg.RSquared /= n
	agg.SpectralAngle /= n
	agg.SpectralCorrelation /= n
	agg.PearsonCorrelation /= n
	agg.MaxCrossCorrelation /= n
	agg.ThalwegElevationDifference /= n
	return agg
}

// precision is the §8 per-metric rounding table.
var precision = map[string]int{
	"inundation_overlap":           3,
	"rmse":                         2,
	"thalweg_elevation_difference": 2,
	"spectral_angle":                3,
	"correlation":                   3,
}

// Round rounds v to metric's configured precision, per spec.md §8.
func Round(metric string, v float64) float64 {
	dp, ok := precision[metric]
	if !ok {
		dp = 3
	}
	scale := math.Pow(10, float64(dp))
	return math.Round(v*scale) / scale
}
