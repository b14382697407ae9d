package runner

import (
	"context"
	"fmt"
	"math"

	"github.com/Dewberry/ripple1d"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ResultTable abstracts the result HDF's per-profile, per-cross-section
// water-surface and flow tables, per spec.md §4.7's rating-curve
// extraction contract. HDF I/O itself is an external collaborator.
type ResultTable interface {
	// WaterSurface returns the WSE at xsName for profile.
	WaterSurface(profile, xsName string) (float64, error)
	// Flow returns the discharge at xsName for profile.
	Flow(profile, xsName string) (float64, error)
}

// ExtractRatingCurve reads results, pairs each profile's us/ds values, and
// subtracts thalwegs to produce depths rounded to 0.1 ft, per spec.md
// §4.7.
func ExtractRatingCurve(results ResultTable, profiles []string, usXSName, dsXSName string, usThalweg, dsThalweg float64, reachID int, bc ripple1d.BoundaryCondition) ([]ripple1d.RatingCurveRow, error) {
	rows := make([]ripple1d.RatingCurveRow, 0, len(profiles))
	for _, p := range profiles {
		usFlow, err := results.Flow(p, usXSName)
		if err != nil {
			return nil, fmt.Errorf("runner: us flow for profile %q: %w", p, err)
		}
		usWSE, err := results.WaterSurface(p, usXSName)
		if err != nil {
			return nil, fmt.Errorf("runner: us wse for profile %q: %w", p, err)
		}
		dsWSE, err := results.WaterSurface(p, dsXSName)
		if err != nil {
			return nil, fmt.Errorf("runner: ds wse for profile %q: %w", p, err)
		}

		rows = append(rows, ripple1d.RatingCurveRow{
			ReachID:           reachID,
			USFlow:            roundTo(usFlow, 1),
			USDepth:           roundTo(usWSE-usThalweg, 0.1),
			USWSE:             roundTo(usWSE, 0.1),
			DSDepth:           roundTo(dsWSE-dsThalweg, 0.1),
			DSWSE:             roundTo(dsWSE, 0.1),
			BoundaryCondition: bc,
		})
	}
	return rows, nil
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

// RatingCurveDB is the FIM-library sqlite store, per spec.md §4.7's
// rating-curve table schema.
type RatingCurveDB struct {
	db *sqlx.DB
}

const ratingCurveSchema = `
CREATE TABLE IF NOT EXISTS rating_curves (
	reach_id INT,
	ds_depth REAL,
	ds_wse REAL,
	us_flow INT,
	us_depth REAL,
	us_wse REAL,
	boundary_condition TEXT,
	UNIQUE(reach_id, us_flow, ds_wse, boundary_condition)
)`

// OpenRatingCurveDB opens (creating if needed) the sqlite FIM library at
// path.
func OpenRatingCurveDB(path string) (*RatingCurveDB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runner: open rating curve db: %w", err)
	}
	if _, err := db.Exec(ratingCurveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runner: create rating curve schema: %w", err)
	}
	return &RatingCurveDB{db: db}, nil
}

func (r *RatingCurveDB) Close() error { return r.db.Close() }

// SelectAll returns every row in the rating curve table.
func (r *RatingCurveDB) SelectAll(ctx context.Context) ([]ripple1d.RatingCurveRow, error) {
	const q = `SELECT reach_id, ds_depth, ds_wse, us_flow, us_depth, us_wse, boundary_condition FROM rating_curves`
	var dest []struct {
		ReachID           int     `db:"reach_id"`
		DSDepth           float64 `db:"ds_depth"`
		DSWSE             float64 `db:"ds_wse"`
		USFlow            float64 `db:"us_flow"`
		USDepth           float64 `db:"us_depth"`
		USWSE             float64 `db:"us_wse"`
		BoundaryCondition string  `db:"boundary_condition"`
	}
	if err := r.db.SelectContext(ctx, &dest, q); err != nil {
		return nil, fmt.Errorf("runner: select rating curve rows: %w", err)
	}
	rows := make([]ripple1d.RatingCurveRow, len(dest))
	for i, d := range dest {
		rows[i] = ripple1d.RatingCurveRow{
			ReachID:           d.ReachID,
			DSDepth:           d.DSDepth,
			DSWSE:             d.DSWSE,
			USFlow:            d.USFlow,
			USDepth:           d.USDepth,
			USWSE:             d.USWSE,
			BoundaryCondition: ripple1d.BoundaryCondition(d.BoundaryCondition),
		}
	}
	return rows, nil
}

// Upsert inserts rows, replacing any existing row with the same
// (reach_id, us_flow, ds_wse, boundary_condition) key.
func (r *RatingCurveDB) Upsert(ctx context.Context, rows []ripple1d.RatingCurveRow) error {
	const stmt = `
INSERT INTO rating_curves (reach_id, ds_depth, ds_wse, us_flow, us_depth, us_wse, boundary_condition)
VALUES (:reach_id, :ds_depth, :ds_wse, :us_flow, :us_depth, :us_wse, :boundary_condition)
ON CONFLICT(reach_id, us_flow, ds_wse, boundary_condition) DO UPDATE SET
	ds_depth=excluded.ds_depth, us_depth=excluded.us_depth, us_wse=excluded.us_wse`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("runner: begin rating curve tx: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, stmt, ratingCurveArgs(row)); err != nil {
			return fmt.Errorf("runner: upsert rating curve row: %w", err)
		}
	}
	return tx.Commit()
}

func ratingCurveArgs(row ripple1d.RatingCurveRow) map[string]interface{} {
	return map[string]interface{}{
		"reach_id":           row.ReachID,
		"ds_depth":           row.DSDepth,
		"ds_wse":             row.DSWSE,
		"us_flow":            row.USFlow,
		"us_depth":           row.USDepth,
		"us_wse":             row.USWSE,
		"boundary_condition": string(row.BoundaryCondition),
	}
}

// depthGridPath builds the <depth_bucket>/<flow_bucket>.tif relative path
// a finished plan/profile's depth grid is stored under, per spec.md §4.7's
// depth-grid post-processing step.
func depthGridPath(dir ripple1d.SubModelDir, depth, flow float64) string {
	return dir.DepthGrid(bucket(depth), bucket(flow))
}

func bucket(v float64) string {
	return fmt.Sprintf("%v", roundTo(v, 1))
}

// RasterReprojector abstracts the GDAL-backed reprojection of a single
// plan/profile's depth grid, per spec.md §1's raster-I/O carve-out.
type RasterReprojector interface {
	// Reproject writes srcPath reprojected to epsg at the given
	// resolution (same units as epsg) to dstPath.
	Reproject(srcPath, dstPath, epsg string, resolution float64) error
}

// DepthGridResult is one (depth, flow) profile's source raster, if the
// simulator produced one.
type DepthGridResult struct {
	Depth      float64
	Flow       float64
	SourcePath string // empty when the profile produced no raster
}

// PostProcessDepthGrids reprojects every produced depth grid to targetEPSG
// at resolution and stores it under dir's depth/flow bucket layout, per
// spec.md §4.7. Profiles with no source raster are skipped and returned in
// missing.
func PostProcessDepthGrids(reprojector RasterReprojector, dir ripple1d.SubModelDir, results []DepthGridResult, targetEPSG string, resolution float64) (processed []string, missing []DepthGridResult, err error) {
	for _, r := range results {
		if r.SourcePath == "" {
			missing = append(missing, r)
			continue
		}
		dst := depthGridPath(dir, r.Depth, r.Flow)
		if err := reprojector.Reproject(r.SourcePath, dst, targetEPSG, resolution); err != nil {
			return processed, missing, fmt.Errorf("runner: reproject depth grid %q: %w", r.SourcePath, err)
		}
		processed = append(processed, dst)
	}
	return processed, missing, nil
}
