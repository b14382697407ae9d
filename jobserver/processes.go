package jobserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Dewberry/ripple1d"
	"github.com/Dewberry/ripple1d/conflate"
	"github.com/Dewberry/ripple1d/network"
	"github.com/Dewberry/ripple1d/parser"
	"github.com/Dewberry/ripple1d/runner"
	"github.com/Dewberry/ripple1d/subset"
	"github.com/ctessum/geom"
)

// NetworkSource abstracts reading the National Water Model hydrofabric's
// local reach set. Geopackage/shapefile ingestion is an external
// collaborator per spec.md §1; JSONNetworkSource below is the one
// concrete implementation this module ships, fit for the sidecar-style
// extracts the job server actually receives.
type NetworkSource interface {
	Reaches(path string) ([]*ripple1d.NetworkReach, error)
}

// JSONNetworkSource reads a flat JSON array of ripple1d.NetworkReach.
type JSONNetworkSource struct{}

func (JSONNetworkSource) Reaches(path string) ([]*ripple1d.NetworkReach, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobserver: read network reaches: %w", err)
	}
	var reaches []*ripple1d.NetworkReach
	if err := json.Unmarshal(data, &reaches); err != nil {
		return nil, fmt.Errorf("jobserver: decode network reaches: %w", err)
	}
	return reaches, nil
}

// GeopackageWriter abstracts writing a parsed HEC-RAS model's river
// centerlines and cross-sections to a geopackage layer set, for the
// standalone gpkg_from_ras QA operation. Geopackage I/O is an external
// collaborator per spec.md §1; JSONGeopackageWriter is the one concrete,
// dependency-free implementation this module ships.
type GeopackageWriter interface {
	Write(path string, g *ripple1d.GeometryFile) error
}

// JSONGeopackageWriter flattens a parsed geometry's reaches and
// cross-sections to a JSON feature list at path, standing in for a real
// geopackage layer writer behind the same seam (GeometryFile keys its
// reach map on a struct, which encoding/json cannot use as a map key
// directly).
type JSONGeopackageWriter struct{}

type gpkgReachFeature struct {
	River           string          `json:"river"`
	Reach           string          `json:"reach"`
	Centerline      geom.LineString `json:"centerline"`
	CrossSectionIDs []float64       `json:"cross_section_river_stations"`
}

func (JSONGeopackageWriter) Write(path string, g *ripple1d.GeometryFile) error {
	features := make([]gpkgReachFeature, 0, len(g.Reaches))
	for rr, reach := range g.Reaches {
		xs := reach.CrossSections()
		stations := make([]float64, len(xs))
		for i, x := range xs {
			stations[i] = x.RiverStation
		}
		features = append(features, gpkgReachFeature{
			River:           rr.River,
			Reach:           rr.Reach,
			Centerline:      reach.Geometry,
			CrossSectionIDs: stations,
		})
	}

	data, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return fmt.Errorf("jobserver: marshal geometry export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jobserver: write geopackage export: %w", err)
	}
	return nil
}

// DefaultRegistry builds the job server's process table (spec.md §4.8):
// noop (also registered as "test" for the self-check path), gpkg_from_ras,
// the conflation, sub-model extraction and flow-file operations, and
// create_rating_curves_db. No process builds terrain or the depth-raster
// FIM library.
func DefaultRegistry(netSrc NetworkSource) *Registry {
	return defaultRegistry(netSrc, JSONGeopackageWriter{})
}

func defaultRegistry(netSrc NetworkSource, gpkg GeopackageWriter) *Registry {
	r := NewRegistry()

	r.Register(Process{
		Name:   "noop",
		Params: nil,
		Run:    noop,
	})
	r.Register(Process{
		Name:   "test",
		Params: nil,
		Run:    noop,
	})

	r.Register(Process{
		Name: "gpkg_from_ras",
		Params: []Param{
			{Name: "source_model_project"},
			{Name: "output_gpkg_path"},
			{Name: "crs"},
		},
		Run: gpkgFromRAS(gpkg),
	})

	r.Register(Process{
		Name: "conflate_model",
		Params: []Param{
			{Name: "source_model_project"},
			{Name: "source_network"},
			{Name: "output_conflation_path"},
			{Name: "engine_version"},
		},
		Run: conflateModel(netSrc),
	})

	r.Register(Process{
		Name: "compute_conflation_metrics",
		Params: []Param{
			{Name: "source_model_project"},
			{Name: "source_network"},
			{Name: "output_conflation_path"},
			{Name: "engine_version"},
		},
		Run: conflateModel(netSrc),
	})

	r.Register(Process{
		Name: "extract_submodel",
		Params: []Param{
			{Name: "source_model_project"},
			{Name: "submodel_directory"},
			{Name: "nwm_id"},
			{Name: "us_river"},
			{Name: "us_reach"},
			{Name: "ds_river"},
			{Name: "ds_reach"},
			{Name: "us_xs_id"},
			{Name: "ds_xs_id"},
			{Name: "crs"},
		},
		Run: extractSubmodel,
	})

	r.Register(Process{
		Name: "create_model_run_normal_depth",
		Params: []Param{
			{Name: "submodel_directory"},
			{Name: "river"},
			{Name: "reach"},
			{Name: "river_station"},
			{Name: "low_flow"},
			{Name: "high_flow"},
			{Name: "n_profiles"},
		},
		Run: createNormalDepthInitial,
	})

	r.Register(Process{
		Name: "run_incremental_normal_depth",
		Params: []Param{
			{Name: "submodel_directory"},
			{Name: "river"},
			{Name: "reach"},
			{Name: "river_station"},
			{Name: "depth_inc"},
		},
		Run: createNormalDepthIncremental,
	})

	r.Register(Process{
		Name: "create_model_run_known_wse",
		Params: []Param{
			{Name: "submodel_directory"},
			{Name: "river"},
			{Name: "reach"},
			{Name: "river_station"},
			{Name: "ds_thalweg"},
			{Name: "min_elevation"},
			{Name: "max_elevation"},
			{Name: "depth_inc"},
		},
		Run: createKnownWSE,
	})

	r.Register(Process{
		Name: "create_rating_curves_db",
		Params: []Param{
			{Name: "submodel_directory"},
		},
		Run: createRatingCurvesDB,
	})

	return r
}

// gpkgFromRAS parses an arbitrary HEC-RAS project and exports its
// centerlines and cross-sections for standalone QA, independent of
// conflation or sub-model extraction (original_source's ras_to_gpkg.py).
func gpkgFromRAS(gpkg GeopackageWriter) Run {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		projectPath, err := paramString(params, "source_model_project")
		if err != nil {
			return nil, err
		}
		outPath, err := paramString(params, "output_gpkg_path")
		if err != nil {
			return nil, err
		}
		crs, err := paramString(params, "crs")
		if err != nil {
			return nil, err
		}

		model, err := parser.ParseProject(projectPath)
		if err != nil {
			return nil, err
		}
		if len(model.Geometries) == 0 {
			return nil, fmt.Errorf("jobserver: project %q has no geometry files", projectPath)
		}
		g, err := parser.ParseGeometry(model.GeometryPath(model.Geometries[0]), crs)
		if err != nil {
			return nil, err
		}
		if err := gpkg.Write(outPath, g); err != nil {
			return nil, err
		}
		return map[string]interface{}{"output_gpkg_path": outPath, "reach_count": len(g.Reaches)}, nil
	}
}

func conflateModel(netSrc NetworkSource) Run {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		projectPath, err := paramString(params, "source_model_project")
		if err != nil {
			return nil, err
		}
		sourceNetwork, err := paramString(params, "source_network")
		if err != nil {
			return nil, err
		}
		outPath, err := paramString(params, "output_conflation_path")
		if err != nil {
			return nil, err
		}
		engineVersion, err := paramString(params, "engine_version")
		if err != nil {
			return nil, err
		}

		model, err := parser.ParseProject(projectPath)
		if err != nil {
			return nil, err
		}
		if len(model.Geometries) == 0 {
			return nil, fmt.Errorf("jobserver: project %q has no geometry files", projectPath)
		}
		geomPath := model.GeometryPath(model.Geometries[0])
		g, err := parser.ParseGeometry(geomPath, "")
		if err != nil {
			return nil, err
		}
		reaches, err := netSrc.Reaches(sourceNetwork)
		if err != nil {
			return nil, err
		}
		tree := network.NewTree(reaches)

		result, err := conflate.Conflate(g, tree, reaches, conflate.Options{
			NetworkFile:    sourceNetwork,
			SourceModel:    projectPath,
			SourceGeometry: geomPath,
			EngineVersion:  engineVersion,
		})
		if err != nil {
			return nil, err
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("jobserver: marshal conflation result: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("jobserver: write conflation result: %w", err)
		}
		return map[string]interface{}{"reaches_conflated": len(result.NonEclipsed())}, nil
	}
}

func extractSubmodel(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	projectPath, err := paramString(params, "source_model_project")
	if err != nil {
		return nil, err
	}
	submodelDir, err := paramString(params, "submodel_directory")
	if err != nil {
		return nil, err
	}
	nwmID, err := paramInt(params, "nwm_id")
	if err != nil {
		return nil, err
	}
	usRiver, err := paramString(params, "us_river")
	if err != nil {
		return nil, err
	}
	usReach, err := paramString(params, "us_reach")
	if err != nil {
		return nil, err
	}
	dsRiver, err := paramString(params, "ds_river")
	if err != nil {
		return nil, err
	}
	dsReach, err := paramString(params, "ds_reach")
	if err != nil {
		return nil, err
	}
	usXSID, err := paramFloat(params, "us_xs_id")
	if err != nil {
		return nil, err
	}
	dsXSID, err := paramFloat(params, "ds_xs_id")
	if err != nil {
		return nil, err
	}
	crs, err := paramString(params, "crs")
	if err != nil {
		return nil, err
	}

	model, err := parser.ParseProject(projectPath)
	if err != nil {
		return nil, err
	}
	if len(model.Geometries) == 0 {
		return nil, fmt.Errorf("jobserver: project %q has no geometry files", projectPath)
	}
	g, err := parser.ParseGeometry(model.GeometryPath(model.Geometries[0]), crs)
	if err != nil {
		return nil, err
	}

	sub, err := subset.Subset(g, nwmID, ripple1d.RiverReach{River: usRiver, Reach: usReach},
		ripple1d.RiverReach{River: dsRiver, Reach: dsReach}, usXSID, dsXSID, crs)
	if err != nil {
		return nil, err
	}

	dir := ripple1d.SubModelDir{Root: submodelDir, ID: fmt.Sprintf("%d", nwmID)}
	if err := os.MkdirAll(submodelDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobserver: create submodel directory: %w", err)
	}
	geomPath := dir.Root + "/" + dir.ID + ".g01"
	if err := parser.WriteGeometry(geomPath, sub); err != nil {
		return nil, err
	}
	return map[string]interface{}{"submodel_directory": submodelDir, "geometry_file": geomPath}, nil
}

func createNormalDepthInitial(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	submodelDir, err := paramString(params, "submodel_directory")
	if err != nil {
		return nil, err
	}
	river, err := paramString(params, "river")
	if err != nil {
		return nil, err
	}
	reach, err := paramString(params, "reach")
	if err != nil {
		return nil, err
	}
	riverStation, err := paramFloat(params, "river_station")
	if err != nil {
		return nil, err
	}
	lowFlow, err := paramFloat(params, "low_flow")
	if err != nil {
		return nil, err
	}
	highFlow, err := paramFloat(params, "high_flow")
	if err != nil {
		return nil, err
	}
	nProfiles, err := paramInt(params, "n_profiles")
	if err != nil {
		return nil, err
	}

	ff, err := runner.NormalDepthInitial(river, reach, riverStation, lowFlow, highFlow, nProfiles)
	if err != nil {
		return nil, err
	}
	return writeFlowFile(submodelDir, ff)
}

func createNormalDepthIncremental(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	submodelDir, err := paramString(params, "submodel_directory")
	if err != nil {
		return nil, err
	}
	river, err := paramString(params, "river")
	if err != nil {
		return nil, err
	}
	reach, err := paramString(params, "reach")
	if err != nil {
		return nil, err
	}
	riverStation, err := paramFloat(params, "river_station")
	if err != nil {
		return nil, err
	}
	depthInc, err := paramFloat(params, "depth_inc")
	if err != nil {
		return nil, err
	}

	dbPath := ripple1d.SubModelDir{Root: submodelDir}.RatingCurveDB()
	curve, err := readRatingCurve(dbPath)
	if err != nil {
		return nil, err
	}

	ff, err := runner.NormalDepthIncremental(river, reach, riverStation, curve, depthInc)
	if err != nil {
		return nil, err
	}
	return writeFlowFile(submodelDir, ff)
}

func createKnownWSE(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	submodelDir, err := paramString(params, "submodel_directory")
	if err != nil {
		return nil, err
	}
	river, err := paramString(params, "river")
	if err != nil {
		return nil, err
	}
	reach, err := paramString(params, "reach")
	if err != nil {
		return nil, err
	}
	riverStation, err := paramFloat(params, "river_station")
	if err != nil {
		return nil, err
	}
	dsThalweg, err := paramFloat(params, "ds_thalweg")
	if err != nil {
		return nil, err
	}
	minEl, err := paramFloat(params, "min_elevation")
	if err != nil {
		return nil, err
	}
	maxEl, err := paramFloat(params, "max_elevation")
	if err != nil {
		return nil, err
	}
	depthInc, err := paramFloat(params, "depth_inc")
	if err != nil {
		return nil, err
	}

	dbPath := ripple1d.SubModelDir{Root: submodelDir}.RatingCurveDB()
	ndFlows, err := readRatingCurve(dbPath)
	if err != nil {
		return nil, err
	}

	ff, err := runner.KnownWSE(river, reach, riverStation, dsThalweg, ndFlows, minEl, maxEl, depthInc)
	if err != nil {
		return nil, err
	}
	return writeFlowFile(submodelDir, ff)
}

func createRatingCurvesDB(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	submodelDir, err := paramString(params, "submodel_directory")
	if err != nil {
		return nil, err
	}
	dbPath := ripple1d.SubModelDir{Root: submodelDir}.RatingCurveDB()
	db, err := runner.OpenRatingCurveDB(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return map[string]interface{}{"rating_curve_db": dbPath}, nil
}

// writeFlowFile writes ff to submodelDir/fNN, where NN is the lowest
// two-digit number that NextSuffix finds unused among the names of
// submodelDir's entries.
func writeFlowFile(submodelDir string, ff *ripple1d.FlowFile) (interface{}, error) {
	entries, err := os.ReadDir(submodelDir)
	if err != nil {
		return nil, fmt.Errorf("jobserver: list submodel directory: %w", err)
	}
	var existing []ripple1d.FileRef
	for _, e := range entries {
		existing = append(existing, ripple1d.FileRef(e.Name()))
	}
	suffix, err := runner.NextSuffix(existing)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/f%s", submodelDir, suffix)
	if err := parser.WriteFlow(path, ff); err != nil {
		return nil, err
	}
	return map[string]interface{}{"flow_file": path, "num_profiles": ff.NumProfiles}, nil
}

// readRatingCurve reads every row from dbPath's rating_curves table and
// reduces it to the (flow, depth) pairs NormalDepthIncremental/KnownWSE
// consume, keyed on upstream flow/depth.
func readRatingCurve(dbPath string) ([]runner.RatingCurvePoint, error) {
	db, err := runner.OpenRatingCurveDB(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.SelectAll(context.Background())
	if err != nil {
		return nil, err
	}
	points := make([]runner.RatingCurvePoint, len(rows))
	for i, row := range rows {
		points[i] = runner.RatingCurvePoint{Flow: row.USFlow, Depth: row.USDepth}
	}
	return points, nil
}
