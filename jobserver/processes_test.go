package jobserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeFixtureProject(t *testing.T, dir string) string {
	t.Helper()
	geomPath := filepath.Join(dir, "model.g01")
	if err := os.WriteFile(geomPath, []byte("Geom Title=fixture\nProgram Version=6.3\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	projPath := filepath.Join(dir, "model.prj")
	proj := "Proj Title=fixture\nGeom File=g01\nCurrent Plan=p01\n"
	if err := os.WriteFile(projPath, []byte(proj), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return projPath
}

func TestGpkgFromRASExportsGeometry(t *testing.T) {
	dir := t.TempDir()
	projPath := writeFixtureProject(t, dir)
	outPath := filepath.Join(dir, "out.gpkg.json")

	r := defaultRegistry(JSONNetworkSource{}, JSONGeopackageWriter{})
	proc, ok := r.Get("gpkg_from_ras")
	if !ok {
		t.Fatal("want gpkg_from_ras registered")
	}

	result, err := proc.Run(context.Background(), map[string]interface{}{
		"source_model_project": projPath,
		"output_gpkg_path":     outPath,
		"crs":                  "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]interface{})
	if !ok || m["output_gpkg_path"] != outPath {
		t.Errorf("want output_gpkg_path=%s, got %+v", outPath, result)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("want export file written: %v", err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("want valid JSON export, got error: %v", err)
	}
}

func TestGpkgFromRASMissingProjectParam(t *testing.T) {
	r := defaultRegistry(JSONNetworkSource{}, JSONGeopackageWriter{})
	proc, _ := r.Get("gpkg_from_ras")

	if _, err := proc.Run(context.Background(), map[string]interface{}{
		"output_gpkg_path": "x",
		"crs":              "",
	}); err == nil {
		t.Error("want error for missing source_model_project")
	}
}
